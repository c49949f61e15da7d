package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mobiperf/backend/internal/principal"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNoSigningKey is returned by IssueAccess on a verify-only provider.
	ErrNoSigningKey = errors.New("token provider has no signing key")
)

// AccessClaims holds JWT claims for an access token. The subject is the user id;
// admin grants travel as explicit claims so the data layer never looks them up.
type AccessClaims struct {
	jwt.RegisteredClaims
	Admin          bool `json:"admin,omitempty"`
	AnonymousAdmin bool `json:"anon_admin,omitempty"`
}

// TokenProvider validates (and optionally issues) RS256/ES256 access tokens that
// resolve to a principal.Principal.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider. privateKey may be nil for a verify-only provider.
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
	}
}

// IssueAccess issues an access JWT for p. Returns the token and its expiration time.
func (p *TokenProvider) IssueAccess(who principal.Principal) (token string, expiresAt time.Time, err error) {
	if p.privateKey == nil {
		return "", time.Time{}, ErrNoSigningKey
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   who.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Admin:          who.Admin,
		AnonymousAdmin: who.AnonymousAdmin,
	}
	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, ErrInvalidToken
	}
	token, err = jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	return token, expiresAt, err
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud)
// and returns the principal it names.
func (p *TokenProvider) ValidateAccess(tokenString string) (principal.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
			return p.publicKey, nil
		}
		return nil, ErrInvalidToken
	})
	if err != nil {
		return principal.Anonymous, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return principal.Anonymous, ErrInvalidToken
	}
	if claims.Issuer != p.issuer || !slices.Contains(claims.Audience, p.audience) {
		return principal.Anonymous, ErrInvalidToken
	}
	return principal.Principal{
		UserID:         claims.Subject,
		Admin:          claims.Admin,
		AnonymousAdmin: claims.AnonymousAdmin,
	}, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
