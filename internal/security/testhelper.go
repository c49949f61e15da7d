package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"time"
)

var testKeys struct {
	once    sync.Once
	private string
	public  string
	err     error
}

// testKeyPEMs returns a process-wide ECDSA P-256 key pair as PKCS#8 / PKIX PEM,
// generated on first use. For tests only.
func testKeyPEMs() (privatePEM, publicPEM string, err error) {
	testKeys.once.Do(func() {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			testKeys.err = err
			return
		}
		priv, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			testKeys.err = err
			return
		}
		pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			testKeys.err = err
			return
		}
		testKeys.private = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: priv}))
		testKeys.public = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
	})
	return testKeys.private, testKeys.public, testKeys.err
}

// NewTestTokenProvider returns an ES256 TokenProvider over a generated key pair.
// For unit tests only.
func NewTestTokenProvider() (*TokenProvider, error) {
	privatePEM, publicPEM, err := testKeyPEMs()
	if err != nil {
		return nil, err
	}
	signer, err := ParsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	return NewTokenProvider(signer, pub, "test-issuer", "test-audience", 15*time.Minute), nil
}
