package security

import (
	"testing"
	"time"

	"mobiperf/backend/internal/principal"
)

func TestTokenProvider_IssueAndValidateAccess(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	want := principal.Principal{UserID: "u1", AnonymousAdmin: true}

	token, exp, err := p.IssueAccess(want)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if token == "" {
		t.Fatal("access token empty")
	}
	if exp.Before(time.Now()) {
		t.Fatal("expires at in the past")
	}

	got, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if got != want {
		t.Errorf("ValidateAccess = %+v, want %+v", got, want)
	}
}

func TestTokenProvider_ValidateAccessInvalid(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	got, err := p.ValidateAccess("invalid-token")
	if err != ErrInvalidToken {
		t.Errorf("ValidateAccess invalid token: want ErrInvalidToken, got %v", err)
	}
	if got != principal.Anonymous {
		t.Errorf("ValidateAccess invalid token: principal = %+v, want Anonymous", got)
	}
}

func TestTokenProvider_ValidateAccessWrongAudience(t *testing.T) {
	issuer, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	token, _, err := issuer.IssueAccess(principal.Principal{UserID: "u1", Admin: true})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	verifier := NewTokenProvider(nil, issuer.publicKey, "test-issuer", "other-audience", time.Minute)
	if _, err := verifier.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("ValidateAccess wrong audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_VerifyOnlyCannotIssue(t *testing.T) {
	issuer, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	verifier := NewTokenProvider(nil, issuer.publicKey, "test-issuer", "test-audience", time.Minute)
	if _, _, err := verifier.IssueAccess(principal.Principal{UserID: "u1"}); err != ErrNoSigningKey {
		t.Errorf("IssueAccess on verify-only provider: want ErrNoSigningKey, got %v", err)
	}
}
