package idtoken

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	return key
}

func testProfile() Profile {
	return Profile{
		Subject:       "user-123",
		Email:         "a@b.c",
		EmailVerified: true,
		Name:          "AB CD",
	}
}

func TestSignAndVerify(t *testing.T) {
	key := testKey(t)
	signer, err := NewSigner("https://auth.example.com", key, time.Hour)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	verifier, err := NewVerifier("https://auth.example.com", &key.PublicKey, 5*time.Second)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	raw, err := signer.Sign(testProfile(), "client-abc")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	claims, err := verifier.Verify(raw)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.Subject != "user-123" {
		t.Errorf("sub = %q, want user-123", claims.Subject)
	}
	if claims.Issuer != "https://auth.example.com" {
		t.Errorf("iss = %q, want https://auth.example.com", claims.Issuer)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "client-abc" {
		t.Errorf("aud = %v, want [client-abc]", claims.Audience)
	}
	if claims.Email != "a@b.c" {
		t.Errorf("email = %q, want a@b.c", claims.Email)
	}
	if !claims.EmailVerified {
		t.Error("email_verified = false, want true")
	}
	if claims.Name != "AB CD" {
		t.Errorf("name = %q, want AB CD", claims.Name)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Fatal("missing exp or iat claim")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("exp - iat = %v, want 1h", got)
	}
}

func TestVerify_Malformed(t *testing.T) {
	key := testKey(t)
	verifier, _ := NewVerifier("https://auth.example.com", &key.PublicKey, 0)

	for _, raw := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		if _, err := verifier.Verify(raw); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("Verify(%q) error = %v, want ErrMalformedToken", raw, err)
		}
	}
}

func TestVerify_WrongKey(t *testing.T) {
	signer, _ := NewSigner("https://auth.example.com", testKey(t), time.Hour)
	otherKey := testKey(t)
	verifier, _ := NewVerifier("https://auth.example.com", &otherKey.PublicKey, 0)

	raw, err := signer.Sign(testProfile(), "client-abc")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() error = %v, want ErrInvalidSignature", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	key := testKey(t)
	signer, _ := NewSigner("https://auth.example.com", key, time.Hour)
	signer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	verifier, _ := NewVerifier("https://auth.example.com", &key.PublicKey, 0)

	raw, err := signer.Sign(testProfile(), "client-abc")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if _, err := verifier.Verify(raw); !errors.Is(err, ErrExpired) {
		t.Errorf("Verify() error = %v, want ErrExpired", err)
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	key := testKey(t)
	signer, _ := NewSigner("https://other.example.com", key, time.Hour)
	verifier, _ := NewVerifier("https://auth.example.com", &key.PublicKey, 0)

	raw, err := signer.Sign(testProfile(), "client-abc")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	_, err = verifier.Verify(raw)
	if err == nil {
		t.Fatal("expected error for wrong issuer")
	}
	// Issuer mismatch is not one of the three sentinel classes.
	for _, sentinel := range []error{ErrMalformedToken, ErrInvalidSignature, ErrExpired} {
		if errors.Is(err, sentinel) {
			t.Errorf("issuer mismatch mapped to %v", sentinel)
		}
	}
}

func TestSign_Validation(t *testing.T) {
	signer, _ := NewSigner("https://auth.example.com", testKey(t), time.Hour)

	if _, err := signer.Sign(Profile{}, "client-abc"); err == nil {
		t.Error("expected error for missing subject")
	}
	if _, err := signer.Sign(testProfile(), ""); err == nil {
		t.Error("expected error for missing audience")
	}
}

func TestNewSigner_Validation(t *testing.T) {
	key := testKey(t)

	if _, err := NewSigner("", key, time.Hour); err == nil {
		t.Error("expected error for empty issuer")
	}
	if _, err := NewSigner("https://auth.example.com", nil, time.Hour); err == nil {
		t.Error("expected error for nil key")
	}
	if _, err := NewSigner("https://auth.example.com", key, 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}
