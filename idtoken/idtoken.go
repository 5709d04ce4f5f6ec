// Package idtoken builds and verifies OpenID Connect ID tokens. Tokens are
// RS256-signed JWTs carrying the standard issuer/subject/audience/time
// claims plus the user profile claims (email, email_verified, name) that
// the consent flow granted.
package idtoken

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification errors. Callers distinguish these to report the precise
// failure class without inspecting library internals.
var (
	// ErrMalformedToken indicates the input is not a well-formed signed JWT
	ErrMalformedToken = errors.New("malformed id token")

	// ErrInvalidSignature indicates the signature does not validate against the key
	ErrInvalidSignature = errors.New("invalid id token signature")

	// ErrExpired indicates the token's exp claim has passed
	ErrExpired = errors.New("id token expired")
)

// Profile is the identity the token asserts. The flow layer fills it from
// the user account with any consent-time claim overrides already applied.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// Claims is the ID token claim set.
type Claims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues signed ID tokens for a single issuer and key.
type Signer struct {
	issuer string
	key    *rsa.PrivateKey
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a signer. ttl bounds the token's validity window.
func NewSigner(issuer string, key *rsa.PrivateKey, ttl time.Duration) (*Signer, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if key == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %v", ttl)
	}
	return &Signer{
		issuer: issuer,
		key:    key,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Sign builds and signs an ID token for the given identity and audience.
func (s *Signer) Sign(profile Profile, clientID string) (string, error) {
	if profile.Subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	if clientID == "" {
		return "", fmt.Errorf("audience is required")
	}

	now := s.now()
	claims := Claims{
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		Name:          profile.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   profile.Subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

// PublicKey returns the verification key matching the signer.
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}

// Verifier validates ID tokens issued by a Signer with the same issuer.
type Verifier struct {
	issuer string
	key    *rsa.PublicKey
	leeway time.Duration
}

// NewVerifier creates a verifier with the given clock-skew leeway.
// A zero leeway is valid and means exact time comparison.
func NewVerifier(issuer string, key *rsa.PublicKey, leeway time.Duration) (*Verifier, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if key == nil {
		return nil, fmt.Errorf("verification key is required")
	}
	return &Verifier{
		issuer: issuer,
		key:    key,
		leeway: leeway,
	}, nil
}

// Verify parses and validates a raw ID token, returning its claims.
// Fails with ErrMalformedToken, ErrInvalidSignature, or ErrExpired; any
// other claim violation (wrong issuer, future iat) is reported verbatim.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		default:
			return nil, fmt.Errorf("id token validation failed: %w", err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrMalformedToken
	}
	return claims, nil
}
