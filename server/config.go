package server

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"
)

// Default configuration values
const (
	// DefaultAuthorizationCodeTTL is how long authorization codes are valid
	DefaultAuthorizationCodeTTL = 10 * time.Minute

	// DefaultAccessTokenTTL is how long access tokens are valid.
	// The wire contract reports this as expires_in=3600.
	DefaultAccessTokenTTL = time.Hour

	// DefaultIDTokenTTL is how long ID tokens are valid
	DefaultIDTokenTTL = time.Hour
)

// DefaultBaselineScopes are the scopes every grant carries implicitly. They
// are not echoed back in the token response scope field; only additional
// scopes beyond this baseline are.
var DefaultBaselineScopes = []string{"openid", "profile", "email"}

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL). Used as the
	// iss claim of ID tokens.
	Issuer string

	// SigningKey is the RSA private key used to sign ID tokens.
	// Required when clients request the openid scope.
	SigningKey *rsa.PrivateKey

	// AuthorizationCodeTTL is how long authorization codes are valid.
	// Default: 10 minutes.
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is how long access tokens are valid. Default: 1 hour.
	AccessTokenTTL time.Duration

	// IDTokenTTL is how long ID tokens are valid. Default: 1 hour.
	IDTokenTTL time.Duration

	// BaselineScopes are the implicitly granted scopes excluded from the
	// scope echoed in token responses. Default: openid, profile, email.
	BaselineScopes []string

	// AuditEnabled turns on security audit logging
	AuditEnabled bool

	// Logger is the structured logger (default: slog.Default())
	Logger *slog.Logger

	// Now overrides the time source, for tests
	Now func() time.Time
}

// Validate checks the configuration for inconsistencies. Called by New
// after defaults are applied.
func (c *Config) Validate() error {
	if c.SigningKey != nil && c.Issuer == "" {
		return fmt.Errorf("issuer is required when a signing key is configured")
	}
	if c.AuthorizationCodeTTL < 0 {
		return fmt.Errorf("authorization code TTL must not be negative")
	}
	if c.AccessTokenTTL < 0 {
		return fmt.Errorf("access token TTL must not be negative")
	}
	if c.IDTokenTTL < 0 {
		return fmt.Errorf("id token TTL must not be negative")
	}
	return nil
}

// applyDefaults fills zero-valued fields with defaults
func applyDefaults(config *Config) *Config {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.IDTokenTTL == 0 {
		config.IDTokenTTL = DefaultIDTokenTTL
	}
	if config.BaselineScopes == nil {
		config.BaselineScopes = DefaultBaselineScopes
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return config
}
