package server

import (
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/faouziMohamed/mail-aliases/idtoken"
	"github.com/faouziMohamed/mail-aliases/instrumentation"
	"github.com/faouziMohamed/mail-aliases/security"
	"github.com/faouziMohamed/mail-aliases/storage"
)

// Server implements the OAuth 2.0 Authorization Code flow with OIDC ID
// tokens. It coordinates request validation, consent, code redemption, and
// token issuance over the storage backends.
type Server struct {
	store   storage.Store
	signer  *idtoken.Signer
	Auditor *security.Auditor
	Logger  *slog.Logger
	Config  *Config

	inst    *instrumentation.Instrumentation
	metrics *instrumentation.Metrics
}

// New creates a new OAuth server
func New(store storage.Store, config *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config == nil {
		config = &Config{}
	}

	config = applyDefaults(config)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv := &Server{
		store:  store,
		Logger: config.Logger,
		Config: config,
	}

	if config.SigningKey != nil {
		signer, err := idtoken.NewSigner(config.Issuer, config.SigningKey, config.IDTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create id token signer: %w", err)
		}
		srv.signer = signer
	}

	srv.Auditor = security.NewAuditor(config.Logger, config.AuditEnabled)

	return srv, nil
}

// Signer returns the ID token signer, or nil when no signing key is configured.
func (s *Server) Signer() *idtoken.Signer {
	return s.signer
}

// Store returns the backing store.
func (s *Server) Store() storage.Store {
	return s.store
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation sets OpenTelemetry instrumentation for the server
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst != nil {
		s.metrics = inst.Metrics()
	}
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes, secrets, etc.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
