package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/faouziMohamed/mail-aliases/internal/urlutil"
	"github.com/faouziMohamed/mail-aliases/internal/util"
	"github.com/faouziMohamed/mail-aliases/storage"
)

// SupportedResponseTypes is the flow set this server implements. Only the
// Authorization Code flow is supported; any other response_type combination
// is rejected.
var SupportedResponseTypes = []string{"code"}

// codeIssueAttempts bounds retry-on-collision when saving a fresh code
const codeIssueAttempts = 3

// AuthorizationRequest is a typed view of the authorize endpoint parameters.
// State is opaque and echoed back unmodified on every redirect.
type AuthorizationRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
}

// ConsentDecision carries the user's choice from the consent form. When
// SuggestedEmail or SuggestedName differ from the account defaults they
// override the claims sent to the client.
type ConsentDecision struct {
	Approved       bool
	SuggestedEmail string
	SuggestedName  string
}

// ValidateAuthorizationRequest checks an authorization request against the
// registered client and the supported flow set. Returns the client on
// success so callers can render the consent page.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*storage.Client, *OAuthError) {
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.store.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, ErrInvalidRequest("unknown client")
		}
		s.Logger.Error("Failed to look up client", "client_id", req.ClientID, "error", err)
		return nil, ErrTemporarilyUnavailable("storage unavailable")
	}

	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}
	if !client.AllowsRedirectURI(util.NormalizeRedirectURI(req.RedirectURI)) {
		s.Logger.Warn("Redirect URI not registered for client",
			"client_id", req.ClientID,
			"redirect_uri", req.RedirectURI)
		return nil, ErrInvalidRequest("redirect_uri is not registered for this client")
	}

	// Flow negotiation: only response_type=code is accepted, whether the
	// parameter is absent or carries extra tokens like "code token id_token".
	if req.ResponseType != "code" {
		if s.metrics != nil {
			s.metrics.RecordAuthorizationRequest(ctx, req.ClientID, "unsupported_flow")
		}
		return nil, ErrUnsupportedResponseType(
			fmt.Sprintf("unsupported response_type %q, supported flows: %s",
				req.ResponseType, strings.Join(SupportedResponseTypes, ", ")))
	}

	if s.metrics != nil {
		s.metrics.RecordAuthorizationRequest(ctx, req.ClientID, "valid")
	}

	return client, nil
}

// Approve records an "allow" consent decision: it mints a single-use
// authorization code bound to the client/user/scope/redirect_uri tuple,
// attaches the consent-time claim overrides, and returns the redirect URL
// carrying code and state.
func (s *Server) Approve(ctx context.Context, client *storage.Client, user *storage.User, req *AuthorizationRequest, decision *ConsentDecision, clientIP string) (string, *OAuthError) {
	now := s.Config.Now()

	authCode := &storage.AuthorizationCode{
		ClientID:    client.ClientID,
		UserID:      user.ID,
		RedirectURI: req.RedirectURI,
		Scope:       req.Scope,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.Config.AuthorizationCodeTTL),
	}

	// Only store overrides that differ from the account defaults
	if decision.SuggestedEmail != "" && decision.SuggestedEmail != user.Email {
		authCode.OverrideEmail = decision.SuggestedEmail
	}
	if decision.SuggestedName != "" && decision.SuggestedName != user.Name {
		authCode.OverrideName = decision.SuggestedName
	}

	// Codes are long random strings, so collisions are vanishingly rare;
	// retry a few times anyway rather than fail the consent.
	var saveErr error
	for attempt := 0; attempt < codeIssueAttempts; attempt++ {
		authCode.Code = generateRandomToken()
		saveErr = s.store.SaveAuthorizationCode(ctx, authCode)
		if saveErr == nil {
			break
		}
		if !errors.Is(saveErr, storage.ErrDuplicateAuthorizationCode) {
			break
		}
		s.Logger.Warn("Authorization code collision, retrying", "attempt", attempt+1)
	}
	if saveErr != nil {
		s.Logger.Error("Failed to save authorization code", "error", saveErr)
		return "", ErrServerError("failed to issue authorization code")
	}

	s.Auditor.LogConsentGranted(user.ID, client.ClientID, clientIP, req.Scope)
	s.Auditor.LogCodeIssued(user.ID, client.ClientID, clientIP)
	if s.metrics != nil {
		s.metrics.RecordConsentDecision(ctx, client.ClientID, true)
		s.metrics.RecordCodeIssued(ctx, client.ClientID)
	}

	s.Logger.Info("Authorization code issued",
		"client_id", client.ClientID,
		"scope", req.Scope)

	return urlutil.BuildURL(req.RedirectURI, map[string]string{
		"code":  authCode.Code,
		"state": req.State,
	}), nil
}

// Deny records a "deny" consent decision and returns the redirect URL
// carrying error=access_denied and the original state. No code is issued.
func (s *Server) Deny(ctx context.Context, client *storage.Client, user *storage.User, req *AuthorizationRequest, clientIP string) string {
	s.Auditor.LogConsentDenied(user.ID, client.ClientID, clientIP)
	if s.metrics != nil {
		s.metrics.RecordConsentDecision(ctx, client.ClientID, false)
	}

	s.Logger.Info("Authorization request denied by user", "client_id", client.ClientID)

	return urlutil.BuildURL(req.RedirectURI, map[string]string{
		"error": ErrorCodeAccessDenied,
		"state": req.State,
	})
}
