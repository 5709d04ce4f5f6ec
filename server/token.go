package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/faouziMohamed/mail-aliases/idtoken"
	"github.com/faouziMohamed/mail-aliases/internal/util"
	"github.com/faouziMohamed/mail-aliases/storage"
)

const (
	// accessTokenLength is the exact length of issued access tokens
	accessTokenLength = 40

	// accessTokenAlphabet is the charset access tokens are drawn from.
	// 40 characters over 62 symbols is about 238 bits of entropy.
	accessTokenAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// GrantTypeAuthorizationCode is the only supported grant type
	GrantTypeAuthorizationCode = "authorization_code"

	// TokenTypeBearer is the token_type reported in token responses
	TokenTypeBearer = "bearer"

	// ScopeOpenID triggers ID token issuance when granted
	ScopeOpenID = "openid"

	credentialLogLength = 8
)

// TokenResponse is the token endpoint success payload.
// Scope deliberately has no omitempty: the empty string is part of the wire
// contract when only baseline scopes were granted.
type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int64       `json:"expires_in"`
	Scope       string      `json:"scope"`
	User        *UserClaims `json:"user"`
	IDToken     string      `json:"id_token,omitempty"`
}

// UserClaims is the user object embedded in token responses. It reflects the
// claim overrides the user chose at consent time, not only the account
// defaults. AvatarURL serializes as null when the account has none.
type UserClaims struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"email_verified"`
	Name          string  `json:"name"`
	AvatarURL     *string `json:"avatar_url"`
	Client        string  `json:"client"`
}

// AuthenticateClient verifies HTTP Basic client credentials against the
// stored bcrypt hash. Both the unknown-client and wrong-secret cases cost a
// bcrypt comparison and report the same error, so the endpoint cannot be
// used to enumerate client IDs.
func (s *Server) AuthenticateClient(ctx context.Context, clientID, clientSecret, clientIP string) (*storage.Client, *OAuthError) {
	if clientID == "" {
		s.Auditor.LogClientAuthFailure(clientID, clientIP, "missing_credentials")
		return nil, ErrInvalidClient("client authentication required")
	}

	err := s.store.ValidateClientSecret(ctx, clientID, clientSecret)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, ErrTemporarilyUnavailable("storage unavailable")
		}
		s.Logger.Debug("Client authentication failed",
			"client_id", clientID,
			"reason", err.Error())
		s.Auditor.LogClientAuthFailure(clientID, clientIP, "invalid_credentials")
		return nil, ErrInvalidClient("invalid client credentials")
	}

	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		s.Logger.Error("Failed to load client after authentication", "client_id", clientID, "error", err)
		return nil, ErrServerError("failed to load client")
	}

	return client, nil
}

// Exchange redeems an authorization code for an access token and, when the
// openid scope was granted, a signed ID token. The redemption is atomic:
// exactly one of any set of concurrent exchanges of the same code succeeds.
// A redemption attempt on an already-used code revokes every token issued to
// the user+client pair.
func (s *Server) Exchange(ctx context.Context, client *storage.Client, grantType, code, clientIP string) (*TokenResponse, *OAuthError) {
	if grantType != GrantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType(
			fmt.Sprintf("unsupported grant_type %q, supported: %s", grantType, GrantTypeAuthorizationCode))
	}
	if code == "" {
		return nil, ErrInvalidRequest("code is required")
	}

	authCode, err := s.store.AtomicRedeemAuthorizationCode(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrAuthorizationCodeUsed) && authCode != nil {
			// Replay of an already-redeemed code indicates the code leaked.
			// Revoke everything issued from the first redemption.
			revoked, revokeErr := s.store.RevokeTokensForUserClient(ctx, authCode.UserID, authCode.ClientID)
			if revokeErr != nil {
				s.Logger.Error("Failed to revoke tokens after code replay", "error", revokeErr)
			}

			s.Logger.Error("Authorization code replay detected, tokens revoked",
				"client_id", client.ClientID,
				"tokens_revoked", revoked)
			s.Auditor.LogCodeReplayDetected(authCode.UserID, authCode.ClientID, clientIP, revoked)
			if s.metrics != nil {
				s.metrics.RecordCodeReuseDetected(ctx)
				s.metrics.RecordCodeExchange(ctx, client.ClientID, false)
			}

			return nil, ErrInvalidGrant("invalid grant")
		}

		if errors.Is(err, storage.ErrUnavailable) {
			return nil, ErrTemporarilyUnavailable("storage unavailable")
		}

		// Not found, expired, or replayed. One generic error for all of
		// them; the detail goes to the debug log only.
		s.Logger.Debug("Authorization code redemption failed",
			"reason", err.Error(),
			"client_id", client.ClientID,
			"code_prefix", util.SafeTruncate(code, credentialLogLength))
		if s.metrics != nil {
			s.metrics.RecordCodeExchange(ctx, client.ClientID, false)
		}

		return nil, ErrInvalidGrant("invalid grant")
	}

	// Codes are bound to the client they were issued to
	if authCode.ClientID != client.ClientID {
		s.Logger.Debug("Authorization code client mismatch",
			"bound_client_id", authCode.ClientID,
			"presented_client_id", client.ClientID,
			"code_prefix", util.SafeTruncate(code, credentialLogLength))
		if s.metrics != nil {
			s.metrics.RecordCodeExchange(ctx, client.ClientID, false)
		}
		return nil, ErrInvalidGrant("invalid grant")
	}

	user, err := s.store.GetUser(ctx, authCode.UserID)
	if err != nil {
		s.Logger.Error("Failed to load user for token issuance", "error", err)
		return nil, ErrServerError("failed to load user")
	}

	accessToken, err := generateAccessToken()
	if err != nil {
		s.Logger.Error("Failed to generate access token", "error", err)
		return nil, ErrServerError("failed to generate access token")
	}

	now := s.Config.Now()
	record := &storage.AccessToken{
		Token:     accessToken,
		UserID:    user.ID,
		ClientID:  client.ClientID,
		Scope:     authCode.Scope,
		CreatedAt: now,
		ExpiresAt: now.Add(s.Config.AccessTokenTTL),
	}
	if err := s.store.SaveAccessToken(ctx, record); err != nil {
		s.Logger.Error("Failed to save access token", "error", err)
		return nil, ErrServerError("failed to save access token")
	}

	// Apply the claim overrides captured at consent time
	email := user.Email
	if authCode.OverrideEmail != "" {
		email = authCode.OverrideEmail
	}
	name := user.Name
	if authCode.OverrideName != "" {
		name = authCode.OverrideName
	}

	var avatarURL *string
	if user.AvatarURL != "" {
		avatarURL = &user.AvatarURL
	}

	resp := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.Config.AccessTokenTTL.Seconds()),
		Scope:       s.echoScope(authCode.Scope),
		User: &UserClaims{
			ID:            user.ID,
			Email:         email,
			EmailVerified: user.EmailVerified,
			Name:          name,
			AvatarURL:     avatarURL,
			Client:        client.ClientName,
		},
	}

	withIDToken := hasScope(authCode.Scope, ScopeOpenID)
	if withIDToken {
		if s.signer == nil {
			s.Logger.Error("openid scope granted but no signing key configured")
			return nil, ErrServerError("id token signing not configured")
		}
		signed, err := s.signer.Sign(idtoken.Profile{
			Subject:       user.ID,
			Email:         email,
			EmailVerified: user.EmailVerified,
			Name:          name,
		}, client.ClientID)
		if err != nil {
			s.Logger.Error("Failed to sign id token", "error", err)
			return nil, ErrServerError("failed to sign id token")
		}
		resp.IDToken = signed
		if s.metrics != nil {
			s.metrics.RecordIDTokenSigned(ctx, client.ClientID)
		}
	}

	s.Auditor.LogTokenIssued(user.ID, client.ClientID, clientIP, authCode.Scope, withIDToken)
	if s.metrics != nil {
		s.metrics.RecordCodeExchange(ctx, client.ClientID, true)
		s.metrics.RecordTokenIssued(ctx, client.ClientID, withIDToken)
	}

	s.Logger.Info("Access token issued",
		"client_id", client.ClientID,
		"scope", authCode.Scope,
		"id_token", withIDToken)

	return resp, nil
}

// echoScope returns the granted scopes beyond the baseline set, preserving
// request order. Baseline scopes (openid, profile, email by default) are
// implicit and never echoed, so the typical response scope is "".
func (s *Server) echoScope(granted string) string {
	baseline := make(map[string]bool, len(s.Config.BaselineScopes))
	for _, scope := range s.Config.BaselineScopes {
		baseline[scope] = true
	}

	var extra []string
	for _, scope := range strings.Fields(granted) {
		if !baseline[scope] {
			extra = append(extra, scope)
		}
	}
	return strings.Join(extra, " ")
}

// hasScope reports whether the space-delimited scope string contains name
func hasScope(scope, name string) bool {
	for _, s := range strings.Fields(scope) {
		if s == name {
			return true
		}
	}
	return false
}

// generateAccessToken produces an opaque token of exactly accessTokenLength
// characters over accessTokenAlphabet, using rejection sampling so every
// character is uniformly distributed.
func generateAccessToken() (string, error) {
	token := make([]byte, 0, accessTokenLength)
	buf := make([]byte, accessTokenLength*2)

	for len(token) < accessTokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 below 256; rejecting
			// bytes above it keeps the distribution uniform.
			if b >= 248 {
				continue
			}
			token = append(token, accessTokenAlphabet[b%62])
			if len(token) == accessTokenLength {
				break
			}
		}
	}

	return string(token), nil
}
