package security

// Event type constants for security audit logging.
const (
	// Authorization flow events

	// EventConsentGranted is logged when the user approves an authorization request
	EventConsentGranted = "consent_granted"

	// EventConsentDenied is logged when the user declines an authorization request
	EventConsentDenied = "consent_denied"

	// EventCodeIssued is logged when an authorization code is issued
	EventCodeIssued = "authorization_code_issued"

	// EventCodeReplayDetected is logged when a used authorization code is presented again
	EventCodeReplayDetected = "authorization_code_replay_detected"

	// Token lifecycle events

	// EventTokenIssued is logged when a new access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokensRevoked is logged when tokens for a user+client pair are revoked
	EventTokensRevoked = "tokens_revoked" //nolint:gosec // G101: event type name, not a credential

	// Client events

	// EventClientAuthFailed is logged when token endpoint client authentication fails
	EventClientAuthFailed = "client_auth_failed"

	// EventClientRegistered is logged when a new OAuth client is registered
	EventClientRegistered = "client_registered"

	// EventRateLimitExceeded is logged when a caller exceeds the request rate limit
	EventRateLimitExceeded = "rate_limit_exceeded"
)
