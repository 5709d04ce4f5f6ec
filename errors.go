package oauth

import "github.com/faouziMohamed/mail-aliases/server"

// OAuthError represents an OAuth 2.0 error response
type OAuthError = server.OAuthError

// OAuth error codes, re-exported from the engine
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeInvalidScope            = server.ErrorCodeInvalidScope
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeServerError             = server.ErrorCodeServerError
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
	ErrorCodeRateLimitExceeded       = server.ErrorCodeRateLimitExceeded
	ErrorCodeTemporarilyUnavailable  = server.ErrorCodeTemporarilyUnavailable
)

// Error constructors, re-exported from the engine
var (
	NewOAuthError              = server.NewOAuthError
	ErrInvalidRequest          = server.ErrInvalidRequest
	ErrInvalidGrant            = server.ErrInvalidGrant
	ErrInvalidClient           = server.ErrInvalidClient
	ErrInvalidScope            = server.ErrInvalidScope
	ErrUnsupportedGrantType    = server.ErrUnsupportedGrantType
	ErrUnsupportedResponseType = server.ErrUnsupportedResponseType
	ErrServerError             = server.ErrServerError
	ErrAccessDenied            = server.ErrAccessDenied
	ErrRateLimitExceeded       = server.ErrRateLimitExceeded
	ErrTemporarilyUnavailable  = server.ErrTemporarilyUnavailable
)
