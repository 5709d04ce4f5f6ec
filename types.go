package oauth

import (
	"net/http"

	"github.com/faouziMohamed/mail-aliases/server"
	"github.com/faouziMohamed/mail-aliases/storage"
)

// Authenticator resolves the resource owner behind a request. The embedding
// application implements it over its own session mechanism (cookies, etc.).
//
// UserFromRequest returns (nil, nil) when the request carries no
// authenticated session; an error means the lookup itself failed.
type Authenticator interface {
	UserFromRequest(r *http.Request) (*storage.User, error)
}

// AuthenticatorFunc adapts a function to the Authenticator interface
type AuthenticatorFunc func(r *http.Request) (*storage.User, error)

// UserFromRequest calls f
func (f AuthenticatorFunc) UserFromRequest(r *http.Request) (*storage.User, error) {
	return f(r)
}

// Wire types re-exported from the engine so embedding applications only
// import the root package.
type (
	// TokenResponse is the token endpoint success payload
	TokenResponse = server.TokenResponse

	// UserClaims is the user object embedded in token responses
	UserClaims = server.UserClaims

	// AuthorizationRequest is a typed view of the authorize endpoint parameters
	AuthorizationRequest = server.AuthorizationRequest

	// ConsentDecision carries the user's choice from the consent form
	ConsentDecision = server.ConsentDecision
)
