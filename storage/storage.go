package storage

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by store implementations. Callers match with
// errors.Is; the flow layer maps them onto wire-level OAuth errors without
// leaking which condition occurred.
var (
	// ErrClientNotFound indicates the client ID is not registered
	ErrClientNotFound = errors.New("client not found")

	// ErrUserNotFound indicates the user ID or email is unknown
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidClientSecret indicates the presented secret does not match
	ErrInvalidClientSecret = errors.New("invalid client secret")

	// ErrAuthorizationCodeNotFound indicates the code does not exist or expired out of the store
	ErrAuthorizationCodeNotFound = errors.New("authorization code not found")

	// ErrAuthorizationCodeUsed indicates the code was already redeemed (replay)
	ErrAuthorizationCodeUsed = errors.New("authorization code already used")

	// ErrAuthorizationCodeExpired indicates the code exists but its validity window has passed
	ErrAuthorizationCodeExpired = errors.New("authorization code expired")

	// ErrDuplicateAuthorizationCode indicates a code collision on save
	ErrDuplicateAuthorizationCode = errors.New("authorization code already exists")

	// ErrAccessTokenNotFound indicates the access token does not exist or expired out of the store
	ErrAccessTokenNotFound = errors.New("access token not found")

	// ErrUnavailable indicates a transient backend failure; the caller may retry
	ErrUnavailable = errors.New("storage temporarily unavailable")
)

// ClientStore manages registered OAuth clients.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// SaveClient saves a registered client
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by ID
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret checks a client's secret against the stored hash.
	// Implementations must take the same amount of time whether the client
	// exists or not, so the token endpoint cannot be used as a client oracle.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// ListClients lists all registered clients (for admin purposes)
	ListClients(ctx context.Context) ([]*Client, error)
}

// UserStore manages resource-owner accounts. Authentication itself happens
// outside this module; the stores only resolve principals.
type UserStore interface {
	// SaveUser saves a user account
	SaveUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, userID string) (*User, error)

	// GetUserByEmail retrieves a user by primary email
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// FlowStore manages single-use authorization codes.
type FlowStore interface {
	// SaveAuthorizationCode stores a freshly issued code. Fails with
	// ErrDuplicateAuthorizationCode if the code string already exists.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves a code without consuming it
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// AtomicRedeemAuthorizationCode atomically checks that a code is unused
	// and marks it used. Exactly one of any set of concurrent calls for the
	// same code succeeds.
	//
	// On ErrAuthorizationCodeUsed the stale record is returned alongside the
	// error so the caller can revoke tokens issued from the first redemption.
	// For not-found and expired codes the record is nil.
	AtomicRedeemAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore manages issued access tokens.
type TokenStore interface {
	// SaveAccessToken stores an issued access token
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves an access token by its opaque value
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes an access token
	DeleteAccessToken(ctx context.Context, token string) error

	// RevokeTokensForUserClient deletes every access token issued to the
	// user+client pair. Called when authorization code replay is detected.
	// Returns the number of tokens revoked.
	RevokeTokensForUserClient(ctx context.Context, userID, clientID string) (int, error)
}

// Store combines all storage interfaces. Both bundled backends implement it.
type Store interface {
	ClientStore
	UserStore
	FlowStore
	TokenStore
}

// Client represents a registered OAuth client application.
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash, never the plaintext secret
	ClientName       string
	OwnerUserID      string
	RedirectURIs     []string
	CreatedAt        time.Time
}

// AllowsRedirectURI reports whether uri is registered for the client.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// User represents a resource-owner account.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
	// Aliases are additional addresses the user may present to clients
	// instead of the primary email.
	Aliases   []string
	CreatedAt time.Time
}

// AuthorizationCode represents a single-use authorization code bound to a
// client/user/scope/redirect_uri tuple. OverrideEmail and OverrideName carry
// the claim values the user chose on the consent page; when set they replace
// the account defaults in the token response and ID token.
type AuthorizationCode struct {
	Code          string
	ClientID      string
	UserID        string
	RedirectURI   string
	Scope         string
	OverrideEmail string
	OverrideName  string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Used          bool
}

// AccessToken represents an issued bearer token.
type AccessToken struct {
	Token     string
	UserID    string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}
