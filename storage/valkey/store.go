// Package valkey provides a Valkey-backed implementation of all storage
// interfaces for multi-instance deployments. Expiry is delegated to Valkey
// TTLs and the single-use code check runs as a Lua script so it stays atomic
// across server instances.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/faouziMohamed/mail-aliases/internal/util"
	"github.com/faouziMohamed/mail-aliases/security"
	"github.com/faouziMohamed/mail-aliases/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "ma:"

	// credentialLogLength is the number of characters to include when logging
	// codes and tokens
	credentialLogLength = 8

	// scanBatchSize is the number of keys to fetch per SCAN iteration
	scanBatchSize = 100

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// dummyBcryptHash is compared against when a client does not exist, so
	// ValidateClientSecret takes the same time either way.
	dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
)

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "ma:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of storage.Store.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	// encryptor provides optional claim override encryption at rest.
	// Access must be synchronized via encryptorMu.
	encryptor   *security.Encryptor
	encryptorMu sync.RWMutex
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.UserStore   = (*Store)(nil)
	_ storage.FlowStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
	_ storage.Store       = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetEncryptor sets the encryptor for claim overrides at rest. When set, the
// user-chosen email and name inside authorization code records are encrypted
// before storing in Valkey and decrypted when retrieved. The used and
// expires_at fields stay plaintext so the redeem Lua script can read them.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptorMu.Lock()
	defer s.encryptorMu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Claim override encryption at rest enabled for Valkey storage")
	}
}

// getEncryptor returns the current encryptor (thread-safe)
func (s *Store) getEncryptor() *security.Encryptor {
	s.encryptorMu.RLock()
	defer s.encryptorMu.RUnlock()
	return s.encryptor
}

// ============================================================
// Key Helpers
// ============================================================

// clientKey returns the key for a client: {prefix}client:{clientID}
func (s *Store) clientKey(clientID string) string {
	return fmt.Sprintf("%sclient:%s", s.prefix, clientID)
}

// userKey returns the key for a user: {prefix}user:{userID}
func (s *Store) userKey(userID string) string {
	return fmt.Sprintf("%suser:%s", s.prefix, userID)
}

// userEmailKey returns the key for the email index: {prefix}useremail:{email}
func (s *Store) userEmailKey(email string) string {
	return fmt.Sprintf("%suseremail:%s", s.prefix, email)
}

// codeKey returns the key for an authorization code: {prefix}code:{code}
func (s *Store) codeKey(code string) string {
	return fmt.Sprintf("%scode:%s", s.prefix, code)
}

// tokenKey returns the key for an access token: {prefix}token:{token}
func (s *Store) tokenKey(token string) string {
	return fmt.Sprintf("%stoken:%s", s.prefix, token)
}

// userClientKey returns the key of the set tracking tokens issued to a
// user+client pair: {prefix}userclient:{userID}:{clientID}
func (s *Store) userClientKey(userID, clientID string) string {
	return fmt.Sprintf("%suserclient:%s:%s", s.prefix, userID, clientID)
}

// ============================================================
// Lua Scripts for Atomic Operations
// ============================================================

// luaAtomicRedeemCode atomically checks that an authorization code is unused
// and marks it used. Only ONE concurrent redemption of the same code can
// succeed; the rest observe the used flag set by the winner.
//
// KEYS[1] = code key (e.g., "ma:code:abc123")
// ARGV[1] = current Unix timestamp in seconds, with the clock-skew grace
//   already subtracted by the caller (for expiry check)
//
/// Returns:
//   - Original JSON data if the code was unused and is now marked used
//   - "NOT_FOUND" if the key doesn't exist in Valkey
//   - "EXPIRED" if the code has expired (ARGV[1] > code.expires_at)
//   - "ALREADY_USED:<json>" if the code was already used (record returned so
//     the caller can revoke tokens from the first redemption)
//
// The used check comes before expiry so replay detection covers the code's
// whole retention window.
const luaAtomicRedeemCode = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end

local code = cjson.decode(data)

-- Check if already used
if code.used then
    return 'ALREADY_USED:' .. data
end

-- Check if expired
local now = tonumber(ARGV[1])
local expiresAt = tonumber(code.expires_at)
if expiresAt and now > expiresAt then
    return 'EXPIRED'
end

-- Mark as used and save
code.used = true
redis.call('SET', KEYS[1], cjson.encode(code), 'KEEPTTL')

return data
`

// ============================================================
// JSON Serialization Helpers
// ============================================================

// clientJSON is the JSON representation of an OAuth client
type clientJSON struct {
	ClientID         string   `json:"client_id"`
	ClientSecretHash string   `json:"client_secret_hash,omitempty"`
	ClientName       string   `json:"client_name,omitempty"`
	OwnerUserID      string   `json:"owner_user_id,omitempty"`
	RedirectURIs     []string `json:"redirect_uris"`
	CreatedAt        int64    `json:"created_at"`
}

func toClientJSON(client *storage.Client) *clientJSON {
	return &clientJSON{
		ClientID:         client.ClientID,
		ClientSecretHash: client.ClientSecretHash,
		ClientName:       client.ClientName,
		OwnerUserID:      client.OwnerUserID,
		RedirectURIs:     client.RedirectURIs,
		CreatedAt:        client.CreatedAt.Unix(),
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	if j == nil {
		return nil
	}
	return &storage.Client{
		ClientID:         j.ClientID,
		ClientSecretHash: j.ClientSecretHash,
		ClientName:       j.ClientName,
		OwnerUserID:      j.OwnerUserID,
		RedirectURIs:     j.RedirectURIs,
		CreatedAt:        time.Unix(j.CreatedAt, 0),
	}
}

// userJSON is the JSON representation of a user account
type userJSON struct {
	ID            string   `json:"id"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name,omitempty"`
	AvatarURL     string   `json:"avatar_url,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
	CreatedAt     int64    `json:"created_at"`
}

func toUserJSON(user *storage.User) *userJSON {
	return &userJSON{
		ID:            user.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          user.Name,
		AvatarURL:     user.AvatarURL,
		Aliases:       user.Aliases,
		CreatedAt:     user.CreatedAt.Unix(),
	}
}

func fromUserJSON(j *userJSON) *storage.User {
	if j == nil {
		return nil
	}
	return &storage.User{
		ID:            j.ID,
		Email:         j.Email,
		EmailVerified: j.EmailVerified,
		Name:          j.Name,
		AvatarURL:     j.AvatarURL,
		Aliases:       j.Aliases,
		CreatedAt:     time.Unix(j.CreatedAt, 0),
	}
}

// authorizationCodeJSON is the JSON representation of an authorization code.
// The used and expires_at fields must stay plaintext; the redeem Lua script
// reads them via cjson.
type authorizationCodeJSON struct {
	Code          string `json:"code"`
	ClientID      string `json:"client_id"`
	UserID        string `json:"user_id"`
	RedirectURI   string `json:"redirect_uri"`
	Scope         string `json:"scope"`
	OverrideEmail string `json:"override_email,omitempty"`
	OverrideName  string `json:"override_name,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	ExpiresAt     int64  `json:"expires_at"`
	Used          bool   `json:"used"`
}

func toAuthorizationCodeJSON(code *storage.AuthorizationCode) *authorizationCodeJSON {
	return &authorizationCodeJSON{
		Code:          code.Code,
		ClientID:      code.ClientID,
		UserID:        code.UserID,
		RedirectURI:   code.RedirectURI,
		Scope:         code.Scope,
		OverrideEmail: code.OverrideEmail,
		OverrideName:  code.OverrideName,
		CreatedAt:     code.CreatedAt.Unix(),
		ExpiresAt:     code.ExpiresAt.Unix(),
		Used:          code.Used,
	}
}

func fromAuthorizationCodeJSON(j *authorizationCodeJSON) *storage.AuthorizationCode {
	if j == nil {
		return nil
	}
	return &storage.AuthorizationCode{
		Code:          j.Code,
		ClientID:      j.ClientID,
		UserID:        j.UserID,
		RedirectURI:   j.RedirectURI,
		Scope:         j.Scope,
		OverrideEmail: j.OverrideEmail,
		OverrideName:  j.OverrideName,
		CreatedAt:     time.Unix(j.CreatedAt, 0),
		ExpiresAt:     time.Unix(j.ExpiresAt, 0),
		Used:          j.Used,
	}
}

// accessTokenJSON is the JSON representation of an access token
type accessTokenJSON struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	Scope     string `json:"scope"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

func toAccessTokenJSON(token *storage.AccessToken) *accessTokenJSON {
	return &accessTokenJSON{
		Token:     token.Token,
		UserID:    token.UserID,
		ClientID:  token.ClientID,
		Scope:     token.Scope,
		CreatedAt: token.CreatedAt.Unix(),
		ExpiresAt: token.ExpiresAt.Unix(),
	}
}

func fromAccessTokenJSON(j *accessTokenJSON) *storage.AccessToken {
	if j == nil {
		return nil
	}
	return &storage.AccessToken{
		Token:     j.Token,
		UserID:    j.UserID,
		ClientID:  j.ClientID,
		Scope:     j.Scope,
		CreatedAt: time.Unix(j.CreatedAt, 0),
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
	}
}

// ============================================================
// Claim Override Encryption
// ============================================================

// encryptOverrides encrypts the consent-page claim overrides in a code JSON
// record. Overrides are the only PII a code record carries.
func (s *Store) encryptOverrides(j *authorizationCodeJSON) error {
	enc := s.getEncryptor()
	if enc == nil || !enc.IsEnabled() {
		return nil
	}

	if j.OverrideEmail != "" {
		v, err := enc.Encrypt(j.OverrideEmail)
		if err != nil {
			return fmt.Errorf("failed to encrypt override email: %w", err)
		}
		j.OverrideEmail = v
	}
	if j.OverrideName != "" {
		v, err := enc.Encrypt(j.OverrideName)
		if err != nil {
			return fmt.Errorf("failed to encrypt override name: %w", err)
		}
		j.OverrideName = v
	}
	return nil
}

// decryptOverrides decrypts the consent-page claim overrides in a code JSON record
func (s *Store) decryptOverrides(j *authorizationCodeJSON) error {
	enc := s.getEncryptor()
	if enc == nil || !enc.IsEnabled() {
		return nil
	}

	if j.OverrideEmail != "" {
		v, err := enc.Decrypt(j.OverrideEmail)
		if err != nil {
			return fmt.Errorf("failed to decrypt override email: %w", err)
		}
		j.OverrideEmail = v
	}
	if j.OverrideName != "" {
		v, err := enc.Decrypt(j.OverrideName)
		if err != nil {
			return fmt.Errorf("failed to decrypt override name: %w", err)
		}
		j.OverrideName = v
	}
	return nil
}

// ============================================================
// Helper methods
// ============================================================

// getAndUnmarshal is a generic helper for fetching a key from Valkey,
// unmarshalling the JSON data, and converting to the target type.
func getAndUnmarshal[J any, T any](
	ctx context.Context,
	s *Store,
	key string,
	notFoundErr error,
	fromJSON func(*J) *T,
) (*T, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, notFoundErr
		}
		return nil, unavailable("failed to get data", err)
	}

	var j J
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return fromJSON(&j), nil
}

// calculateTTL calculates the TTL for a key based on expiry time.
// Returns 0 if the key has already expired.
func calculateTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// isNilError checks if the error indicates a nil/not-found result from Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// unavailable wraps a Valkey transport failure with the
// storage.ErrUnavailable sentinel so callers report the backend as
// temporarily unavailable instead of a credential or grant failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", storage.ErrUnavailable, op, err)
}

// logCredential truncates a credential for logging
func logCredential(value string) string {
	return util.SafeTruncate(value, credentialLogLength)
}
