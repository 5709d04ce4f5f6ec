// Package memory provides an in-memory implementation of all storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/faouziMohamed/mail-aliases/instrumentation"
	"github.com/faouziMohamed/mail-aliases/internal/util"
	"github.com/faouziMohamed/mail-aliases/security"
	"github.com/faouziMohamed/mail-aliases/storage"
)

const (
	// credentialLogLength is the number of characters to include when logging
	// codes and tokens. Enough uniqueness for debugging without exposing the
	// credential.
	credentialLogLength = 8

	// dummyBcryptHash is compared against when a client does not exist, so
	// ValidateClientSecret takes the same time either way.
	dummyBcryptHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	clients      map[string]*storage.Client
	users        map[string]*storage.User
	usersByEmail map[string]string // email -> user ID
	codes        map[string]*storage.AuthorizationCode
	tokens       map[string]*storage.AccessToken

	// Security
	encryptor *security.Encryptor // claim override encryption at rest (optional)

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	meter           metric.Meter

	// Atomic counters for metrics (lock-free access during metric collection)
	clientsCountAtomic atomic.Int64
	usersCountAtomic   atomic.Int64
	codesCountAtomic   atomic.Int64
	tokensCountAtomic  atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	logger          *slog.Logger

	now func() time.Time
}

// Compile-time interface checks
var (
	_ storage.ClientStore = (*Store)(nil)
	_ storage.UserStore   = (*Store)(nil)
	_ storage.FlowStore   = (*Store)(nil)
	_ storage.TokenStore  = (*Store)(nil)
	_ storage.Store       = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		users:           make(map[string]*storage.User),
		usersByEmail:    make(map[string]string),
		codes:           make(map[string]*storage.AuthorizationCode),
		tokens:          make(map[string]*storage.AccessToken),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
		now:             time.Now,
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetEncryptor sets the encryptor for claim overrides at rest
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc != nil && enc.IsEnabled() {
		s.logger.Info("Claim override encryption at rest enabled for storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
		s.meter = inst.Meter("storage")
	}

	// Initialize atomic counters with current counts
	s.clientsCountAtomic.Store(int64(len(s.clients)))
	s.usersCountAtomic.Store(int64(len(s.users)))
	s.codesCountAtomic.Store(int64(len(s.codes)))
	s.tokensCountAtomic.Store(int64(len(s.tokens)))
	s.mu.Unlock()

	if inst != nil {
		err := inst.RegisterStorageSizeCallbacks(
			func() int64 { return s.clientsCountAtomic.Load() },
			func() int64 { return s.usersCountAtomic.Load() },
			func() int64 { return s.codesCountAtomic.Load() },
			func() int64 { return s.tokensCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register storage size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	close(s.stopCleanup)
}

// ============================================================
// ClientStore Implementation
// ============================================================

// SaveClient saves a registered client
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	ctx, span := s.startStorageSpan(ctx, "save_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_client", err, startTime)
	}()

	if client == nil || client.ClientID == "" {
		err = fmt.Errorf("invalid client")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.clients[client.ClientID]
	s.clients[client.ClientID] = client
	if !existed {
		s.clientsCountAtomic.Add(1)
	}

	s.logger.Debug("Saved client", "client_id", client.ClientID)
	return nil
}

// GetClient retrieves a client by ID
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "get_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_client", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return nil, err
	}

	return client, nil
}

// ValidateClientSecret checks a client's secret against the stored bcrypt hash.
// When the client does not exist, a dummy hash is compared anyway so the call
// takes the same time and cannot be used to enumerate client IDs.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	ctx, span := s.startStorageSpan(ctx, "validate_client_secret")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "validate_client_secret", err, startTime)
	}()

	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()

	hash := dummyBcryptHash
	if ok {
		hash = client.ClientSecretHash
	}

	compareErr := bcrypt.CompareHashAndPassword([]byte(hash), []byte(clientSecret))

	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrClientNotFound, clientID)
		return err
	}
	if compareErr != nil {
		err = storage.ErrInvalidClientSecret
		return err
	}

	return nil
}

// ListClients lists all registered clients
func (s *Store) ListClients(ctx context.Context) ([]*storage.Client, error) {
	ctx, span := s.startStorageSpan(ctx, "list_clients")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "list_clients", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	clients := make([]*storage.Client, 0, len(s.clients))
	for _, client := range s.clients {
		clients = append(clients, client)
	}

	return clients, nil
}

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser saves a user account and indexes it by email
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	ctx, span := s.startStorageSpan(ctx, "save_user")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_user", err, startTime)
	}()

	if user == nil || user.ID == "" {
		err = fmt.Errorf("invalid user")
		return err
	}
	if user.Email == "" {
		err = fmt.Errorf("user email cannot be empty")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, existed := s.users[user.ID]; existed {
		// Keep the email index consistent across email changes
		if existing.Email != user.Email {
			delete(s.usersByEmail, existing.Email)
		}
	} else {
		s.usersCountAtomic.Add(1)
	}

	s.users[user.ID] = user
	s.usersByEmail[user.Email] = user.ID

	s.logger.Debug("Saved user", "user_id", user.ID)
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID string) (*storage.User, error) {
	ctx, span := s.startStorageSpan(ctx, "get_user")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_user", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		err = fmt.Errorf("%w: %s", storage.ErrUserNotFound, userID)
		return nil, err
	}

	return user, nil
}

// GetUserByEmail retrieves a user by primary email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	ctx, span := s.startStorageSpan(ctx, "get_user_by_email")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_user_by_email", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.usersByEmail[email]
	if !ok {
		err = storage.ErrUserNotFound
		return nil, err
	}

	return s.users[userID], nil
}

// ============================================================
// FlowStore Implementation
// ============================================================

// SaveAuthorizationCode stores a freshly issued authorization code
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_authorization_code", err, startTime)
	}()

	if code == nil || code.Code == "" {
		err = fmt.Errorf("invalid authorization code")
		return err
	}

	stored := *code
	if encErr := s.encryptOverrides(&stored); encErr != nil {
		err = encErr
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		err = storage.ErrDuplicateAuthorizationCode
		return err
	}

	s.codes[code.Code] = &stored
	s.codesCountAtomic.Add(1)

	s.logger.Debug("Saved authorization code",
		"code", util.SafeTruncate(code.Code, credentialLogLength),
		"client_id", code.ClientID,
		"expires_at", code.ExpiresAt)
	return nil
}

// GetAuthorizationCode retrieves a code without consuming it
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "get_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_authorization_code", err, startTime)
	}()

	s.mu.RLock()
	enc := s.encryptor
	authCode, ok := s.codes[code]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	result := *authCode
	if decErr := decryptOverrides(&result, enc); decErr != nil {
		err = decErr
		return nil, err
	}

	return &result, nil
}

// AtomicRedeemAuthorizationCode atomically checks that a code is unused and
// marks it used. The write lock is held across the check and the mark, so
// exactly one of any set of concurrent calls for the same code succeeds.
func (s *Store) AtomicRedeemAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	ctx, span := s.startStorageSpan(ctx, "redeem_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "redeem_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.codes[code]
	if !ok {
		err = storage.ErrAuthorizationCodeNotFound
		return nil, err
	}

	// The used check comes before expiry so replay detection covers the
	// code's whole retention window, not just its validity window.
	if authCode.Used {
		// Return the stale record so the caller can revoke tokens issued
		// from the first redemption.
		result := *authCode
		if decErr := decryptOverrides(&result, s.encryptor); decErr != nil {
			err = decErr
			return nil, err
		}
		err = storage.ErrAuthorizationCodeUsed
		return &result, err
	}

	if security.IsExpired(s.now(), authCode.ExpiresAt) {
		err = storage.ErrAuthorizationCodeExpired
		return nil, err
	}

	result := *authCode
	if decErr := decryptOverrides(&result, s.encryptor); decErr != nil {
		err = decErr
		return nil, err
	}

	authCode.Used = true
	result.Used = true

	s.logger.Debug("Redeemed authorization code",
		"code", util.SafeTruncate(code, credentialLogLength),
		"client_id", authCode.ClientID)
	return &result, nil
}

// DeleteAuthorizationCode removes a code
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_authorization_code")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_authorization_code", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.codes[code]; existed {
		delete(s.codes, code)
		s.codesCountAtomic.Add(-1)
	}

	return nil
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken stores an issued access token
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "save_access_token", err, startTime)
	}()

	if token == nil || token.Token == "" {
		err = fmt.Errorf("invalid access token")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.tokens[token.Token]
	s.tokens[token.Token] = token
	if !existed {
		s.tokensCountAtomic.Add(1)
	}

	s.logger.Debug("Saved access token",
		"token", util.SafeTruncate(token.Token, credentialLogLength),
		"user_id", token.UserID,
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken retrieves an access token by its opaque value
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_access_token", err, startTime)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	accessToken, ok := s.tokens[token]
	if !ok {
		err = storage.ErrAccessTokenNotFound
		return nil, err
	}

	if security.IsExpired(s.now(), accessToken.ExpiresAt) {
		err = storage.ErrAccessTokenNotFound
		return nil, err
	}

	return accessToken, nil
}

// DeleteAccessToken removes an access token
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	ctx, span := s.startStorageSpan(ctx, "delete_access_token")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "delete_access_token", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, existed := s.tokens[token]; existed {
		delete(s.tokens, token)
		s.tokensCountAtomic.Add(-1)
	}

	return nil
}

// RevokeTokensForUserClient deletes every access token issued to the
// user+client pair. Returns the number of tokens revoked.
func (s *Store) RevokeTokensForUserClient(ctx context.Context, userID, clientID string) (int, error) {
	ctx, span := s.startStorageSpan(ctx, "revoke_tokens_for_user_client")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "revoke_tokens_for_user_client", err, startTime)
	}()

	if userID == "" || clientID == "" {
		err = fmt.Errorf("userID and clientID cannot be empty")
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for value, token := range s.tokens {
		if token.UserID == userID && token.ClientID == clientID {
			delete(s.tokens, value)
			s.tokensCountAtomic.Add(-1)
			revoked++

			s.logger.Debug("Revoked access token",
				"user_id", userID,
				"client_id", clientID,
				"token", util.SafeTruncate(value, credentialLogLength))
		}
	}

	if revoked > 0 {
		s.logger.Warn("Revoked all tokens for user+client",
			"user_id", userID,
			"client_id", clientID,
			"tokens_revoked", revoked,
			"reason", "authorization_code_reuse_detected")
	}

	return revoked, nil
}

// ============================================================
// Claim Override Encryption
// ============================================================

// encryptOverrides encrypts the consent-page claim overrides in place.
// Overrides are the only PII a code record carries.
func (s *Store) encryptOverrides(code *storage.AuthorizationCode) error {
	s.mu.RLock()
	enc := s.encryptor
	s.mu.RUnlock()

	if enc == nil || !enc.IsEnabled() {
		return nil
	}

	if code.OverrideEmail != "" {
		v, err := enc.Encrypt(code.OverrideEmail)
		if err != nil {
			return fmt.Errorf("failed to encrypt override email: %w", err)
		}
		code.OverrideEmail = v
	}
	if code.OverrideName != "" {
		v, err := enc.Encrypt(code.OverrideName)
		if err != nil {
			return fmt.Errorf("failed to encrypt override name: %w", err)
		}
		code.OverrideName = v
	}
	return nil
}

// decryptOverrides decrypts the consent-page claim overrides in place
func decryptOverrides(code *storage.AuthorizationCode, enc *security.Encryptor) error {
	if enc == nil || !enc.IsEnabled() {
		return nil
	}

	if code.OverrideEmail != "" {
		v, err := enc.Decrypt(code.OverrideEmail)
		if err != nil {
			return fmt.Errorf("failed to decrypt override email: %w", err)
		}
		code.OverrideEmail = v
	}
	if code.OverrideName != "" {
		v, err := enc.Decrypt(code.OverrideName)
		if err != nil {
			return fmt.Errorf("failed to decrypt override name: %w", err)
		}
		code.OverrideName = v
	}
	return nil
}

// ============================================================
// Cleanup
// ============================================================

// cleanupLoop periodically removes expired entries
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes expired authorization codes and access tokens
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0

	for code, authCode := range s.codes {
		if security.IsExpired(now, authCode.ExpiresAt) {
			delete(s.codes, code)
			s.codesCountAtomic.Add(-1)
			cleaned++
		}
	}

	for value, token := range s.tokens {
		if security.IsExpired(now, token.ExpiresAt) {
			delete(s.tokens, value)
			s.tokensCountAtomic.Add(-1)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String("operation", operation),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else if span != nil {
		span.SetStatus(codes.Ok, "")
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
