package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/faouziMohamed/mail-aliases/security"
	"github.com/faouziMohamed/mail-aliases/storage"
)

// ============================================================
// FlowStore Implementation
// ============================================================

// SaveAuthorizationCode saves a freshly issued authorization code with a TTL
// matching its validity window. SET NX detects code collisions.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" {
		return fmt.Errorf("invalid authorization code")
	}

	j := toAuthorizationCodeJSON(code)
	if err := s.encryptOverrides(j); err != nil {
		return err
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	ttl := calculateTTL(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	key := s.codeKey(code.Code)

	// SET NX returns nil when the key already exists
	err = s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Nx().Ex(ttl).Build(),
	).Error()
	if err != nil {
		if isNilError(err) {
			return storage.ErrDuplicateAuthorizationCode
		}
		return unavailable("failed to save authorization code", err)
	}

	s.logger.Debug("Saved authorization code",
		"code_prefix", logCredential(code.Code),
		"client_id", code.ClientID)
	return nil
}

// GetAuthorizationCode retrieves an authorization code without consuming it.
// For redemption use AtomicRedeemAuthorizationCode instead.
func (s *Store) GetAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	key := s.codeKey(code)

	data, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrAuthorizationCodeNotFound
		}
		return nil, unavailable("failed to get authorization code", err)
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	if err := s.decryptOverrides(&j); err != nil {
		return nil, err
	}

	authCode := fromAuthorizationCodeJSON(&j)

	// TTL should handle this, but double-check
	if security.IsExpired(time.Now(), authCode.ExpiresAt) {
		return nil, storage.ErrAuthorizationCodeExpired
	}

	return authCode, nil
}

// AtomicRedeemAuthorizationCode atomically checks that a code is unused and
// marks it used. The check and the mark run as a single Lua script, so
// exactly one of any set of concurrent redemptions succeeds even across
// server instances.
//
// On ErrAuthorizationCodeUsed the stale record is returned alongside the
// error so the caller can revoke tokens issued from the first redemption.
func (s *Store) AtomicRedeemAuthorizationCode(ctx context.Context, code string) (*storage.AuthorizationCode, error) {
	key := s.codeKey(code)

	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaAtomicRedeemCode).
			Numkeys(1).
			Key(key).
			Arg(fmt.Sprintf("%d", time.Now().Add(-security.DefaultClockSkewGracePeriod).Unix())).
			Build(),
	).ToString()
	if err != nil {
		return nil, unavailable("failed to execute atomic code redemption", err)
	}

	switch {
	case result == "NOT_FOUND":
		return nil, storage.ErrAuthorizationCodeNotFound
	case result == "EXPIRED":
		return nil, storage.ErrAuthorizationCodeExpired
	case strings.HasPrefix(result, "ALREADY_USED:"):
		codeData := strings.TrimPrefix(result, "ALREADY_USED:")
		var j authorizationCodeJSON
		if err := json.Unmarshal([]byte(codeData), &j); err != nil {
			return nil, fmt.Errorf("%w: failed to parse replayed code", storage.ErrAuthorizationCodeUsed)
		}
		if err := s.decryptOverrides(&j); err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrAuthorizationCodeUsed, err)
		}
		return fromAuthorizationCodeJSON(&j), storage.ErrAuthorizationCodeUsed
	}

	// Success, parse the record from before it was marked used
	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(result), &j); err != nil {
		return nil, fmt.Errorf("failed to parse authorization code: %w", err)
	}

	if err := s.decryptOverrides(&j); err != nil {
		return nil, err
	}

	s.logger.Debug("Redeemed authorization code",
		"code_prefix", logCredential(code),
		"client_id", j.ClientID)

	authCode := fromAuthorizationCodeJSON(&j)
	authCode.Used = true
	return authCode, nil
}

// DeleteAuthorizationCode removes an authorization code
func (s *Store) DeleteAuthorizationCode(ctx context.Context, code string) error {
	key := s.codeKey(code)

	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return unavailable("failed to delete authorization code", err)
	}

	s.logger.Debug("Deleted authorization code")
	return nil
}
