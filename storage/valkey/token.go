package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/faouziMohamed/mail-aliases/security"
	"github.com/faouziMohamed/mail-aliases/storage"
)

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken stores an issued access token with a TTL matching its
// lifetime, and records it in the user+client index used for revocation.
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	if token == nil || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}

	data, err := json.Marshal(toAccessTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	ttl := calculateTTL(token.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("access token already expired")
	}

	key := s.tokenKey(token.Token)

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return unavailable("failed to save access token", err)
	}

	// Index by user+client so replay-triggered revocation can find every
	// token issued to the pair. The set outlives its members slightly;
	// revocation tolerates dangling entries.
	indexKey := s.userClientKey(token.UserID, token.ClientID)
	if err := s.client.Do(ctx,
		s.client.B().Sadd().Key(indexKey).Member(token.Token).Build(),
	).Error(); err != nil {
		return unavailable("failed to index access token", err)
	}
	if err := s.client.Do(ctx,
		s.client.B().Expire().Key(indexKey).Seconds(int64(ttl.Seconds())+1).Build(),
	).Error(); err != nil {
		s.logger.Warn("Failed to set TTL on user+client token index",
			"user_id", token.UserID,
			"client_id", token.ClientID,
			"error", err)
	}

	s.logger.Debug("Saved access token",
		"token_prefix", logCredential(token.Token),
		"user_id", token.UserID,
		"client_id", token.ClientID)
	return nil
}

// GetAccessToken retrieves an access token by its opaque value
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	accessToken, err := getAndUnmarshal(ctx, s, s.tokenKey(token), storage.ErrAccessTokenNotFound, fromAccessTokenJSON)
	if err != nil {
		return nil, err
	}

	// TTL should handle this, but double-check
	if security.IsExpired(time.Now(), accessToken.ExpiresAt) {
		return nil, storage.ErrAccessTokenNotFound
	}

	return accessToken, nil
}

// DeleteAccessToken removes an access token and its index entry
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	accessToken, err := s.GetAccessToken(ctx, token)
	if err == nil {
		indexKey := s.userClientKey(accessToken.UserID, accessToken.ClientID)
		if err := s.client.Do(ctx,
			s.client.B().Srem().Key(indexKey).Member(token).Build(),
		).Error(); err != nil {
			s.logger.Warn("Failed to remove token from user+client index", "error", err)
		}
	}

	key := s.tokenKey(token)
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return unavailable("failed to delete access token", err)
	}

	s.logger.Debug("Deleted access token", "token_prefix", logCredential(token))
	return nil
}

// RevokeTokensForUserClient deletes every access token issued to the
// user+client pair. Returns the number of tokens revoked.
func (s *Store) RevokeTokensForUserClient(ctx context.Context, userID, clientID string) (int, error) {
	if userID == "" || clientID == "" {
		return 0, fmt.Errorf("userID and clientID cannot be empty")
	}

	indexKey := s.userClientKey(userID, clientID)

	members, err := s.client.Do(ctx, s.client.B().Smembers().Key(indexKey).Build()).AsStrSlice()
	if err != nil {
		if isNilError(err) {
			return 0, nil
		}
		return 0, unavailable("failed to read user+client token index", err)
	}

	revoked := 0
	for _, token := range members {
		key := s.tokenKey(token)
		deleted, err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).AsInt64()
		if err != nil {
			return revoked, unavailable("failed to delete access token", err)
		}
		if deleted > 0 {
			revoked++
			s.logger.Debug("Revoked access token",
				"user_id", userID,
				"client_id", clientID,
				"token_prefix", logCredential(token))
		}
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(indexKey).Build()).Error(); err != nil {
		s.logger.Warn("Failed to delete user+client token index", "error", err)
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
