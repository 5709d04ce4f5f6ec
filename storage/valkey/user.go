package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/faouziMohamed/mail-aliases/storage"
)

// ============================================================
// UserStore Implementation
// ============================================================

// SaveUser saves a user account and maintains the email index
func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("invalid user")
	}
	if user.Email == "" {
		return fmt.Errorf("user email cannot be empty")
	}

	// Keep the email index consistent across email changes
	if existing, err := s.GetUser(ctx, user.ID); err == nil && existing.Email != user.Email {
		oldKey := s.userEmailKey(existing.Email)
		if err := s.client.Do(ctx, s.client.B().Del().Key(oldKey).Build()).Error(); err != nil {
			s.logger.Warn("Failed to delete stale email index",
				"user_id", user.ID,
				"error", err)
		}
	}

	data, err := json.Marshal(toUserJSON(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}

	key := s.userKey(user.ID)

	if err := s.client.Do(ctx, s.client.B().Set().Key(key).Value(string(data)).Build()).Error(); err != nil {
		return unavailable("failed to save user", err)
	}

	emailKey := s.userEmailKey(user.Email)
	if err := s.client.Do(ctx, s.client.B().Set().Key(emailKey).Value(user.ID).Build()).Error(); err != nil {
		return unavailable("failed to save email index", err)
	}

	s.logger.Debug("Saved user", "user_id", user.ID)
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID string) (*storage.User, error) {
	return getAndUnmarshal(ctx, s, s.userKey(userID), storage.ErrUserNotFound, fromUserJSON)
}

// GetUserByEmail retrieves a user by primary email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*storage.User, error) {
	emailKey := s.userEmailKey(email)

	userID, err := s.client.Do(ctx, s.client.B().Get().Key(emailKey).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrUserNotFound
		}
		return nil, unavailable("failed to get email index", err)
	}

	return s.GetUser(ctx, userID)
}
