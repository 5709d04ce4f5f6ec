package server

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/faouziMohamed/mail-aliases/internal/util"
	"github.com/faouziMohamed/mail-aliases/storage"
)

// RegisterClient creates a new OAuth client owned by a user. The plaintext
// secret is returned exactly once; only its bcrypt hash is persisted.
// Registered redirect URIs are normalized so consent-time comparison is not
// sensitive to trailing slashes.
func (s *Server) RegisterClient(ctx context.Context, ownerUserID, name string, redirectURIs []string, clientIP string) (*storage.Client, string, error) {
	if name == "" {
		return nil, "", fmt.Errorf("client name is required")
	}
	if len(redirectURIs) == 0 {
		return nil, "", fmt.Errorf("at least one redirect URI is required")
	}

	normalized := make([]string, 0, len(redirectURIs))
	for _, uri := range redirectURIs {
		n := util.NormalizeRedirectURI(uri)
		if n == "" {
			return nil, "", fmt.Errorf("invalid redirect URI %q", uri)
		}
		normalized = append(normalized, n)
	}

	secret := generateRandomToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	client := &storage.Client{
		ClientID:         uuid.NewString(),
		ClientSecretHash: string(hash),
		ClientName:       name,
		OwnerUserID:      ownerUserID,
		RedirectURIs:     normalized,
		CreatedAt:        s.Config.Now(),
	}

	if err := s.store.SaveClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("failed to save client: %w", err)
	}

	s.Auditor.LogClientRegistered(client.ClientID, clientIP)
	s.Logger.Info("OAuth client registered",
		"client_id", client.ClientID,
		"client_name", name)

	return client, secret, nil
}

// CreateUser creates a user account. Email addresses are unique; creating a
// second account with the same email fails.
func (s *Server) CreateUser(ctx context.Context, email, name string) (*storage.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	if existing, err := s.store.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return nil, fmt.Errorf("user with email %s already exists", email)
	}

	user := &storage.User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		CreatedAt: s.Config.Now(),
	}

	if err := s.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	s.Logger.Info("User created", "user_id", user.ID)

	return user, nil
}
