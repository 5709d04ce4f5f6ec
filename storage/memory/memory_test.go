package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/faouziMohamed/mail-aliases/internal/testutil"
	"github.com/faouziMohamed/mail-aliases/security"
	"github.com/faouziMohamed/mail-aliases/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func TestClientLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	testutil.AssertNoError(t, s.SaveClient(ctx, client))

	got, err := s.GetClient(ctx, client.ClientID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.ClientName, client.ClientName)

	_, err = s.GetClient(ctx, "unknown")
	if !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient(unknown) error = %v, want ErrClientNotFound", err)
	}

	clients, err := s.ListClients(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(clients), 1)
}

func TestSaveClient_Invalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	testutil.AssertError(t, s.SaveClient(ctx, nil))
	testutil.AssertError(t, s.SaveClient(ctx, &storage.Client{}))
}

func TestValidateClientSecret(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	testutil.AssertNoError(t, s.SaveClient(ctx, client))

	t.Run("correct secret", func(t *testing.T) {
		testutil.AssertNoError(t, s.ValidateClientSecret(ctx, client.ClientID, testutil.TestClientSecret))
	})

	t.Run("wrong secret", func(t *testing.T) {
		err := s.ValidateClientSecret(ctx, client.ClientID, "wrong")
		if !errors.Is(err, storage.ErrInvalidClientSecret) {
			t.Errorf("error = %v, want ErrInvalidClientSecret", err)
		}
	})

	t.Run("unknown client", func(t *testing.T) {
		err := s.ValidateClientSecret(ctx, "unknown", testutil.TestClientSecret)
		if !errors.Is(err, storage.ErrClientNotFound) {
			t.Errorf("error = %v, want ErrClientNotFound", err)
		}
	})
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := testutil.GenerateTestUser()
	testutil.AssertNoError(t, s.SaveUser(ctx, user))

	got, err := s.GetUser(ctx, user.ID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Email, user.Email)

	byEmail, err := s.GetUserByEmail(ctx, user.Email)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, byEmail.ID, user.ID)

	_, err = s.GetUser(ctx, "unknown")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetUser(unknown) error = %v, want ErrUserNotFound", err)
	}

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("GetUserByEmail(unknown) error = %v, want ErrUserNotFound", err)
	}
}

func TestSaveUser_EmailChangeReindexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := testutil.GenerateTestUser()
	testutil.AssertNoError(t, s.SaveUser(ctx, user))

	updated := *user
	updated.Email = "new@wick.com"
	testutil.AssertNoError(t, s.SaveUser(ctx, &updated))

	if _, err := s.GetUserByEmail(ctx, user.Email); !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("old email still resolves, error = %v", err)
	}

	got, err := s.GetUserByEmail(ctx, "new@wick.com")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.ID, user.ID)
}

func TestAuthorizationCodeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	t.Run("duplicate save fails", func(t *testing.T) {
		err := s.SaveAuthorizationCode(ctx, code)
		if !errors.Is(err, storage.ErrDuplicateAuthorizationCode) {
			t.Errorf("error = %v, want ErrDuplicateAuthorizationCode", err)
		}
	})

	t.Run("get does not consume", func(t *testing.T) {
		got, err := s.GetAuthorizationCode(ctx, code.Code)
		testutil.AssertNoError(t, err)
		testutil.AssertFalse(t, got.Used, "code should not be marked used by Get")
	})

	t.Run("redeem succeeds once", func(t *testing.T) {
		got, err := s.AtomicRedeemAuthorizationCode(ctx, code.Code)
		testutil.AssertNoError(t, err)
		testutil.AssertTrue(t, got.Used, "redeemed code should be marked used")
		testutil.AssertEqual(t, got.ClientID, code.ClientID)
	})

	t.Run("second redeem returns used with stale record", func(t *testing.T) {
		got, err := s.AtomicRedeemAuthorizationCode(ctx, code.Code)
		if !errors.Is(err, storage.ErrAuthorizationCodeUsed) {
			t.Fatalf("error = %v, want ErrAuthorizationCodeUsed", err)
		}
		if got == nil {
			t.Fatal("stale record should be returned on replay")
		}
		testutil.AssertEqual(t, got.UserID, code.UserID)
	})

	t.Run("delete", func(t *testing.T) {
		testutil.AssertNoError(t, s.DeleteAuthorizationCode(ctx, code.Code))
		_, err := s.GetAuthorizationCode(ctx, code.Code)
		if !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
			t.Errorf("error = %v, want ErrAuthorizationCodeNotFound", err)
		}
	})
}

func TestAtomicRedeem_NotFound(t *testing.T) {
	s := newTestStore(t)

	got, err := s.AtomicRedeemAuthorizationCode(context.Background(), "missing")
	if !errors.Is(err, storage.ErrAuthorizationCodeNotFound) {
		t.Errorf("error = %v, want ErrAuthorizationCodeNotFound", err)
	}
	if got != nil {
		t.Error("record should be nil for unknown code")
	}
}

func TestAtomicRedeem_Expired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mock := testutil.NewMockTime(time.Now())
	s.now = mock.Now

	code := testutil.GenerateTestAuthorizationCode()
	code.ExpiresAt = mock.Now().Add(10 * time.Minute)
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	mock.Advance(11 * time.Minute)

	got, err := s.AtomicRedeemAuthorizationCode(ctx, code.Code)
	if !errors.Is(err, storage.ErrAuthorizationCodeExpired) {
		t.Errorf("error = %v, want ErrAuthorizationCodeExpired", err)
	}
	if got != nil {
		t.Error("record should be nil for expired code")
	}
}

func TestAtomicRedeem_ReplayAfterExpiryStillReportsUsed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mock := testutil.NewMockTime(time.Now())
	s.now = mock.Now

	code := testutil.GenerateTestAuthorizationCode()
	code.ExpiresAt = mock.Now().Add(10 * time.Minute)
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	_, err := s.AtomicRedeemAuthorizationCode(ctx, code.Code)
	testutil.AssertNoError(t, err)

	// A replay arriving after the code's validity window must still be
	// reported as reuse, with the stale record, so the caller revokes the
	// tokens from the first redemption.
	mock.Advance(11 * time.Minute)

	got, err := s.AtomicRedeemAuthorizationCode(ctx, code.Code)
	if !errors.Is(err, storage.ErrAuthorizationCodeUsed) {
		t.Fatalf("error = %v, want ErrAuthorizationCodeUsed", err)
	}
	if got == nil {
		t.Fatal("stale record should be returned on replay")
	}
	testutil.AssertEqual(t, got.UserID, code.UserID)
	testutil.AssertEqual(t, got.ClientID, code.ClientID)
}

func TestAtomicRedeem_ExactlyOnceUnderConcurrency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	code := testutil.GenerateTestAuthorizationCode()
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	const workers = 50
	var wg sync.WaitGroup
	var successes, replays int
	var mu sync.Mutex

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AtomicRedeemAuthorizationCode(ctx, code.Code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, storage.ErrAuthorizationCodeUsed):
				replays++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
	if replays != workers-1 {
		t.Errorf("replays = %d, want %d", replays, workers-1)
	}
}

func TestAccessTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	token := &storage.AccessToken{
		Token:     testutil.GenerateRandomString(40),
		UserID:    "test-user-123",
		ClientID:  "test-client-id",
		Scope:     "",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, token))

	got, err := s.GetAccessToken(ctx, token.Token)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.UserID, token.UserID)

	testutil.AssertNoError(t, s.DeleteAccessToken(ctx, token.Token))
	_, err = s.GetAccessToken(ctx, token.Token)
	if !errors.Is(err, storage.ErrAccessTokenNotFound) {
		t.Errorf("error = %v, want ErrAccessTokenNotFound", err)
	}
}

func TestGetAccessToken_Expired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mock := testutil.NewMockTime(time.Now())
	s.now = mock.Now

	token := &storage.AccessToken{
		Token:     testutil.GenerateRandomString(40),
		UserID:    "test-user-123",
		ClientID:  "test-client-id",
		ExpiresAt: mock.Now().Add(time.Hour),
	}
	testutil.AssertNoError(t, s.SaveAccessToken(ctx, token))

	mock.Advance(2 * time.Hour)

	_, err := s.GetAccessToken(ctx, token.Token)
	if !errors.Is(err, storage.ErrAccessTokenNotFound) {
		t.Errorf("error = %v, want ErrAccessTokenNotFound", err)
	}
}

func TestRevokeTokensForUserClient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	save := func(user, client string) {
		t.Helper()
		testutil.AssertNoError(t, s.SaveAccessToken(ctx, &storage.AccessToken{
			Token:     testutil.GenerateRandomString(40),
			UserID:    user,
			ClientID:  client,
			ExpiresAt: time.Now().Add(time.Hour),
		}))
	}

	save("user-a", "client-1")
	save("user-a", "client-1")
	save("user-a", "client-2")
	save("user-b", "client-1")

	revoked, err := s.RevokeTokensForUserClient(ctx, "user-a", "client-1")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, revoked, 2)

	// Tokens for other pairs survive
	testutil.AssertEqual(t, s.tokensCountAtomic.Load(), int64(2))

	_, err = s.RevokeTokensForUserClient(ctx, "", "client-1")
	testutil.AssertError(t, err)
}

func TestCleanup_RemovesExpiredEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mock := testutil.NewMockTime(time.Now())
	s.now = mock.Now

	code := testutil.GenerateTestAuthorizationCode()
	code.ExpiresAt = mock.Now().Add(10 * time.Minute)
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	testutil.AssertNoError(t, s.SaveAccessToken(ctx, &storage.AccessToken{
		Token:     testutil.GenerateRandomString(40),
		UserID:    "u",
		ClientID:  "c",
		ExpiresAt: mock.Now().Add(time.Hour),
	}))

	mock.Advance(2 * time.Hour)
	s.cleanup()

	testutil.AssertEqual(t, s.codesCountAtomic.Load(), int64(0))
	testutil.AssertEqual(t, s.tokensCountAtomic.Load(), int64(0))
}

func TestClaimOverrideEncryptionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, err := security.GenerateKey()
	testutil.AssertNoError(t, err)
	enc, err := security.NewEncryptor(key)
	testutil.AssertNoError(t, err)
	s.SetEncryptor(enc)

	code := testutil.GenerateTestAuthorizationCode()
	code.OverrideEmail = "alias@aliases.example.com"
	code.OverrideName = "Alias Name"
	testutil.AssertNoError(t, s.SaveAuthorizationCode(ctx, code))

	// Stored form must not contain the plaintext
	s.mu.RLock()
	stored := s.codes[code.Code]
	s.mu.RUnlock()
	testutil.AssertNotEqual(t, stored.OverrideEmail, "alias@aliases.example.com")

	got, err := s.AtomicRedeemAuthorizationCode(ctx, code.Code)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.OverrideEmail, "alias@aliases.example.com")
	testutil.AssertEqual(t, got.OverrideName, "Alias Name")
}
