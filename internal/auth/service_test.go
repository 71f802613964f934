package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAccount(t *testing.T, id, name, email, password string) Account {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return Account{
		Identity: Identity{
			ID:            id,
			DisplayName:   name,
			Email:         email,
			Active:        true,
			Authenticated: true,
		},
		PasswordHash: string(h),
	}
}

func newTestService(t *testing.T, opts ServiceOptions, accounts ...Account) (*Service, *MemStore) {
	t.Helper()
	store := NewMemStore(accounts...)
	return NewService(nil, store, NewTokenIssuer(testSecret, "kbportal", time.Hour), opts), store
}

func TestService_Login(t *testing.T) {
	alice := testAccount(t, "u-1", "alice", "Alice@Example.com", "pw-alice")
	admin := testAccount(t, "u-2", "root", "root@example.com", "pw-root")
	admin.Admin = true

	inactive := testAccount(t, "u-3", "carol", "carol@example.com", "pw-carol")
	inactive.Active = false
	unverified := testAccount(t, "u-4", "dave", "dave@example.com", "pw-dave")
	unverified.Authenticated = false
	legacy := Account{Identity: Identity{ID: "u-5", DisplayName: "eve", Active: true, Authenticated: true}, PasswordHash: "pw-eve"}

	svc, _ := newTestService(t, ServiceOptions{}, alice, admin, inactive, unverified, legacy)
	ctx := context.Background()

	t.Run("by display name", func(t *testing.T) {
		res, err := svc.Login(ctx, "alice", "pw-alice")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, "u-1", res.User.ID)
		assert.False(t, res.User.Admin)
		assert.True(t, res.ExpiresAt.After(time.Now()))
	})

	t.Run("by email case-insensitively", func(t *testing.T) {
		res, err := svc.Login(ctx, " alice@example.COM ", "pw-alice")
		require.NoError(t, err)
		assert.Equal(t, "u-1", res.User.ID)
	})

	t.Run("admin flag carried into token", func(t *testing.T) {
		res, err := svc.Login(ctx, "root", "pw-root")
		require.NoError(t, err)
		assert.True(t, res.User.Admin)

		c, err := svc.tokens.Verify(res.Token)
		require.NoError(t, err)
		assert.True(t, c.IsAdmin)
	})

	refused := []struct{ name, login, password string }{
		{"wrong password", "alice", "nope"},
		{"unknown login", "mallory", "pw"},
		{"inactive account", "carol", "pw-carol"},
		{"unverified account", "dave", "pw-dave"},
		{"plaintext stored password", "eve", "pw-eve"},
	}
	for _, tt := range refused {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.login, tt.password)
			require.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestService_CheckFresh(t *testing.T) {
	alice := testAccount(t, "u-1", "alice", "alice@example.com", "pw")
	ctx := context.Background()

	t.Run("disabled account is rejected without cache", func(t *testing.T) {
		svc, store := newTestService(t, ServiceOptions{}, alice)

		_, err := svc.CheckFresh(ctx, Claims{ID: "u-1"})
		require.NoError(t, err)

		disabled := alice
		disabled.Active = false
		store.Put(disabled)

		_, err = svc.CheckFresh(ctx, Claims{ID: "u-1"})
		require.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("missing account", func(t *testing.T) {
		svc, _ := newTestService(t, ServiceOptions{})
		_, err := svc.CheckFresh(ctx, Claims{ID: "ghost"})
		require.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("cached result survives until ttl", func(t *testing.T) {
		svc, store := newTestService(t, ServiceOptions{FreshCacheSize: 8, FreshCacheTTL: time.Minute}, alice)

		_, err := svc.CheckFresh(ctx, Claims{ID: "u-1"})
		require.NoError(t, err)

		disabled := alice
		disabled.Active = false
		store.Put(disabled)

		id, err := svc.CheckFresh(ctx, Claims{ID: "u-1"})
		require.NoError(t, err)
		assert.Equal(t, "alice", id.DisplayName)
	})
}
