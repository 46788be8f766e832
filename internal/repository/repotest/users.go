package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskSync/internal/identity"
	"taskSync/internal/models/user"
	"taskSync/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(email string) *user.User {
	return &user.User{
		ID:           user.IdentityFor(email),
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func newSession(userID string, expiresAt time.Time) *user.Session {
	return &user.Session{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: expiresAt.Add(-time.Hour),
		ExpiresAt: expiresAt,
	}
}

// RunUserStoreContract проверяет хранилище пользователей и сессий
func RunUserStoreContract(t *testing.T, store identity.UserStore) {
	ctx := context.Background()

	t.Run("create and get user", func(t *testing.T) {
		email := uuid.NewString() + "@x.com"
		u := newUser(email)
		require.NoError(t, store.CreateUser(ctx, u))

		got, err := store.GetUserByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
		assert.Equal(t, "hash", got.PasswordHash)
		assert.True(t, u.CreatedAt.Equal(got.CreatedAt))

		err = store.CreateUser(ctx, newUser(email))
		assert.True(t, errors.Is(err, repository.ErrAlreadyExists))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.GetUserByEmail(ctx, uuid.NewString()+"@x.com")
		assert.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("delete session", func(t *testing.T) {
		u := newUser(uuid.NewString() + "@x.com")
		require.NoError(t, store.CreateUser(ctx, u))

		session := newSession(u.ID, time.Now().Add(time.Hour))
		require.NoError(t, store.CreateSession(ctx, session))
		assert.True(t, errors.Is(store.CreateSession(ctx, session), repository.ErrAlreadyExists))

		require.NoError(t, store.DeleteSession(ctx, session.ID))
		assert.True(t, errors.Is(store.DeleteSession(ctx, session.ID), repository.ErrNotFound))
	})

	t.Run("delete expired sessions", func(t *testing.T) {
		u := newUser(uuid.NewString() + "@x.com")
		require.NoError(t, store.CreateUser(ctx, u))

		// далеко в будущем, чтобы не задеть сессии других подтестов
		now := time.Now().Add(100 * 24 * time.Hour).UTC()
		expired := newSession(u.ID, now.Add(-time.Hour))
		alive := newSession(u.ID, now.Add(1000*24*time.Hour))
		require.NoError(t, store.CreateSession(ctx, expired))
		require.NoError(t, store.CreateSession(ctx, alive))

		n, err := store.DeleteExpiredSessions(ctx, now)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		assert.True(t, errors.Is(store.DeleteSession(ctx, expired.ID), repository.ErrNotFound))
		assert.NoError(t, store.DeleteSession(ctx, alive.ID))
	})
}
