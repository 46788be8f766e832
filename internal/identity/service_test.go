package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskSync/internal/identity"
	"taskSync/internal/models/user"
	"taskSync/internal/repository"
	"taskSync/internal/repository/user/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mtx sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
}

func newService(t *testing.T, options ...identity.Option) (*identity.Service, *inmemory.UserStorage) {
	t.Helper()
	store := inmemory.NewUserStorage()
	options = append([]identity.Option{identity.WithBcryptCost(bcrypt.MinCost)}, options...)
	return identity.NewService(store, options...), store
}

func TestService_Register(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "success", email: "a@x.com", password: "pw1"},
		{name: "success - normalized", email: "  B@X.com ", password: "pw1"},
		{name: "error - invalid email", email: "not an email", password: "pw1", wantErr: identity.ErrInvalidEmail},
		{name: "error - display name", email: "Bob <bob@x.com>", password: "pw1", wantErr: identity.ErrInvalidEmail},
		{name: "error - empty password", email: "c@x.com", password: "", wantErr: identity.ErrEmptyPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)

			u, err := svc.Register(context.Background(), tt.email, tt.password)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, u)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.NormalizeEmail(tt.email), u.Email)
			assert.Equal(t, user.IdentityFor(tt.email), u.ID)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(tt.password)))
		})
	}
}

func TestService_RegisterDuplicate(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Register(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "A@x.com", "pw2")
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
}

func TestService_LogIn(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc, store := newService(t, identity.WithClock(clock.Now), identity.WithSessionTTL(time.Hour))

	_, err := svc.Register(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)

	tests := []struct {
		name    string
		creds   user.Credentials
		wantErr error
	}{
		{name: "success", creds: user.EmailPassword("a@x.com", "pw1")},
		{name: "success - mixed case", creds: user.Credentials{Email: "A@X.COM", Password: "pw1"}},
		{name: "error - wrong password", creds: user.EmailPassword("a@x.com", "pw2"), wantErr: identity.ErrInvalidCredentials},
		{name: "error - unknown user", creds: user.EmailPassword("b@x.com", "pw1"), wantErr: identity.ErrInvalidCredentials},
		{name: "error - empty", creds: user.Credentials{}, wantErr: identity.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.LogIn(context.Background(), tt.creds)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user.IdentityFor("a@x.com"), id.ID)
			assert.Equal(t, "a@x.com", id.Email)
			assert.Equal(t, clock.Now(), id.IssuedAt)
			assert.Equal(t, clock.Now().Add(time.Hour), id.ExpiresAt)

			session, err := store.GetSession(context.Background(), id.SessionID)
			require.NoError(t, err)
			assert.Equal(t, id.ID, session.UserID)
		})
	}
}

func TestService_LogOut(t *testing.T) {
	svc, store := newService(t)

	_, err := svc.Register(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)
	id, err := svc.LogIn(context.Background(), user.EmailPassword("a@x.com", "pw1"))
	require.NoError(t, err)

	require.NoError(t, svc.LogOut(context.Background(), id))
	_, err = store.GetSession(context.Background(), id.SessionID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// повторный выход не ошибка
	assert.NoError(t, svc.LogOut(context.Background(), id))
	assert.ErrorIs(t, svc.LogOut(context.Background(), nil), identity.ErrNoSession)
}

func TestService_ReapExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc, store := newService(t, identity.WithClock(clock.Now), identity.WithSessionTTL(time.Hour))

	_, err := svc.Register(context.Background(), "a@x.com", "pw1")
	require.NoError(t, err)

	old, err := svc.LogIn(context.Background(), user.EmailPassword("a@x.com", "pw1"))
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	fresh, err := svc.LogIn(context.Background(), user.EmailPassword("a@x.com", "pw1"))
	require.NoError(t, err)

	n, err := svc.ReapExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetSession(context.Background(), old.SessionID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
	_, err = store.GetSession(context.Background(), fresh.SessionID)
	assert.NoError(t, err)
}
