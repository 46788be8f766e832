package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskSync/internal/logger"
	"taskSync/internal/models/user"

	"go.uber.org/zap"
)

// AuthState хранит единственного текущего пользователя.
// Подписчики получают каждое изменение по порядку; из колбэка
// нельзя вызывать LogIn, LogOut и CheckExpiry.
// Когда срок сессии истекает, пользователь сбрасывается так же, как при выходе.
type AuthState struct {
	svc IdentityService
	now func() time.Time

	notifyMtx sync.Mutex
	mtx       sync.RWMutex
	user      *user.Identity
	expiry    *time.Timer
	subs      []authSubscriber
	nextSubID int
}

type AuthOption func(*AuthState)

// WithAuthClock задаёт часы, по которым проверяется срок сессии
func WithAuthClock(now func() time.Time) AuthOption {
	return func(a *AuthState) {
		if now != nil {
			a.now = now
		}
	}
}

type authSubscriber struct {
	id int
	fn func(*user.Identity)
}

func NewAuthState(svc IdentityService, options ...AuthOption) (*AuthState, error) {
	if svc == nil {
		return nil, NewScopeMisuse("AuthState", "IdentityService")
	}
	a := &AuthState{svc: svc, now: time.Now}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

func MustAuthState(svc IdentityService, options ...AuthOption) *AuthState {
	a, err := NewAuthState(svc, options...)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *AuthState) User() *user.Identity {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.user
}

func (a *AuthState) Subscribe(fn func(*user.Identity)) func() {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.nextSubID++
	id := a.nextSubID
	a.subs = append(a.subs, authSubscriber{id: id, fn: fn})

	return func() {
		a.mtx.Lock()
		defer a.mtx.Unlock()
		for i, s := range a.subs {
			if s.id == id {
				a.subs = append(a.subs[:i:i], a.subs[i+1:]...)
				return
			}
		}
	}
}

func (a *AuthState) LogIn(ctx context.Context, email, password string) error {
	logger.Info("Auth: Попытка входа", zap.String("email", email))

	creds := user.EmailPassword(email, password)
	newUser, err := a.svc.LogIn(ctx, creds)
	if err != nil {
		logger.Warn("Auth: Вход не выполнен", zap.String("email", creds.Email), zap.Error(err))
		return NewAuthError(creds.Email, err)
	}

	a.swap(nil, newUser, false)
	logger.Info("Auth: Вход выполнен", zap.String("identity", newUser.ID))
	return nil
}

// LogOut без активной сессии только пишет предупреждение
func (a *AuthState) LogOut(ctx context.Context) error {
	current := a.User()
	if current == nil {
		logger.Warn("Auth: Нет активной сессии, выход невозможен")
		return nil
	}

	logger.Info("Auth: Выход", zap.String("identity", current.ID))
	err := a.svc.LogOut(ctx, current)

	// сбрасываем даже при ошибке отзыва, но только если за это время не вошёл другой
	a.swap(current, nil, true)

	if err != nil {
		logger.Error("Auth: Не удалось отозвать сессию", err, zap.String("identity", current.ID))
		return fmt.Errorf("выход: %w", err)
	}
	return nil
}

// CheckExpiry сбрасывает пользователя, если срок его сессии прошёл.
// Возвращает true, если сброс случился.
func (a *AuthState) CheckExpiry() bool {
	current := a.User()
	if current == nil || current.ExpiresAt.IsZero() || a.now().Before(current.ExpiresAt) {
		return false
	}

	logger.Warn("Auth: Срок сессии истёк",
		zap.String("identity", current.ID),
		zap.Time("expires_at", current.ExpiresAt))
	return a.swap(current, nil, true)
}

// до истечения срока ставится таймер, он вызывает CheckExpiry
func (a *AuthState) scheduleExpiryLocked(next *user.Identity) {
	if a.expiry != nil {
		a.expiry.Stop()
		a.expiry = nil
	}
	if next == nil || next.ExpiresAt.IsZero() {
		return
	}
	a.expiry = time.AfterFunc(max(next.ExpiresAt.Sub(a.now()), 0), func() {
		a.CheckExpiry()
	})
}

func (a *AuthState) swap(expected, next *user.Identity, compare bool) bool {
	a.notifyMtx.Lock()
	defer a.notifyMtx.Unlock()

	a.mtx.Lock()
	if compare && a.user != expected {
		a.mtx.Unlock()
		return false
	}
	a.user = next
	a.scheduleExpiryLocked(next)
	subs := make([]authSubscriber, len(a.subs))
	copy(subs, a.subs)
	a.mtx.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
	return true
}
