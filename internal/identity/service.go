// Package identity - сервис входа по email и паролю. Выдаёт сессии
// с ограниченным сроком жизни и отзывает их при выходе.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"taskSync/internal/logger"
	"taskSync/internal/models/user"
	repo "taskSync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("неверный email или пароль")
	ErrNoSession          = errors.New("нет активной сессии")
	ErrInvalidEmail       = errors.New("некорректный email")
	ErrEmptyPassword      = errors.New("пустой пароль")
)

const DefaultSessionTTL = 24 * time.Hour

type UserStore interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	CreateSession(ctx context.Context, s *user.Session) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

type Service struct {
	store      UserStore
	sessionTTL time.Duration
	cost       int
	now        func() time.Time
}

type Option func(*Service)

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.cost = cost
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store UserStore, options ...Option) *Service {
	s := &Service{
		store:      store,
		sessionTTL: DefaultSessionTTL,
		cost:       bcrypt.DefaultCost,
		now:        time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, email, password string) (*user.User, error) {
	email = user.NormalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	u := &user.User{
		ID:           user.IdentityFor(email),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("регистрация пользователя: %w", err)
	}

	logger.Info("Identity: Пользователь зарегистрирован", zap.String("identity", u.ID))
	return u, nil
}

func (s *Service) LogIn(ctx context.Context, creds user.Credentials) (*user.Identity, error) {
	if creds.Email == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.store.GetUserByEmail(ctx, user.NormalizeEmail(creds.Email))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	session := &user.Session{
		ID:        uuid.New(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("создание сессии: %w", err)
	}

	return &user.Identity{
		ID:        u.ID,
		Email:     u.Email,
		SessionID: session.ID,
		IssuedAt:  session.CreatedAt,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// LogOut отзывает сессию, уже удалённая сессия ошибкой не считается
func (s *Service) LogOut(ctx context.Context, id *user.Identity) error {
	if id == nil {
		return ErrNoSession
	}
	if err := s.store.DeleteSession(ctx, id.SessionID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("удаление сессии: %w", err)
	}
	return nil
}

func (s *Service) ReapExpired(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("удаление истёкших сессий: %w", err)
	}
	return n, nil
}
