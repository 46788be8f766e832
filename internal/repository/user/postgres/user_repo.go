package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskSync/internal/logger"
	"taskSync/internal/models/user"
	repo "taskSync/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type UserStorage struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *UserStorage {
	return &UserStorage{pool: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *UserStorage) CreateUser(ctx context.Context, u *user.User) error {
	query := `INSERT INTO users (id, email, password_hash, created_at)
				VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось добавить пользователя", err)
		return fmt.Errorf("добавление пользователя: %w", err)
	}
	return nil
}

func (s *UserStorage) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT id, email, password_hash, created_at
				FROM users
				WHERE email = $1`

	u := &user.User{}
	err := s.pool.QueryRow(ctx, query, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить пользователя", err)
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

func (s *UserStorage) CreateSession(ctx context.Context, session *user.Session) error {
	query := `INSERT INTO sessions (id, user_id, created_at, expires_at)
				VALUES ($1, $2, $3, $4)`

	_, err := s.pool.Exec(ctx, query, session.ID, session.UserID, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось создать сессию", err)
		return fmt.Errorf("создание сессии: %w", err)
	}
	return nil
}

func (s *UserStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		logger.Error("Repository: Не удалось удалить сессию", err)
		return fmt.Errorf("удаление сессии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *UserStorage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()

	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		logger.Error("Repository: Не удалось удалить истёкшие сессии", err)
		return 0, fmt.Errorf("удаление истёкших сессий: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}
	return int(tag.RowsAffected()), nil
}
