package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taskSync/internal/logger"
	"taskSync/internal/models/user"
	repo "taskSync/internal/repository"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

type UserStorage struct {
	db *sql.DB
}

func New(db *sql.DB) *UserStorage {
	return &UserStorage{db: db}
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func (s *UserStorage) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.UTC())
	if err != nil {
		if isConstraint(err) {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось добавить пользователя", err)
		return fmt.Errorf("добавление пользователя: %w", err)
	}
	return nil
}

func (s *UserStorage) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u := &user.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить пользователя", err)
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return u, nil
}

func (s *UserStorage) CreateSession(ctx context.Context, session *user.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		session.ID.String(), session.UserID, session.CreatedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		if isConstraint(err) {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось создать сессию", err)
		return fmt.Errorf("создание сессии: %w", err)
	}
	return nil
}

func (s *UserStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id.String())
	if err != nil {
		logger.Error("Repository: Не удалось удалить сессию", err)
		return fmt.Errorf("удаление сессии: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("удаление сессии: %w", err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *UserStorage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		logger.Error("Repository: Не удалось удалить истёкшие сессии", err)
		return 0, fmt.Errorf("удаление истёкших сессий: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("удаление истёкших сессий: %w", err)
	}
	return int(n), nil
}
