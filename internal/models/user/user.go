package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity - аутентифицированный пользователь, выдаётся сервисом идентификации
type Identity struct {
	ID        string    `json:"identity"`
	Email     string    `json:"email"`
	SessionID uuid.UUID `json:"session_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Credentials struct {
	Email    string
	Password string
}

func EmailPassword(email, password string) Credentials {
	return Credentials{Email: NormalizeEmail(email), Password: password}
}

// User - учётная запись в хранилище
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Session struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IdentityFor выводит стабильный идентификатор из email: один email - один id
func IdentityFor(email string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+NormalizeEmail(email))).String()
}
