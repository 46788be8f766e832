package service

import (
	"context"

	"taskSync/internal/models/user"
)

type IdentityService interface {
	LogIn(ctx context.Context, creds user.Credentials) (*user.Identity, error)
	LogOut(ctx context.Context, id *user.Identity) error
}

// AuthSource - то, что TaskListState читает у AuthState
type AuthSource interface {
	User() *user.Identity
	Subscribe(fn func(*user.Identity)) (unsubscribe func())
}

// Alerter - блокирующее уведомление пользователя, куда уходят ошибки открытия
type Alerter interface {
	Alert(title, message string)
}
