package handlers

import (
	"context"

	"taskSync/internal/models/task"
	"taskSync/internal/models/user"
	"taskSync/internal/service"

	"github.com/google/uuid"
)

type Auth interface {
	User() *user.Identity
	LogIn(ctx context.Context, email, password string) error
	LogOut(ctx context.Context) error
}

// TaskList - смонтированный список задач текущего пользователя
type TaskList interface {
	Partition() string
	Phase() service.Phase
	Tasks() []task.Task
	Task(id uuid.UUID) (task.Task, bool)
	Subscribe(fn func([]task.Task)) func()
	CreateTask(ctx context.Context, name string) error
	SetTaskStatus(ctx context.Context, t task.Task, status task.Status) error
	DeleteTask(ctx context.Context, t task.Task) error
	// Done закрывается при демонтаже списка
	Done() <-chan struct{}
}

// TaskListSource отдаёт список, пока пользователь вошёл, иначе false
type TaskListSource interface {
	Current() (TaskList, bool)
}

type AlertSource interface {
	Recent() []service.Alert
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
