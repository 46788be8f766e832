package dto

import (
	"time"

	"taskSync/internal/models/task"
	"taskSync/internal/models/user"

	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type IdentityResponse struct {
	Identity  string    `json:"identity"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CreateTaskRequest struct {
	Name string `json:"name"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type TaskResponse struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Partition string     `json:"partition"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Version   int        `json:"version"`
}

type TaskListResponse struct {
	Partition string         `json:"partition"`
	Phase     string         `json:"phase"`
	Tasks     []TaskResponse `json:"tasks"`
}

func FromIdentity(id *user.Identity) IdentityResponse {
	return IdentityResponse{
		Identity:  id.ID,
		Email:     id.Email,
		ExpiresAt: id.ExpiresAt,
	}
}

func FromTask(t task.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Name:      t.Name,
		Status:    string(t.Status),
		Partition: t.Partition,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Version:   t.Version,
	}
}

func FromTaskList(tasks []task.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t)
	}
	return result
}
