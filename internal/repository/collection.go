package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"taskSync/internal/models/task"
	"taskSync/internal/models/user"

	"github.com/google/uuid"
)

// SyncConfig описывает, какую коллекцию открыть: схему и цель синхронизации
type SyncConfig struct {
	Schema         []string       `json:"schema"`
	User           *user.Identity `json:"user"`
	PartitionValue string         `json:"partition_value"`
}

func (c SyncConfig) Validate() error {
	if c.User == nil {
		return ErrNoUser
	}
	if !slices.Contains(c.Schema, task.SchemaName) {
		return fmt.Errorf("%w: [%s]", ErrSchema, strings.Join(c.Schema, ", "))
	}
	return nil
}

type Opener interface {
	Open(ctx context.Context, cfg SyncConfig) (Collection, error)
}

// Collection - живой набор задач одного раздела.
// Слушатели вызываются на собственной горутине коллекции, по одному.
type Collection interface {
	Objects(ctx context.Context) ([]task.Task, error)
	AddListener(fn func())
	RemoveAllListeners()
	Write(ctx context.Context, fn func(Txn) error) error
	Close() error
}

// Txn - операции внутри одной транзакции записи
type Txn interface {
	Create(ctx context.Context, t *task.Task) error
	Update(ctx context.Context, t *task.Task) error
	// SetStatus меняет только статус, остальные поля не трогает
	SetStatus(ctx context.Context, id uuid.UUID, status task.Status) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PrepareCreate проверяет задачу перед вставкой в раздел и назначает ID
func PrepareCreate(t *task.Task, partition string) error {
	if t == nil {
		return ErrInvalidTask
	}
	if t.Partition != partition {
		return fmt.Errorf("%w: раздел %q вместо %q", ErrInvalidTask, t.Partition, partition)
	}
	if err := CheckStatus(t.Status); err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func CheckStatus(status task.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: статус %q", ErrInvalidTask, status)
	}
	return nil
}

func PrepareUpdate(t *task.Task) error {
	if t == nil || t.ID == uuid.Nil {
		return ErrInvalidTask
	}
	return CheckStatus(t.Status)
}
