package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaName - имя схемы задачи в конфигурации синхронизации
const SchemaName = "Task"

const DefaultName = "New Task"

type Task struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Status    Status     `json:"status" db:"status"`
	Partition string     `json:"partition" db:"partition"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at,omitempty"`
	Version   int        `json:"version" db:"version"`
}

type Status string

const StatusOpen Status = "Open"
const StatusInProgress Status = "InProgress"
const StatusComplete Status = "Complete"

func Statuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusComplete}
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusComplete:
		return true
	}
	return false
}

// ParseStatus разбирает статус из строки без нормализации регистра
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("неизвестный статус %q", raw)
	}
	return s, nil
}

// New собирает задачу для вставки, ID и служебные поля заполняет хранилище
func New(partition string, options ...TaskOption) *Task {
	t := &Task{
		Name:      DefaultName,
		Status:    StatusOpen,
		Partition: partition,
	}
	for _, opt := range options {
		if opt != nil {
			opt(t)
		}
	}
	return t
}
