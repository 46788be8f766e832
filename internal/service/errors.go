package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"taskSync/internal/models/task"
)

const (
	CodeScopeMisuse     = "SCOPE_MISUSE"
	CodeAuthFailed      = "AUTH_FAILED"
	CodeSyncOpenFailed  = "SYNC_OPEN_FAILED"
	CodeInvalidStatus   = "INVALID_STATUS"
	CodeNotOpen         = "NOT_OPEN"
	CodeNotFound        = "NOT_FOUND"
	CodeValidationError = "VALIDATION_ERROR"
)

// сентинелы для errors.Is, BusinessError с соответствующим кодом на них раскрывается
var (
	ErrScopeMisuse   = errors.New("использование вне области провайдера")
	ErrAuth          = errors.New("ошибка аутентификации")
	ErrSyncOpen      = errors.New("не удалось открыть коллекцию")
	ErrInvalidStatus = errors.New("недопустимый статус")
	ErrNotOpen       = errors.New("коллекция не открыта")
	ErrNotFound      = errors.New("не найдено")
)

var sentinels = map[string]error{
	CodeScopeMisuse:    ErrScopeMisuse,
	CodeAuthFailed:     ErrAuth,
	CodeSyncOpenFailed: ErrSyncOpen,
	CodeInvalidStatus:  ErrInvalidStatus,
	CodeNotOpen:        ErrNotOpen,
	CodeNotFound:       ErrNotFound,
}

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func (b *BusinessError) Is(target error) bool {
	sentinel, ok := sentinels[b.Code]
	return ok && sentinel == target
}

// MarshalJSON - сериализованный вид ошибки, он уходит в алерт
func (b *BusinessError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
		Cause   string         `json:"cause,omitempty"`
	}{
		Code:    b.Code,
		Message: b.Message,
		Details: b.Details,
	}
	if b.Err != nil {
		out.Cause = b.Err.Error()
	}
	return json.Marshal(out)
}

func AsBusinessError(err error) (*BusinessError, bool) {
	var busErr *BusinessError
	if errors.As(err, &busErr) {
		return busErr, true
	}
	return nil, false
}

func NewScopeMisuse(consumer, dependency string) *BusinessError {
	return &BusinessError{
		Code:    CodeScopeMisuse,
		Message: fmt.Sprintf("%s создан без %s", consumer, dependency),
		Details: map[string]any{
			"consumer":   consumer,
			"dependency": dependency,
		},
	}
}

func NewAuthError(email string, err error) *BusinessError {
	return &BusinessError{
		Code:    CodeAuthFailed,
		Message: "вход не выполнен",
		Details: map[string]any{
			"email": email,
		},
		Err: err,
	}
}

func NewSyncOpenError(partition string, err error) *BusinessError {
	return &BusinessError{
		Code:    CodeSyncOpenFailed,
		Message: fmt.Sprintf("не удалось открыть раздел %q", partition),
		Details: map[string]any{
			"partition": partition,
		},
		Err: err,
	}
}

func NewInvalidStatus(status string) *BusinessError {
	return &BusinessError{
		Code:    CodeInvalidStatus,
		Message: fmt.Sprintf("Invalid Status %s", status),
		Details: map[string]any{
			"status":  status,
			"allowed": task.Statuses(),
		},
	}
}

func NewNotOpen(partition string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotOpen,
		Message: fmt.Sprintf("раздел %q ещё не открыт", partition),
		Details: map[string]any{
			"partition": partition,
		},
	}
}

func NewNotFound(resource string, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s не найден(а)", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidationError,
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}
