package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"taskSync/internal/logger"
	"taskSync/internal/models/task"
	repo "taskSync/internal/repository"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Storage - встроенная база в одном файле. Уведомления об изменениях
// ходят только между коллекциями этого процесса.
type Storage struct {
	db  *sql.DB
	hub *repo.Hub
}

func DSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
}

func New(ctx context.Context, path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		logger.Error("Repository: Ошибка открытия SQLite", err)
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}

	// одно соединение сериализует транзакции записи
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное подключение к SQLite", zap.String("path", path))
	return &Storage{db: db, hub: repo.NewHub()}, nil
}

// DB отдаёт соединение для хранилища пользователей в том же файле
func (s *Storage) DB() *sql.DB {
	return s.db
}

func (s *Storage) Close() error {
	logger.Info("Repository: Закрытие SQLite")
	return s.db.Close()
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, cfg repo.SyncConfig) (repo.Collection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("открытие коллекции: %w", err)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("открытие коллекции: %w", err)
	}

	c := &Collection{
		store:      s,
		partition:  cfg.PartitionValue,
		dispatcher: repo.NewDispatcher(),
	}
	s.hub.Join(c.partition, c.dispatcher)

	logger.Info("Repository: Коллекция SQLite открыта",
		zap.String("partition", c.partition),
		zap.String("identity", cfg.User.ID))
	return c, nil
}

const selectTasks = `SELECT id, name, status, partition_value, created_at, updated_at, version
	FROM tasks
	WHERE partition_value = ?
	ORDER BY rowid`

type Collection struct {
	store      *Storage
	partition  string
	dispatcher *repo.Dispatcher
	closed     atomic.Bool
}

func (c *Collection) Objects(ctx context.Context) ([]task.Task, error) {
	if c.closed.Load() {
		return nil, repo.ErrClosed
	}
	start := time.Now()

	rows, err := c.store.db.QueryContext(ctx, selectTasks, c.partition)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return tasks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (task.Task, error) {
	var (
		t       task.Task
		updated sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.Partition, &t.CreatedAt, &updated, &t.Version)
	if err != nil {
		return task.Task{}, err
	}
	if updated.Valid {
		u := updated.Time
		t.UpdatedAt = &u
	}
	return t, nil
}

func (c *Collection) AddListener(fn func()) {
	if c.closed.Load() {
		return
	}
	c.dispatcher.Add(fn)
}

func (c *Collection) RemoveAllListeners() {
	c.dispatcher.RemoveAll()
}

func (c *Collection) Write(ctx context.Context, fn func(repo.Txn) error) error {
	if c.closed.Load() {
		return repo.ErrClosed
	}

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}

	t := &txn{tx: tx, partition: c.partition}
	if err := fn(t); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("Repository: Ошибка отката транзакции", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		logger.Error("Repository: Не удалось зафиксировать транзакцию", err)
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	if t.changed {
		c.store.hub.Publish(c.partition)
	}
	return nil
}

func (c *Collection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.store.hub.Leave(c.partition, c.dispatcher)
	c.dispatcher.Close()
	logger.Info("Repository: Коллекция SQLite закрыта", zap.String("partition", c.partition))
	return nil
}

type txn struct {
	tx        *sql.Tx
	partition string
	changed   bool
}

func (t *txn) Create(ctx context.Context, taskToCreate *task.Task) error {
	if err := repo.PrepareCreate(taskToCreate, t.partition); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO tasks (id, name, status, partition_value, created_at, version)
		VALUES (?, ?, ?, ?, ?, 1)`,
		taskToCreate.ID.String(),
		taskToCreate.Name,
		taskToCreate.Status,
		taskToCreate.Partition,
		now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось добавить задачу", err)
		return fmt.Errorf("добавление задачи: %w", err)
	}

	taskToCreate.CreatedAt = now
	taskToCreate.UpdatedAt = nil
	taskToCreate.Version = 1
	t.changed = true
	return nil
}

func (t *txn) Update(ctx context.Context, taskToUpdate *task.Task) error {
	if err := repo.PrepareUpdate(taskToUpdate); err != nil {
		return err
	}

	row := t.tx.QueryRowContext(ctx,
		`UPDATE tasks
		SET name = ?, status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND partition_value = ?
		RETURNING id, name, status, partition_value, created_at, updated_at, version`,
		taskToUpdate.Name,
		taskToUpdate.Status,
		time.Now().UTC(),
		taskToUpdate.ID.String(),
		t.partition,
	)
	updated, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return fmt.Errorf("обновление задачи: %w", err)
	}

	*taskToUpdate = updated
	t.changed = true
	return nil
}

func (t *txn) SetStatus(ctx context.Context, id uuid.UUID, status task.Status) error {
	if err := repo.CheckStatus(status); err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE tasks
		SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND partition_value = ?`,
		status, time.Now().UTC(), id.String(), t.partition)
	if err != nil {
		logger.Error("Repository: Не удалось сменить статус задачи", err)
		return fmt.Errorf("смена статуса: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("смена статуса: %w", err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	t.changed = true
	return nil
}

func (t *txn) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND partition_value = ?`,
		id.String(), t.partition)
	if err != nil {
		logger.Error("Repository: Не удалось удалить задачу", err)
		return fmt.Errorf("удаление задачи: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("удаление задачи: %w", err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	t.changed = true
	return nil
}
