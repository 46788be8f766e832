package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"taskSync/internal/logger"
	"taskSync/internal/models/task"
	repo "taskSync/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// канал NOTIFY, его шлёт триггер на tasks, payload - раздел
const NotifyChannel = "tasks_changed"

type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string, poolCfg PoolConfig) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

// Pool нужен хранилищу пользователей, оно живёт в той же базе
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

// Open подписывается на NOTIFY до возврата, поэтому первый снимок,
// снятый после Open, не пропустит чужих коммитов
func (s *Storage) Open(ctx context.Context, cfg repo.SyncConfig) (repo.Collection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("открытие коллекции: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, s.pool.Config().ConnConfig.Copy())
	if err != nil {
		logger.Error("Repository: Не удалось открыть соединение для LISTEN", err)
		return nil, fmt.Errorf("соединение для LISTEN: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		conn.Close(context.Background())
		logger.Error("Repository: Не удалось выполнить LISTEN", err)
		return nil, fmt.Errorf("LISTEN %s: %w", NotifyChannel, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	c := &Collection{
		pool:       s.pool,
		partition:  cfg.PartitionValue,
		dispatcher: repo.NewDispatcher(),
		cancel:     cancel,
	}
	c.wg.Add(1)
	go c.listen(listenCtx, conn)

	logger.Info("Repository: Коллекция PostgreSQL открыта",
		zap.String("partition", c.partition),
		zap.String("identity", cfg.User.ID))
	return c, nil
}

const selectTasks = `SELECT
				id,
				name,
				status,
				partition_value,
				created_at,
				updated_at,
				version
				FROM tasks
				WHERE partition_value = $1
				ORDER BY seq`

type Collection struct {
	pool       *pgxpool.Pool
	partition  string
	dispatcher *repo.Dispatcher
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool
}

func (c *Collection) listen(ctx context.Context, conn *pgx.Conn) {
	defer c.wg.Done()
	defer conn.Close(context.Background())

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Repository: Прослушивание NOTIFY прервано", err,
					zap.String("partition", c.partition))
			}
			return
		}
		if n.Channel == NotifyChannel && n.Payload == c.partition {
			c.dispatcher.Notify()
		}
	}
}

func (c *Collection) Objects(ctx context.Context) ([]task.Task, error) {
	if c.closed.Load() {
		return nil, repo.ErrClosed
	}
	start := time.Now()

	rows, err := c.pool.Query(ctx, selectTasks, c.partition)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		t := task.Task{}
		err := rows.Scan(
			&t.ID,
			&t.Name,
			&t.Status,
			&t.Partition,
			&t.CreatedAt,
			&t.UpdatedAt,
			&t.Version,
		)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования задачи", err)
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return tasks, nil
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

	return pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		return fn(&txn{tx: tx, partition: c.partition})
	})
}

// Close ждёт выхода горутины LISTEN
func (c *Collection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.dispatcher.Close()
	c.cancel()
	c.wg.Wait()
	logger.Info("Repository: Коллекция PostgreSQL закрыта", zap.String("partition", c.partition))
	return nil
}

type txn struct {
	tx        pgx.Tx
	partition string
}

func (t *txn) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()

	if err := repo.PrepareCreate(taskToCreate, t.partition); err != nil {
		return err
	}

	query := `INSERT INTO tasks
				(id, name, status, partition_value, created_at, version)
				VALUES ($1, $2, $3, $4, $5, 1)
				RETURNING created_at, version`

	err := t.tx.QueryRow(ctx, query,
		taskToCreate.ID,
		taskToCreate.Name,
		taskToCreate.Status,
		taskToCreate.Partition,
		time.Now(),
	).Scan(&taskToCreate.CreatedAt, &taskToCreate.Version)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", err)
	}
	taskToCreate.UpdatedAt = nil

	if time.Since(start) > time.Millisecond*50 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return nil
}

func (t *txn) Update(ctx context.Context, taskToUpdate *task.Task) error {
	start := time.Now()

	if err := repo.PrepareUpdate(taskToUpdate); err != nil {
		return err
	}

	query := `UPDATE tasks
			SET name = $1,
				status = $2,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $3 AND partition_value = $4
			RETURNING partition_value, created_at, updated_at, version`

	err := t.tx.QueryRow(ctx, query,
		taskToUpdate.Name,
		taskToUpdate.Status,
		taskToUpdate.ID,
		t.partition,
	).Scan(&taskToUpdate.Partition, &taskToUpdate.CreatedAt, &taskToUpdate.UpdatedAt, &taskToUpdate.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Warn("Repository: Задача для обновления не найдена",
				zap.String("task_id", taskToUpdate.ID.String()),
				zap.String("partition", t.partition))
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return fmt.Errorf("обновление задачи: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}
	return nil
}

func (t *txn) SetStatus(ctx context.Context, id uuid.UUID, status task.Status) error {
	start := time.Now()

	if err := repo.CheckStatus(status); err != nil {
		return err
	}

	query := `UPDATE tasks
			SET status = $1,
				version = version + 1,
				updated_at = NOW()
			WHERE id = $2 AND partition_value = $3`

	tag, err := t.tx.Exec(ctx, query, status, id, t.partition)
	if err != nil {
		logger.Error("Repository: Не удалось сменить статус задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("смена статуса: %w", err)
	}
	if tag.RowsAffected() == 0 {
		logger.Warn("Repository: Задача для смены статуса не найдена",
			zap.String("task_id", id.String()),
			zap.String("partition", t.partition))
		return repo.ErrNotFound
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}
	return nil
}

func (t *txn) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()

	query := `DELETE FROM tasks
				WHERE id = $1 AND partition_value = $2`

	tag, err := t.tx.Exec(ctx, query, id, t.partition)
	if err != nil {
		logger.Error("Repository: Полное удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("удаление задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}
	return nil
}
