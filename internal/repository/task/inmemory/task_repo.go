package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"taskSync/internal/logger"
	"taskSync/internal/models/task"
	repo "taskSync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskStorage - общий для процесса синхронизируемый набор задач.
// Каждый Open выдаёт коллекцию одного раздела, коммиты рассылаются через Hub.
type TaskStorage struct {
	storage map[uuid.UUID]*task.Task
	mtx     *sync.RWMutex
	ids     []uuid.UUID
	hub     *repo.Hub
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[uuid.UUID]*task.Task),
		mtx:     &sync.RWMutex{},
		ids:     []uuid.UUID{},
		hub:     repo.NewHub(),
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: Хранилище в памяти доступно")
	return nil
}

func (s *TaskStorage) Open(ctx context.Context, cfg repo.SyncConfig) (repo.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("открытие коллекции: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("открытие коллекции: %w", err)
	}

	c := &Collection{
		store:      s,
		partition:  cfg.PartitionValue,
		dispatcher: repo.NewDispatcher(),
	}
	s.hub.Join(c.partition, c.dispatcher)

	logger.Info("Repository: Коллекция открыта",
		zap.String("partition", c.partition),
		zap.String("identity", cfg.User.ID))
	return c, nil
}

// Members - сколько коллекций раздела сейчас открыто
func (s *TaskStorage) Members(partition string) int {
	return s.hub.Members(partition)
}

func (s *TaskStorage) snapshot(partition string) []task.Task {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []task.Task{}
	for _, id := range s.ids {
		t := s.storage[id]
		if t.Partition != partition {
			continue
		}
		res = append(res, *t)
	}
	return res
}

// транзакция: вся запись под блокировкой, при ошибке состояние восстанавливается
func (s *TaskStorage) write(ctx context.Context, partition string, fn func(repo.Txn) error) error {
	s.mtx.Lock()

	backup := make(map[uuid.UUID]*task.Task, len(s.storage))
	for id, t := range s.storage {
		c := *t
		backup[id] = &c
	}
	backupIDs := slices.Clone(s.ids)

	tx := &txn{store: s, partition: partition}
	if err := fn(tx); err != nil {
		s.storage = backup
		s.ids = backupIDs
		s.mtx.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		s.storage = backup
		s.ids = backupIDs
		s.mtx.Unlock()
		return fmt.Errorf("транзакция записи: %w", err)
	}
	changed := tx.changed
	s.mtx.Unlock()

	if changed {
		s.hub.Publish(partition)
	}
	return nil
}

type txn struct {
	store     *TaskStorage
	partition string
	changed   bool
}

func (tx *txn) get(id uuid.UUID) (*task.Task, error) {
	existed, ok := tx.store.storage[id]
	if !ok || existed.Partition != tx.partition {
		return nil, repo.ErrNotFound
	}
	return existed, nil
}

func (tx *txn) Create(ctx context.Context, taskToCreate *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := repo.PrepareCreate(taskToCreate, tx.partition); err != nil {
		return err
	}
	if _, ok := tx.store.storage[taskToCreate.ID]; ok {
		return repo.ErrAlreadyExists
	}

	taskToCreate.CreatedAt = time.Now()
	taskToCreate.UpdatedAt = nil
	taskToCreate.Version = 1

	stored := *taskToCreate
	tx.store.storage[stored.ID] = &stored
	tx.store.ids = append(tx.store.ids, stored.ID)
	tx.changed = true
	return nil
}

func (tx *txn) Update(ctx context.Context, taskToUpdate *task.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := repo.PrepareUpdate(taskToUpdate); err != nil {
		return err
	}
	existed, err := tx.get(taskToUpdate.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	existed.Name = taskToUpdate.Name
	existed.Status = taskToUpdate.Status
	existed.UpdatedAt = &now
	existed.Version++

	*taskToUpdate = *existed
	tx.changed = true
	return nil
}

func (tx *txn) SetStatus(ctx context.Context, id uuid.UUID, status task.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := repo.CheckStatus(status); err != nil {
		return err
	}
	existed, err := tx.get(id)
	if err != nil {
		return err
	}

	now := time.Now()
	existed.Status = status
	existed.UpdatedAt = &now
	existed.Version++
	tx.changed = true
	return nil
}

func (tx *txn) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := tx.get(id); err != nil {
		return err
	}

	delete(tx.store.storage, id)
	for ind, val := range tx.store.ids {
		if val == id {
			tx.store.ids = append(tx.store.ids[:ind], tx.store.ids[ind+1:]...)
			break
		}
	}
	tx.changed = true
	return nil
}

type Collection struct {
	store      *TaskStorage
	partition  string
	dispatcher *repo.Dispatcher
	closed     atomic.Bool
}

func (c *Collection) Objects(ctx context.Context) ([]task.Task, error) {
	if c.closed.Load() {
		return nil, repo.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.store.snapshot(c.partition), nil
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

func (c *Collection) Listeners() int {
	return c.dispatcher.Len()
}

func (c *Collection) Write(ctx context.Context, fn func(repo.Txn) error) error {
	if c.closed.Load() {
		return repo.ErrClosed
	}
	return c.store.write(ctx, c.partition, fn)
}

func (c *Collection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.store.hub.Leave(c.partition, c.dispatcher)
	c.dispatcher.Close()
	logger.Info("Repository: Коллекция закрыта", zap.String("partition", c.partition))
	return nil
}
