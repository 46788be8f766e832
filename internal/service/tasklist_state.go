package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"taskSync/internal/logger"
	"taskSync/internal/models/task"
	"taskSync/internal/models/user"
	"taskSync/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseOpening       Phase = "opening"
	PhaseOpen          Phase = "open"
	PhaseFailed        Phase = "failed"
	PhaseClosed        Phase = "closed"
)

const AlertTitleOpenFailed = "Failed to open collection"

// TaskListState связывает живую коллекцию пары (пользователь, раздел)
// с локальным снимком задач. Любая смена пары сначала полностью закрывает
// старую коллекцию. Результат открытия, пришедший для устаревшего поколения,
// закрывается и отбрасывается.
type TaskListState struct {
	auth    AuthSource
	opener  repository.Opener
	alerter Alerter
	schema  []string

	mtx        sync.Mutex
	identity   *user.Identity
	partition  string
	gen        uint64
	openCtx    context.Context
	cancelOpen context.CancelFunc
	coll       repository.Collection
	phase      Phase
	tasks      []task.Task
	version    uint64 // растёт при каждой замене tasks
	closed     bool
	done       chan struct{}
	unsubAuth  func()

	// снимки снимаются и записываются строго по очереди
	snapMtx sync.Mutex

	subMtx    sync.Mutex
	subs      []*taskSubscriber
	nextSubID int
	out       *repository.Dispatcher
}

type taskSubscriber struct {
	id   int
	fn   func([]task.Task)
	seen uint64 // версия последнего доставленного снимка
}

type Option func(*TaskListState)

func WithAlerter(a Alerter) Option {
	return func(s *TaskListState) {
		if a != nil {
			s.alerter = a
		}
	}
}

func WithSchema(schema ...string) Option {
	return func(s *TaskListState) {
		s.schema = slices.Clone(schema)
	}
}

func NewTaskListState(auth AuthSource, opener repository.Opener, partition string, options ...Option) (*TaskListState, error) {
	if auth == nil {
		return nil, NewScopeMisuse("TaskListState", "AuthState")
	}
	if opener == nil {
		return nil, NewScopeMisuse("TaskListState", "Opener")
	}

	s := &TaskListState{
		auth:      auth,
		opener:    opener,
		alerter:   NewAlertLog(0),
		schema:    []string{task.SchemaName},
		partition: partition,
		phase:     PhaseUninitialized,
		tasks:     []task.Task{},
		version:   1,
		done:      make(chan struct{}),
		out:       repository.NewDispatcher(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.out.Add(s.deliver)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.unsubAuth = auth.Subscribe(s.onIdentity)
	s.identity = auth.User()
	s.bindLocked()
	return s, nil
}

func MustTaskListState(auth AuthSource, opener repository.Opener, partition string, options ...Option) *TaskListState {
	s, err := NewTaskListState(auth, opener, partition, options...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *TaskListState) Partition() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.partition
}

func (s *TaskListState) Phase() Phase {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.phase
}

// Tasks - копия последнего снимка
func (s *TaskListState) Tasks() []task.Task {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return slices.Clone(s.tasks)
}

func (s *TaskListState) Task(id uuid.UUID) (task.Task, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

// Done закрывается, когда список демонтирован
func (s *TaskListState) Done() <-chan struct{} {
	return s.done
}

// Subscribe: fn получает полный снимок после каждого изменения и сразу после
// подписки. Вызовы идут с одной горутины, снимок только для чтения.
// Новая подписка не вызывает повторной доставки остальным.
func (s *TaskListState) Subscribe(fn func([]task.Task)) func() {
	s.subMtx.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, &taskSubscriber{id: id, fn: fn})
	s.subMtx.Unlock()

	s.out.Notify()

	return func() {
		s.subMtx.Lock()
		defer s.subMtx.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// deliver отдаёт снимок только тем, кто ещё не видел его версию
func (s *TaskListState) deliver() {
	s.mtx.Lock()
	snapshot := slices.Clone(s.tasks)
	version := s.version
	s.mtx.Unlock()

	s.subMtx.Lock()
	pending := make([]*taskSubscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.seen != version {
			sub.seen = version
			pending = append(pending, sub)
		}
	}
	s.subMtx.Unlock()

	for _, sub := range pending {
		sub.fn(snapshot)
	}
}

func (s *TaskListState) SetPartition(partition string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed || s.partition == partition {
		return
	}
	s.partition = partition
	s.bindLocked()
}

func (s *TaskListState) onIdentity(id *user.Identity) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed || s.identity == id {
		return
	}
	s.identity = id
	s.bindLocked()
}

// Close - окончательный демонтаж, повторный вызов ничего не делает
func (s *TaskListState) Close() {
	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return
	}
	s.teardownLocked()
	s.closed = true
	s.phase = PhaseClosed
	close(s.done)
	unsub := s.unsubAuth
	s.mtx.Unlock()

	if unsub != nil {
		unsub()
	}
	s.out.Close()
	logger.Info("Service: Список задач демонтирован")
}

// teardownLocked: поколение++, отмена открытия, отписка и закрытие коллекции
func (s *TaskListState) teardownLocked() {
	s.gen++
	if s.cancelOpen != nil {
		s.cancelOpen()
		s.cancelOpen = nil
	}
	s.openCtx = nil

	if s.coll != nil {
		s.coll.RemoveAllListeners()
		if err := s.coll.Close(); err != nil {
			logger.Warn("Service: Ошибка закрытия коллекции", zap.Error(err))
		}
		s.coll = nil
	}

	if len(s.tasks) > 0 {
		s.tasks = []task.Task{}
		s.version++
		s.out.Notify()
	}
}

func (s *TaskListState) bindLocked() {
	s.teardownLocked()

	if s.identity == nil {
		s.phase = PhaseUninitialized
		logger.Warn("Service: Список задач требует входа", zap.String("partition", s.partition))
		return
	}

	cfg := repository.SyncConfig{
		Schema:         slices.Clone(s.schema),
		User:           s.identity,
		PartitionValue: s.partition,
	}

	logger.Info("Service: Открытие коллекции",
		zap.String("partition", cfg.PartitionValue),
		zap.String("identity", cfg.User.ID),
		zap.Strings("schema", cfg.Schema))

	ctx, cancel := context.WithCancel(context.Background())
	s.openCtx = ctx
	s.cancelOpen = cancel
	s.phase = PhaseOpening

	go s.open(ctx, s.gen, cfg)
}

func (s *TaskListState) open(ctx context.Context, gen uint64, cfg repository.SyncConfig) {
	coll, err := s.opener.Open(ctx, cfg)

	s.mtx.Lock()
	if gen != s.gen || s.closed {
		s.mtx.Unlock()
		if coll != nil {
			if closeErr := coll.Close(); closeErr != nil {
				logger.Warn("Service: Ошибка закрытия отменённой коллекции", zap.Error(closeErr))
			}
		}
		logger.Info("Service: Результат открытия отброшен", zap.String("partition", cfg.PartitionValue))
		return
	}

	if err != nil {
		s.phase = PhaseFailed
		s.mtx.Unlock()
		s.alertOpenFailed(cfg.PartitionValue, err)
		return
	}

	s.coll = coll
	s.phase = PhaseOpen
	coll.AddListener(func() {
		s.refresh(gen)
	})
	s.mtx.Unlock()

	logger.Info("Service: Коллекция открыта", zap.String("partition", cfg.PartitionValue))
	s.refresh(gen)
}

func (s *TaskListState) alertOpenFailed(partition string, err error) {
	busErr := NewSyncOpenError(partition, err)
	logger.Error("Service: Не удалось открыть коллекцию", err, zap.String("partition", partition))

	payload, marshalErr := json.Marshal(busErr)
	if marshalErr != nil {
		payload = []byte(fmt.Sprintf("%q", busErr.Error()))
	}
	s.alerter.Alert(AlertTitleOpenFailed, "Failed to open collection:"+string(payload))
}

func (s *TaskListState) refresh(gen uint64) {
	s.snapMtx.Lock()
	defer s.snapMtx.Unlock()

	s.mtx.Lock()
	if gen != s.gen || s.coll == nil {
		s.mtx.Unlock()
		return
	}
	coll, ctx := s.coll, s.openCtx
	s.mtx.Unlock()

	snapshot, err := coll.Objects(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, repository.ErrClosed) {
			logger.Warn("Service: Не удалось снять снимок задач", zap.Error(err))
		}
		return
	}

	s.mtx.Lock()
	if gen != s.gen {
		s.mtx.Unlock()
		return
	}
	s.tasks = snapshot
	s.version++
	s.mtx.Unlock()

	s.out.Notify()
}

func (s *TaskListState) current() (repository.Collection, string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.coll == nil {
		return nil, s.partition, NewNotOpen(s.partition)
	}
	return s.coll, s.partition, nil
}

func (s *TaskListState) write(ctx context.Context, operation string, fn func(tx repository.Txn, partition string) error) error {
	coll, partition, err := s.current()
	if err != nil {
		return err
	}

	err = coll.Write(ctx, func(tx repository.Txn) error {
		return fn(tx, partition)
	})
	if err != nil {
		if errors.Is(err, repository.ErrClosed) {
			return NewNotOpen(partition)
		}
		logger.Warn("Service: Ошибка транзакции записи",
			zap.String("operation", operation),
			zap.String("partition", partition),
			zap.Error(err))
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}

// CreateTask: результат придёт асинхронно через слушатель коллекции
func (s *TaskListState) CreateTask(ctx context.Context, name string) error {
	return s.write(ctx, "создание задачи", func(tx repository.Txn, partition string) error {
		return tx.Create(ctx, task.New(partition, task.WithName(name)))
	})
}

func (s *TaskListState) SetTaskStatus(ctx context.Context, t task.Task, status task.Status) error {
	if !status.Valid() {
		return NewInvalidStatus(string(status))
	}

	err := s.write(ctx, "обновление статуса", func(tx repository.Txn, _ string) error {
		return tx.SetStatus(ctx, t.ID, status)
	})
	if errors.Is(err, repository.ErrNotFound) {
		notFound := NewNotFound("задача", t.ID.String())
		notFound.Err = err
		return notFound
	}
	return err
}

func (s *TaskListState) DeleteTask(ctx context.Context, t task.Task) error {
	err := s.write(ctx, "удаление задачи", func(tx repository.Txn, _ string) error {
		return tx.Delete(ctx, t.ID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		notFound := NewNotFound("задача", t.ID.String())
		notFound.Err = err
		return notFound
	}
	return err
}
