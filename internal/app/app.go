package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskSync/internal/config"
	"taskSync/internal/handlers"
	"taskSync/internal/identity"
	"taskSync/internal/logger"
	"taskSync/internal/middleware"
	"taskSync/internal/repository"
	"taskSync/internal/repository/migrations"
	taskinmemory "taskSync/internal/repository/task/inmemory"
	taskpostgres "taskSync/internal/repository/task/postgres"
	tasksqlite "taskSync/internal/repository/task/sqlite"
	userinmemory "taskSync/internal/repository/user/inmemory"
	userpostgres "taskSync/internal/repository/user/postgres"
	usersqlite "taskSync/internal/repository/user/sqlite"
	"taskSync/internal/service"
	"taskSync/internal/worker"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Storage - хранилища одного бэкенда
type Storage struct {
	Tasks  repository.Opener
	Users  identity.UserStore
	Health handlers.HealthChecker
	Close  func()
}

type App struct {
	config    *config.Config
	server    *http.Server
	router    *chi.Mux
	storage   *Storage
	identity  *identity.Service
	auth      *service.AuthState
	alerts    *service.AlertLog
	shell     *Shell
	worker    *worker.SessionWorker
	shutdowns []func() // функции для graceful shutdown
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}

	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
	})

	storage, err := OpenStorage(ctx, a.config, true)
	if err != nil {
		a.Shutdown()
		return nil, err
	}
	a.storage = storage
	a.shutdowns = append(a.shutdowns, storage.Close)

	a.identity = identity.NewService(storage.Users, identity.WithSessionTTL(a.config.Session.TTL))
	if err := a.bootstrapUser(ctx); err != nil {
		a.Shutdown()
		return nil, err
	}
	a.auth = service.MustAuthState(a.identity)
	a.alerts = service.NewAlertLog(0)
	a.shell = NewShell(a.auth, storage.Tasks, a.config.Sync.ProjectID, service.WithAlerter(a.alerts))
	a.shutdowns = append(a.shutdowns, a.shell.Close)

	interval := a.config.Session.ReapInterval
	a.worker = worker.NewSessionWorker(&sessionReaper{identity: a.identity, auth: a.auth}, &interval)

	a.router = a.Router()
	a.server = &http.Server{
		Addr:              a.config.GetServerAddr(),
		Handler:           a.router,
		ReadHeaderTimeout: a.config.Server.ReadTimeout,
	}

	logger.Info("Приложение инициализировано",
		zap.String("repository", a.config.Repository.Type),
		zap.String("project", a.config.Sync.ProjectID))
	return a, nil
}

func (a *App) bootstrapUser(ctx context.Context) error {
	boot := a.config.Bootstrap
	if boot.Email == "" {
		return nil
	}

	_, err := a.identity.Register(ctx, boot.Email, boot.Password)
	if errors.Is(err, repository.ErrAlreadyExists) {
		logger.Debug("Пользователь из bootstrap уже существует")
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap пользователя: %w", err)
	}
	return nil
}

// sessionReaper чистит истёкшие сессии в хранилище и заодно
// сбрасывает текущего пользователя, если его сессия среди них
type sessionReaper struct {
	identity *identity.Service
	auth     *service.AuthState
}

func (r *sessionReaper) ReapExpired(ctx context.Context) (int, error) {
	n, err := r.identity.ReapExpired(ctx)
	r.auth.CheckExpiry()
	return n, err
}

// Identity - сервис учётных записей, нужен командам CLI и тестам
func (a *App) Identity() *identity.Service {
	return a.identity
}

// Router собирает маршруты. Поток событий живёт без таймаута запроса.
func (a *App) Router() *chi.Mux {
	authHandler := handlers.NewAuthHandler(a.auth)
	taskHandler := handlers.NewTaskHandler(a.shell, a.alerts, a.storage.Health)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("tasksync"))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RateLimit(a.config.RateLimit.RequestsPerMinute))

	r.Get("/tasks/events", taskHandler.Events) // GET /tasks/events

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.LogIn)   // POST /auth/login
			r.Post("/logout", authHandler.LogOut) // POST /auth/logout
			r.Get("/me", authHandler.Me)          // GET /auth/me
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.GetTasks)  // GET /tasks
			r.Post("/", taskHandler.PostTask) // POST /tasks

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/status", taskHandler.UpdateTaskStatus) // PUT /tasks/{id}/status
				r.Delete("/", taskHandler.DeleteTask)          // DELETE /tasks/{id}
			})
		})

		r.Get("/alerts", taskHandler.GetAlerts) // GET /alerts
		r.Get("/health", taskHandler.HealthCheck)
	})

	return r
}

// Run работает до отмены ctx или падения одной из частей
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.worker.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("Остановка сервера...")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("остановка сервера: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown выполняет завершающие функции в обратном порядке
func (a *App) Shutdown() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
	a.shutdowns = nil
}

// OpenStorage поднимает выбранный бэкенд. migrate=true накатывает миграции перед открытием.
func OpenStorage(ctx context.Context, cfg *config.Config, migrate bool) (*Storage, error) {
	switch cfg.Repository.Type {
	case config.RepositoryInMemory:
		tasks := taskinmemory.NewTaskStorage()
		logger.Info("Хранилище: в памяти")
		return &Storage{
			Tasks:  tasks,
			Users:  userinmemory.NewUserStorage(),
			Health: tasks,
			Close:  func() {},
		}, nil

	case config.RepositorySQLite:
		if migrate {
			if err := migrations.Up(migrations.SQLite, migrations.SQLiteURL(cfg.SQLite.Path)); err != nil {
				return nil, err
			}
		}
		tasks, err := tasksqlite.New(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("открытие sqlite: %w", err)
		}
		logger.Info("Хранилище: sqlite", zap.String("path", cfg.SQLite.Path))
		return &Storage{
			Tasks:  tasks,
			Users:  usersqlite.New(tasks.DB()),
			Health: tasks,
			Close: func() {
				if err := tasks.Close(); err != nil {
					logger.Warn("Ошибка закрытия sqlite", zap.Error(err))
				}
			},
		}, nil

	case config.RepositoryPostgres:
		tasks, err := connectPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := migrations.Up(migrations.Postgres, cfg.Database.URL); err != nil {
				tasks.Close()
				return nil, err
			}
		}
		logger.Info("Хранилище: PostgreSQL")
		return &Storage{
			Tasks:  tasks,
			Users:  userpostgres.New(tasks.Pool()),
			Health: tasks,
			Close:  tasks.Close,
		}, nil
	}

	return nil, fmt.Errorf("неизвестный тип репозитория %q", cfg.Repository.Type)
}

// connectPostgres повторяет подключение с экспоненциальной паузой, пока база поднимается
func connectPostgres(ctx context.Context, db config.DatabaseConfig) (*taskpostgres.Storage, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = db.ConnectTimeout

	poolCfg := taskpostgres.PoolConfig{
		MaxConns:        db.MaxConnections,
		MinConns:        db.MinConnections,
		MaxConnIdleTime: db.IdleTimeout,
	}

	attempt := 0
	var storage *taskpostgres.Storage
	err := backoff.Retry(func() error {
		attempt++
		s, err := taskpostgres.New(ctx, db.URL, poolCfg)
		if err != nil {
			logger.Warn("Нет подключения к PostgreSQL, повтор",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		storage = s
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	return storage, nil
}
