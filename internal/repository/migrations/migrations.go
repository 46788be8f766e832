package migrations

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"taskSync/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed sqlite/*.sql
var sqliteFS embed.FS

// SQLiteURL - адрес файла базы в формате драйвера миграций
func SQLiteURL(path string) string {
	return "sqlite3://" + path
}

// Up применяет все миграции. url: postgres://... или sqlite3://путь
func Up(dialect Dialect, url string) error {
	logger.Info("Migrations: Применение миграций", zap.String("dialect", string(dialect)))

	m, err := newMigrate(dialect, url)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("Migrations: Не удалось применить миграции", err)
		return fmt.Errorf("применение миграций: %w", err)
	}

	logger.Info("Migrations: Миграции применены")
	return nil
}

func Down(dialect Dialect, url string) error {
	logger.Info("Migrations: Откат миграций", zap.String("dialect", string(dialect)))

	m, err := newMigrate(dialect, url)
	if err != nil {
		return err
	}
	defer closeMigrate(m)

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("Migrations: Не удалось откатить миграции", err)
		return fmt.Errorf("откат миграций: %w", err)
	}

	logger.Info("Migrations: Миграции откачены")
	return nil
}

func newMigrate(dialect Dialect, url string) (*migrate.Migrate, error) {
	var (
		fsys fs.FS
		dir  string
	)
	switch dialect {
	case Postgres:
		fsys, dir = postgresFS, "postgres"
	case SQLite:
		fsys, dir = sqliteFS, "sqlite"
	default:
		return nil, fmt.Errorf("неизвестный диалект миграций %q", dialect)
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("источник миграций: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("инициализация миграций: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("Migrations: Ошибка закрытия источника", zap.Error(srcErr))
	}
	if dbErr != nil {
		logger.Warn("Migrations: Ошибка закрытия базы", zap.Error(dbErr))
	}
}
