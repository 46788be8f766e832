package main

import (
	"fmt"

	"taskSync/internal/config"
	"taskSync/internal/logger"
	"taskSync/internal/repository/migrations"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Миграции схемы для sqlite и postgres",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Применить все миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrations.Up)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Откатить все миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(migrations.Down)
		},
	})

	return cmd
}

func runMigrate(apply func(migrations.Dialect, string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging.Development); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	defer logger.Sync()

	switch cfg.Repository.Type {
	case config.RepositorySQLite:
		return apply(migrations.SQLite, migrations.SQLiteURL(cfg.SQLite.Path))
	case config.RepositoryPostgres:
		return apply(migrations.Postgres, cfg.Database.URL)
	default:
		return fmt.Errorf("для хранилища %q миграции не нужны", cfg.Repository.Type)
	}
}
