package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"taskSync/internal/app"
	"taskSync/internal/logger"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP сервер",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg).Init(ctx)
			if err != nil {
				return err
			}
			defer a.Shutdown()

			if err := a.Run(ctx); err != nil {
				logger.Error("Сервер остановлен с ошибкой", err)
				return err
			}
			logger.Info("Сервер остановлен")
			return nil
		},
	}
}
