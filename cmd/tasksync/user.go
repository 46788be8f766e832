package main

import (
	"errors"
	"fmt"

	"taskSync/internal/app"
	"taskSync/internal/config"
	"taskSync/internal/identity"
	"taskSync/internal/logger"

	"github.com/spf13/cobra"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Учётные записи",
	}

	var email, password string
	add := &cobra.Command{
		Use:   "add",
		Short: "Зарегистрировать пользователя",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Repository.Type == config.RepositoryInMemory {
				return errors.New("хранилище в памяти живёт только внутри serve, выберите sqlite или postgres")
			}
			if err := logger.Init(cfg.Logging.Development); err != nil {
				return fmt.Errorf("инициализация логгера: %w", err)
			}
			defer logger.Sync()

			storage, err := app.OpenStorage(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer storage.Close()

			u, err := identity.NewService(storage.Users).Register(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "пользователь %s создан, identity %s\n", u.Email, u.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "email пользователя")
	add.Flags().StringVar(&password, "password", "", "пароль")
	_ = add.MarkFlagRequired("email")
	_ = add.MarkFlagRequired("password")

	cmd.AddCommand(add)
	return cmd
}
