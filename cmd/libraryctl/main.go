// Package main содержит административную утилиту библиотечного сервиса.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/config"
	"github.com/mmeshcher/library-system/internal/repository"
)

// app хранит общие для команд зависимости.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (a *app) openRepository() (*repository.PostgresRepository, error) {
	if a.cfg.DatabaseURI == "" {
		return nil, errors.New("DATABASE_URI is required")
	}
	return repository.NewPostgresRepository(a.cfg.DatabaseURI)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Administrative tool for the library service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			dsn, _ := cmd.Flags().GetString("database-uri")
			if dsn != "" {
				a.cfg.DatabaseURI = dsn
			}
			return nil
		},
	}

	root.PersistentFlags().StringP("database-uri", "d", "", "PostgreSQL DSN, overrides DATABASE_URI")

	root.AddCommand(
		newMigrateCommand(a),
		newSweepCommand(a),
		newCreateStaffCommand(a),
		newImportCommand(a),
		newHoldCommand(a),
	)

	return root
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", zap.Error(err))
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&app{cfg: cfg, logger: logger}).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
