package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/observability"
	"github.com/spec-kit/ecoguard/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required to migrate")
	}
	logger, err := observability.NewLogger(*cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx := cmd.Context()
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrations applied", zap.String("env", cfg.App.Env))
	return nil
}
