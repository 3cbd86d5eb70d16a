package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/observability"
	"github.com/spec-kit/ecoguard/internal/persistence"
	"github.com/spec-kit/ecoguard/internal/repository"
	"github.com/spec-kit/ecoguard/internal/service"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	RunE:  runCreateAdmin,
}

var adminFlags struct {
	name     string
	email    string
	password string
}

func init() {
	createAdminCmd.Flags().StringVar(&adminFlags.name, "name", "Administrator", "display name")
	createAdminCmd.Flags().StringVar(&adminFlags.email, "email", "", "login e-mail")
	createAdminCmd.Flags().StringVar(&adminFlags.password, "password", "", "password (defaults to $ECOGUARD_ADMIN_PASSWORD)")
	_ = createAdminCmd.MarkFlagRequired("email")
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required to create an administrator")
	}
	password := adminFlags.password
	if password == "" {
		password = os.Getenv("ECOGUARD_ADMIN_PASSWORD")
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

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: repository.NewUserRepository(pg.PoolHandle()),
	})
	user, err := authService.CreateAdministrator(ctx, adminFlags.name, adminFlags.email, password)
	if err != nil {
		return err
	}
	logger.Info("administrator created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return nil
}
