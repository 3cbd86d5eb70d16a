package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ecoguard/internal/api/http"
	"github.com/spec-kit/ecoguard/internal/api/http/handlers"
	"github.com/spec-kit/ecoguard/internal/auth"
	"github.com/spec-kit/ecoguard/internal/blob"
	"github.com/spec-kit/ecoguard/internal/config"
	"github.com/spec-kit/ecoguard/internal/events"
	"github.com/spec-kit/ecoguard/internal/lock"
	"github.com/spec-kit/ecoguard/internal/observability"
	"github.com/spec-kit/ecoguard/internal/persistence"
	"github.com/spec-kit/ecoguard/internal/report"
	"github.com/spec-kit/ecoguard/internal/repository"
	"github.com/spec-kit/ecoguard/internal/repository/memory"
	"github.com/spec-kit/ecoguard/internal/service"
	"github.com/spec-kit/ecoguard/internal/worker"
	"github.com/spec-kit/ecoguard/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

type repositories struct {
	tickets  repository.TicketRepository
	messages repository.TicketMessageRepository
	history  repository.TicketHistoryRepository
	users    repository.UserRepository
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := observability.NewLogger(*cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	if pg.PoolHandle() != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	repos := buildRepositories(pg, logger)

	blobs, err := blob.NewFSStore(cfg.Blob.Dir)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if redis != nil {
		locker = lock.NewRedisLocker(redis.Client, logger, lock.RedisOptions{
			TTL:  cfg.Lock.TTL(),
			Wait: cfg.Lock.Wait(),
		})
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(logger, cfg.Notification)
	notifier := worker.NewNotificationWorker(notifications, logger, 0)
	notifier.Subscribe(dispatcher)
	// Delivery outlives the signal context so Stop can drain the queue.
	notifier.Start(context.Background())
	defer notifier.Stop(shutdownTimeout)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{UserRepo: repos.users})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:           repos.tickets,
		MessageRepo:          repos.messages,
		HistoryRepo:          repos.history,
		UserRepo:             repos.users,
		Blobs:                blobs,
		Locker:               locker,
		Engine:               workflow.New(),
		Dispatcher:           dispatcher,
		Logger:               logger,
		Metrics:              metrics,
		FinePerNonConformity: cfg.Report.FinePerNonConformity,
		MaxPhotoBytes:        cfg.Blob.MaxPhotoBytes,
	})

	renderer, err := report.NewRenderer()
	if err != nil {
		return fmt.Errorf("report renderer: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
		// Multipart framing on top of the largest accepted photo.
		BodyLimit: int(cfg.Blob.MaxPhotoBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService, cfg.Session),
		Tickets:        handlers.NewTicketsHandler(ticketService, renderer),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repos.users, cfg.Session.CookieName),
		Metrics:        metrics,
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("fiber listen: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}
	return app.ShutdownWithTimeout(shutdownTimeout)
}

// buildRepositories uses Postgres when configured and falls back to
// in-memory storage for local runs.
func buildRepositories(pg *persistence.Postgres, logger *zap.Logger) repositories {
	pool := pg.PoolHandle()
	if pool == nil {
		logger.Warn("running with in-memory storage; data is lost on restart")
		return repositories{
			tickets:  memory.NewTicketRepository(),
			messages: memory.NewMessageRepository(),
			history:  memory.NewHistoryRepository(),
			users:    memory.NewUserRepository(),
		}
	}
	return repositories{
		tickets:  repository.NewTicketRepository(pool),
		messages: repository.NewTicketMessageRepository(pool),
		history:  repository.NewTicketHistoryRepository(pool),
		users:    repository.NewUserRepository(pool),
	}
}
