package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/config"
)

// ErrNotConfigured is returned by Ping on a dependency that was left disabled.
var ErrNotConfigured = errors.New("dependency not configured")

// Postgres holds the ticket store pool. A zero value means in-memory storage.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres opens the pool when a DSN is configured and verifies it with a
// ping before returning.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; tickets are kept in memory")
		return &Postgres{}, nil
	}

	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.String("application_name", poolCfg.ConnConfig.RuntimeParams["application_name"]),
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns),
		zap.Duration("ping", time.Since(start)))
	return &Postgres{Pool: pool}, nil
}

// poolConfig applies the service's pool sizing and session defaults to the
// parsed DSN. MinConns never exceeds MaxConns.
func poolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = min(cfg.MinConns, poolCfg.MaxConns)
	}
	if cfg.ConnMaxIdleSec > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(cfg.ConnMaxIdleSec) * time.Second
	}
	if cfg.ConnMaxLifeSec > 0 {
		poolCfg.MaxConnLifetime = time.Duration(cfg.ConnMaxLifeSec) * time.Second
		// Spread reconnects.
		poolCfg.MaxConnLifetimeJitter = poolCfg.MaxConnLifetime / 10
	}
	if cfg.HealthCheckSec > 0 {
		poolCfg.HealthCheckPeriod = time.Duration(cfg.HealthCheckSec) * time.Second
	}

	params := poolCfg.ConnConfig.RuntimeParams
	if _, set := params["application_name"]; !set && cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeoutMs > 0 {
		params["statement_timeout"] = strconv.Itoa(cfg.StatementTimeoutMs)
	}
	return poolCfg, nil
}

// Name identifies the dependency in readiness output.
func (p *Postgres) Name() string { return "postgres" }

// Enabled reports whether a pool was opened.
func (p *Postgres) Enabled() bool { return p.PoolHandle() != nil }

// Close releases pool resources.
func (p *Postgres) Close() {
	if p != nil && p.Pool != nil {
		p.Pool.Close()
	}
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if !p.Enabled() {
		return ErrNotConfigured
	}
	return p.Pool.Ping(ctx)
}

// PoolHandle returns the underlying pgx pool, nil when storage is in memory.
func (p *Postgres) PoolHandle() *pgxpool.Pool {
	if p == nil {
		return nil
	}
	return p.Pool
}
