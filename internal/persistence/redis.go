package persistence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ecoguard/internal/config"
)

// Redis backs the cross-instance ticket locks.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the lock client. It returns nil when no address is
// configured; an unreachable server is logged and left to readiness.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if !cfg.Enabled() {
		logger.Warn("REDIS_ADDR not provided; ticket locks stay in-process")
		return nil
	}
	opts := redisOptions(cfg)
	client := redis.NewClient(opts)

	fields := []zap.Field{
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("pool_size", opts.PoolSize),
		zap.Duration("io_timeout", opts.ReadTimeout),
	}
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("unable to reach redis", append(fields, zap.Error(err))...)
	} else {
		logger.Info("connected to redis", fields...)
	}

	return &Redis{Client: client}
}

// redisOptions defaults to short timeouts since lock calls run inside HTTP
// requests.
func redisOptions(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: cfg.ClientName,
		PoolSize:   cfg.PoolSize,
	}
	opts.DialTimeout = 2 * time.Second
	if cfg.DialTimeoutMs > 0 {
		opts.DialTimeout = time.Duration(cfg.DialTimeoutMs) * time.Millisecond
	}
	opts.ReadTimeout = 500 * time.Millisecond
	if cfg.IOTimeoutMs > 0 {
		opts.ReadTimeout = time.Duration(cfg.IOTimeoutMs) * time.Millisecond
	}
	opts.WriteTimeout = opts.ReadTimeout
	return opts
}

// Name identifies the dependency in readiness output.
func (r *Redis) Name() string { return "redis" }

// Enabled reports whether a client was built.
func (r *Redis) Enabled() bool { return r != nil && r.Client != nil }

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return ErrNotConfigured
	}
	return r.Client.Ping(ctx).Err()
}
