package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only while it still holds our token, so a
// holder whose TTL lapsed cannot free someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every service instance using the same Redis.
type RedisLocker struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// RedisOptions tunes a RedisLocker.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Wait   time.Duration
	Retry  time.Duration
}

// NewRedisLocker builds a locker on an existing client.
func NewRedisLocker(client *redis.Client, logger *zap.Logger, opts RedisOptions) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "ecoguard:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client: client,
		logger: logger,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		wait:   opts.Wait,
		retry:  opts.Retry,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	redisKey := l.prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, timeoutOr(ctxErr)
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, timeoutOr(ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) releaser(redisKey, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			l.logger.Warn("release ticket lock", zap.String("key", redisKey), zap.Error(err))
		}
	}
}

func timeoutOr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return err
}
