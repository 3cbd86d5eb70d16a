package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(ctx, "ticket-1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxInside)
	require.Zero(t, k.held())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	r1, err := k.Acquire(ctx, "a")
	require.NoError(t, err)
	r2, err := k.Acquire(ctx, "b")
	require.NoError(t, err)
	r1()
	r2()
	r2()
	require.Zero(t, k.held())
}

func TestKeyedMutexTimeout(t *testing.T) {
	k := NewKeyedMutex()
	release, err := k.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = k.Acquire(ctx, "a")
	require.ErrorIs(t, err, ErrLockTimeout)
}

func newRedisLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, nil, RedisOptions{TTL: time.Second, Wait: wait, Retry: 5 * time.Millisecond}), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "ticket-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("ecoguard:lock:ticket-1"))

	_, err = l.Acquire(ctx, "ticket-1")
	require.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Acquire(ctx, "ticket-2")
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists("ecoguard:lock:ticket-1"))

	again, err := l.Acquire(ctx, "ticket-1")
	require.NoError(t, err)
	again()
}

func TestRedisLockerStaleReleaseKeepsNewHolder(t *testing.T) {
	l, mr := newRedisLocker(t, 50*time.Millisecond)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "ticket-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "ticket-1")
	require.NoError(t, err)

	stale()
	require.True(t, mr.Exists("ecoguard:lock:ticket-1"))
	fresh()
	require.False(t, mr.Exists("ecoguard:lock:ticket-1"))
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	l, _ := newRedisLocker(t, time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "ticket-1")
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	next, err := l.Acquire(ctx, "ticket-1")
	require.NoError(t, err)
	next()
}
