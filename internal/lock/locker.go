// Package lock serializes work on a single ticket.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for ticket lock")

// Locker grants exclusive access to a key. The returned release func must
// be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex is an in-process Locker with one channel-based mutex per key.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex returns a ready Locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, l)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrLockTimeout
		}
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.drop(key, l)
		})
	}, nil
}

func (k *KeyedMutex) drop(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// held reports how many keys currently have waiters or holders.
func (k *KeyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
