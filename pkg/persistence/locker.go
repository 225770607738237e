package persistence

import (
	"context"
	"fmt"
	"sync"
)

// Unlock releases a lock taken with Locker.Lock. Calling it more than once is safe.
type Unlock func(ctx context.Context) error

// Locker serializes turns on the same session. The engine itself holds no
// locks; whoever loads and saves snapshots is expected to take one per session.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	for {
		l.mu.Lock()

		released, busy := l.held[key]
		if !busy {
			released = make(chan struct{})
			l.held[key] = released
			l.mu.Unlock()

			var once sync.Once

			return func(context.Context) error {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					close(released)
					l.mu.Unlock()
				})

				return nil
			}, nil
		}

		l.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockNotAcquired, key, ctx.Err())
		}
	}
}
