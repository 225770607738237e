package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var errLockBusy = errors.New("lock busy")

// Locker is a persistence.Locker built on SET NX PX. The TTL bounds how long a
// crashed holder can block a session.
type Locker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryEvery time.Duration
}

type LockerOption func(*Locker)

func WithLockPrefix(prefix string) LockerOption {
	return func(l *Locker) {
		l.prefix = prefix
	}
}

func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		l.ttl = ttl
	}
}

func WithRetryInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		l.retryEvery = d
	}
}

var _ persistence.Locker = (*Locker)(nil)

func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	l := &Locker{
		client:     client,
		prefix:     defaultNamespace + ":lock",
		ttl:        30 * time.Second,
		retryEvery: 25 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Lock polls until the key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (persistence.Unlock, error) {
	lockKey := l.prefix + ":" + key
	token := uuid.NewString()

	acquire := func() error {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}

		if !ok {
			return errLockBusy
		}

		return nil
	}

	err := backoff.Retry(acquire, backoff.WithContext(backoff.NewConstantBackOff(l.retryEvery), ctx))
	if err != nil {
		if errors.Is(err, errLockBusy) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", persistence.ErrLockNotAcquired, key)
		}

		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	released := false

	return func(ctx context.Context) error {
		if released {
			return nil
		}

		released = true

		err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}

		return nil
	}, nil
}
