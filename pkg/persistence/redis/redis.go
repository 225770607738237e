// Package redis provides a Redis-backed snapshot store and a distributed turn lock.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const defaultNamespace = "chatflow"

// Persistence keeps flows and sessions as JSON strings. Active sessions are
// also indexed in a sorted set scored by last activity.
type Persistence struct {
	client      redis.UniversalClient
	logger      *slog.Logger
	flowRepo    *FlowRepository
	sessionRepo *SessionRepository
}

// Option customizes the Redis persistence.
type Option func(*keys)

// WithNamespace prefixes every key; the default is "chatflow".
func WithNamespace(namespace string) Option {
	return func(k *keys) {
		k.namespace = namespace
	}
}

// NewPersistence connects to the Redis server described by a redis:// or rediss:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, opts ...Option) (*Persistence, error) {
	options, err := redis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewPersistenceFromClient(client, logger, opts...), nil
}

// NewPersistenceFromClient wraps an existing client. Close closes it.
func NewPersistenceFromClient(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *Persistence {
	k := keys{namespace: defaultNamespace}
	for _, opt := range opts {
		opt(&k)
	}

	return &Persistence{
		client:      client,
		logger:      logger,
		flowRepo:    &FlowRepository{client: client, keys: k},
		sessionRepo: &SessionRepository{client: client, keys: k, logger: logger},
	}
}

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flowRepo
}

func (p *Persistence) SessionRepository() persistence.SessionRepository {
	return p.sessionRepo
}

// Locker returns a turn lock sharing this connection and namespace.
func (p *Persistence) Locker() *Locker {
	return NewLocker(p.client, WithLockPrefix(p.flowRepo.keys.key("lock")))
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

type keys struct {
	namespace string
}

func (k keys) key(args ...string) string {
	return fmt.Sprintf("%s:%s", k.namespace, strings.Join(args, ":"))
}

func (k keys) flow(id string) string    { return k.key("flow", id) }
func (k keys) flowIndex() string        { return k.key("flows") }
func (k keys) session(id string) string { return k.key("session", id) }
func (k keys) activeSessions() string   { return k.key("sessions", "active") }
