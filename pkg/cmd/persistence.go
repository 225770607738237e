// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/persistence/postgresql"
	"github.com/dukex/chatflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence opens the store named by the URL scheme. A URL with no
// known scheme is treated as a file store root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return p, nil
	case "redis", "rediss":
		p, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

// NewLocker returns the lock that serializes turns per session. Redis stores
// share their lock across API replicas; everything else locks in process.
func NewLocker(p persistence.Persistence) persistence.Locker {
	if r, ok := p.(*redis.Persistence); ok {
		return r.Locker()
	}

	return persistence.NewMemoryLocker()
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
