//go:build integration

package redis_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	chatredis "github.com/dukex/chatflow/pkg/persistence/redis"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisContainer testcontainers.Container

func setupRedis(t *testing.T) (*chatredis.Persistence, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	if redisContainer == nil {
		var err error

		redisContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor:   wait.ForLog("Ready to accept connections"),
			},
			Started: true,
		})
		require.NoError(t, err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// a fresh namespace per test keeps them independent without FLUSHDB
	p, err := chatredis.NewPersistence(ctx, logger, "redis://"+endpoint+"/0",
		chatredis.WithNamespace("test-"+uuid.NewString()))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, p.Close(ctx))
		cancel()
	})

	return p, ctx
}

func TestPersistence_HealthCheck(t *testing.T) {
	p, ctx := setupRedis(t)

	require.NoError(t, p.HealthCheck(ctx))
}

func TestFlowRepository(t *testing.T) {
	p, ctx := setupRedis(t)
	repo := p.FlowRepository()

	flow := testutil.CreateTestFlow(
		testutil.WithNodes(testutil.TextNode("welcome", "Hi")),
	)
	draft := testutil.CreateTestFlow(testutil.WithStatus(models.FlowStatusDraft))

	require.NoError(t, repo.SaveFlow(ctx, flow))
	require.NoError(t, repo.SaveFlow(ctx, draft))

	loaded, err := repo.FlowByID(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 1)

	published, err := repo.Flows(ctx, persistence.FlowFilter{Status: models.FlowStatusPublished})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, flow.ID, published[0].ID)

	require.NoError(t, repo.DeleteFlow(ctx, flow.ID))

	_, err = repo.FlowByID(ctx, flow.ID)
	assert.True(t, persistence.IsFlowNotFound(err))
	assert.True(t, persistence.IsFlowNotFound(repo.DeleteFlow(ctx, flow.ID)))
}

func TestSessionRepository_ActiveIndex(t *testing.T) {
	p, ctx := setupRedis(t)
	repo := p.SessionRepository()

	now := time.Now().UTC()

	idle := testutil.CreateTestSession("flow-1", testutil.WithLastActivity(now.Add(-2*time.Hour)))
	busy := testutil.CreateTestSession("flow-1", testutil.WithLastActivity(now))

	require.NoError(t, repo.SaveSession(ctx, &idle))
	require.NoError(t, repo.SaveSession(ctx, &busy))

	found, err := repo.ActiveSessionsIdleSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, idle.ID, found[0].ID)

	idle.Status = models.SessionStatusAbandoned
	require.NoError(t, repo.SaveSession(ctx, &idle))

	found, err = repo.ActiveSessionsIdleSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, found)

	loaded, err := repo.SessionByID(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusAbandoned, loaded.Status)

	require.NoError(t, repo.DeleteSession(ctx, busy.ID))

	_, err = repo.SessionByID(ctx, busy.ID)
	assert.True(t, persistence.IsSessionNotFound(err))
}

func TestLocker_Exclusive(t *testing.T) {
	p, ctx := setupRedis(t)
	locker := p.Locker()

	unlock, err := locker.Lock(ctx, "session-1")
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(waitCtx, "session-1")
	require.ErrorIs(t, err, persistence.ErrLockNotAcquired)

	other, err := locker.Lock(ctx, "session-2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx))

	again, err := locker.Lock(ctx, "session-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
