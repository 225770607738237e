package eventbus_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/chatflow/pkg/channels/gochannel"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newBus(t)

	received := make(chan *events.SessionCompleted, 1)

	require.NoError(t, bus.Handle(events.SessionCompletedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.SessionCompleted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	session := models.Session{ID: "session-1", FlowID: "flow-1", Status: models.SessionStatusCompleted}

	// no handler registered for this one; it must be skipped
	require.NoError(t, bus.Publish(ctx, session.ID, events.SessionTurn{
		SessionBase: events.NewSessionBase(events.SessionTurnEvent, session),
	}))

	require.NoError(t, bus.Publish(ctx, session.ID, events.SessionCompleted{
		SessionBase:     events.NewSessionBase(events.SessionCompletedEvent, session),
		DurationSeconds: 90,
		Variables:       map[string]any{"name": "Ana"},
	}))

	select {
	case got := <-received:
		assert.Equal(t, "session-1", got.SessionID)
		assert.Equal(t, "flow-1", got.FlowID)
		assert.Equal(t, int64(90), got.DurationSeconds)
		assert.Equal(t, "Ana", got.Variables["name"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestWatermillEventBus_HandlerErrorRedelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newBus(t)

	var attempts atomic.Int32

	done := make(chan struct{})

	require.NoError(t, bus.Handle(events.FlowPublishedEvent, func(context.Context, any) error {
		if attempts.Add(1) == 1 {
			return errors.New("temporary")
		}

		close(done)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "flow-1", events.FlowPublished{
		BaseEvent: events.NewBaseEvent(events.FlowPublishedEvent, "flow-1", "tenant-1"),
		FlowName:  "Onboarding",
	}))

	select {
	case <-done:
		assert.Equal(t, int32(2), attempts.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("event not redelivered")
	}
}

func TestDiscard(t *testing.T) {
	var publisher eventbus.EventPublisher = eventbus.Discard{}

	assert.NoError(t, publisher.Publish(context.Background(), "k", events.FlowArchived{}))
}
