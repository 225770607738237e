package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func failedSession() models.Session {
	return models.Session{
		ID:     "session-9",
		FlowID: "support",
		Status: models.SessionStatusError,
		Context: models.SessionContext{
			CurrentNodeID: "hook",
		},
	}
}

func TestAuditLog_Handle(t *testing.T) {
	var out lockedBuffer

	audit := NewAuditLog(slog.New(slog.NewTextHandler(&out, nil)))

	require.NoError(t, audit.Handle(context.Background(), &events.SessionFailed{
		SessionBase: events.NewSessionBase(events.SessionFailedEvent, failedSession()),
		Errors:      []models.SessionError{{Message: "timeout"}, {Message: "timeout"}, {Message: "timeout"}},
	}))

	line := out.String()
	assert.Contains(t, line, "level=ERROR")
	assert.Contains(t, line, `msg="Session failed"`)
	assert.Contains(t, line, "session_id=session-9")
	assert.Contains(t, line, "errors=3")
	assert.Contains(t, line, "component=audit")
}

func TestAuditLog_Register(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, NewAuditLog(testLogger()).Register(bus))

	bus.AssertNumberOfCalls(t, "Handle", len(auditedEvents))
	bus.AssertCalled(t, "Handle", events.SessionFailedEvent, mock.Anything)
	bus.AssertNotCalled(t, "Handle", events.SessionTurnEvent, mock.Anything)

	failing := &mocks.MockEventBus{}
	failing.On("Handle", mock.Anything, mock.Anything).Return(errors.New("closed"))

	require.Error(t, NewAuditLog(testLogger()).Register(failing))
}

func TestAuditLog_ConsumesFromBus(t *testing.T) {
	var out lockedBuffer

	logger := slog.New(slog.NewTextHandler(&out, nil))

	bus, err := cmd.NewEventBus("gochannel", "", testLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, NewAuditLog(logger).Register(bus))
	require.NoError(t, bus.Subscribe(ctx))

	session := failedSession()
	require.NoError(t, bus.Publish(ctx, session.ID, events.SessionTransferred{
		SessionBase: events.NewSessionBase(events.SessionTransferredEvent, session),
		Target:      "human-agent",
	}))

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "target=human-agent")
	}, 3*time.Second, 20*time.Millisecond)
}
