package services

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	service *Sessions
	repo    persistence.SessionRepository
	bus     *mocks.MockEventBus
	clock   *time.Time
}

func (f *sessionFixture) published() []eventbus.Event {
	var out []eventbus.Event

	for _, call := range f.bus.Calls {
		if call.Method == "Publish" {
			out = append(out, call.Arguments.Get(2).(eventbus.Event))
		}
	}

	return out
}

func greetingFlow(pii bool) *models.Flow {
	return testutil.CreateTestFlow(
		testutil.WithFlowID("greeting"),
		testutil.WithNodes(
			testutil.TextNode("start", "Welcome!"),
			testutil.InputNode("ask_name", "What's your name?", models.VariableTypeText, "name"),
			testutil.TextNode("greet", "Hi {{name}}"),
		),
		testutil.WithChain("start", "ask_name", "greet"),
		testutil.WithVariables(
			models.VariableDeclaration{Name: "name", Type: models.VariableTypeText, IsPII: pii},
			models.VariableDeclaration{Name: "plan", Type: models.VariableTypeText, DefaultValue: "free"},
		),
	)
}

func newSessionFixture(t *testing.T, flows ...*models.Flow) *sessionFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := fixedNow

	source := engine.NewMemoryFlowSource(flows...)
	runner := engine.NewEngine(source, nil,
		engine.WithLogger(logger),
		engine.WithClock(func() time.Time { return fixedNow }),
	)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	repo := file.NewPersistence(t.TempDir()).SessionRepository()

	service := NewSessions(runner, source, repo,
		WithSessionsPublisher(bus),
		WithSessionsLogger(logger),
		WithSessionsClock(func() time.Time { return clock }),
	)

	return &sessionFixture{service: service, repo: repo, bus: bus, clock: &clock}
}

func TestSessions_StartAndContinue(t *testing.T) {
	f := newSessionFixture(t, greetingFlow(true))

	started, err := f.service.Start(t.Context(), engine.CreateSessionRequest{
		FlowID:  "greeting",
		Trigger: models.Trigger{Type: "whatsapp"},
		Contact: models.Contact{ID: "contact-1"},
	})
	require.NoError(t, err)
	require.Len(t, started.Responses, 2)
	assert.Equal(t, models.PendingInput, started.Session.Context.Pending)

	stored, err := f.service.Get(t.Context(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "ask_name", stored.Context.CurrentNodeID)

	continued, err := f.service.Continue(t.Context(), started.Session.ID, "Ana")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, continued.Session.Status)
	assert.Equal(t, "Hi Ana", continued.Responses[len(continued.Responses)-1].Content)

	stored, err = f.service.Get(t.Context(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, stored.Status)

	assert.Equal(t, []events.EventType{
		events.SessionStartedEvent,
		events.SessionTurnEvent,
		events.SessionTurnEvent,
		events.SessionCompletedEvent,
	}, f.bus.PublishedTypes())

	published := f.published()

	startedEvent := published[0].(events.SessionStarted)
	assert.Equal(t, "contact-1", startedEvent.ContactID)
	assert.Equal(t, "whatsapp", startedEvent.TriggerType)

	completed := published[3].(events.SessionCompleted)
	assert.Equal(t, started.Session.ID, completed.SessionID)
	assert.Equal(t, "free", completed.Variables["plan"])
	assert.NotContains(t, completed.Variables, "name")

	f.bus.AssertCalled(t, "Publish", mock.Anything, started.Session.ID, mock.Anything)
}

func TestSessions_CompletedEventKeepsNonPII(t *testing.T) {
	f := newSessionFixture(t, greetingFlow(false))

	started, err := f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "greeting"})
	require.NoError(t, err)

	_, err = f.service.Continue(t.Context(), started.Session.ID, "Ana")
	require.NoError(t, err)

	published := f.published()
	completed := published[len(published)-1].(events.SessionCompleted)
	assert.Equal(t, "Ana", completed.Variables["name"])
}

func TestSessions_StartErrors(t *testing.T) {
	draft := greetingFlow(false)
	draft.ID = "draft"
	draft.Status = models.FlowStatusDraft

	f := newSessionFixture(t, greetingFlow(false), draft)

	_, err := f.service.Start(t.Context(), engine.CreateSessionRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.True(t, IsValidationError(err))

	_, err = f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "draft"})
	require.ErrorIs(t, err, engine.ErrFlowNotPublished)
	assert.True(t, IsConflictError(err))

	_, err = f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "nope"})
	assert.True(t, IsNotFoundError(err))

	assert.Empty(t, f.bus.PublishedTypes())
}

func TestSessions_ContinueErrors(t *testing.T) {
	f := newSessionFixture(t, greetingFlow(false))

	_, err := f.service.Continue(t.Context(), "missing", "hi")
	assert.True(t, IsNotFoundError(err))

	started, err := f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "greeting"})
	require.NoError(t, err)

	_, err = f.service.Continue(t.Context(), started.Session.ID, "Ana")
	require.NoError(t, err)

	_, err = f.service.Continue(t.Context(), started.Session.ID, "again")
	require.ErrorIs(t, err, engine.ErrSessionNotActive)
	assert.True(t, IsConflictError(err))
}

func TestSessions_ConcurrentTurnsAreSerialized(t *testing.T) {
	f := newSessionFixture(t, greetingFlow(false))

	started, err := f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "greeting"})
	require.NoError(t, err)

	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		inactive  int
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.service.Continue(t.Context(), started.Session.ID, "Ana")

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case IsConflictError(err):
				inactive++
			}
		}()
	}

	wg.Wait()

	// the first turn completes the session; every other one sees it finished
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, inactive)

	stored, err := f.service.Get(t.Context(), started.Session.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ConversationSteps, 4)
}

func TestSessions_Transfer(t *testing.T) {
	f := newSessionFixture(t, greetingFlow(false))

	started, err := f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "greeting"})
	require.NoError(t, err)

	_, err = f.service.Transfer(t.Context(), started.Session.ID, "")
	require.ErrorIs(t, err, ErrTransferTargetMiss)

	transferred, err := f.service.Transfer(t.Context(), started.Session.ID, "support-team")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTransferred, transferred.Status)

	stored, err := f.service.Get(t.Context(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusTransferred, stored.Status)

	published := f.published()
	event := published[len(published)-1].(events.SessionTransferred)
	assert.Equal(t, "support-team", event.Target)

	_, err = f.service.Continue(t.Context(), started.Session.ID, "hello?")
	require.ErrorIs(t, err, engine.ErrSessionNotActive)
}

func TestSessions_AbandonIdle(t *testing.T) {
	f := newSessionFixture(t, greetingFlow(false))

	started, err := f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "greeting"})
	require.NoError(t, err)

	count, err := f.service.AbandonIdle(t.Context(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)

	*f.clock = fixedNow.Add(2 * time.Hour)

	count, err = f.service.AbandonIdle(t.Context(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := f.service.Get(t.Context(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusAbandoned, stored.Status)

	published := f.published()
	event := published[len(published)-1].(events.SessionAbandoned)
	assert.Equal(t, 2*time.Hour, event.IdleFor)

	count, err = f.service.AbandonIdle(t.Context(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSessions_AbandonIdleSkipsSessionsThatMovedOn(t *testing.T) {
	repo := &mocks.MockSessionRepository{}

	stale := testutil.CreateTestSession("greeting", testutil.WithLastActivity(fixedNow.Add(-3*time.Hour)))
	fresh := stale.Clone()
	fresh.LastActivityAt = fixedNow

	// listed as idle, but a turn landed before the lock was taken
	repo.On("ActiveSessionsIdleSince", mock.Anything, fixedNow.Add(-time.Hour)).Return([]*models.Session{&stale}, nil)
	repo.On("SessionByID", mock.Anything, stale.ID).Return(&fresh, nil)

	service := NewSessions(engine.NewEngine(engine.NewMemoryFlowSource(), nil), nil, repo,
		WithSessionsClock(func() time.Time { return fixedNow }),
	)

	count, err := service.AbandonIdle(t.Context(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)

	repo.AssertNotCalled(t, "SaveSession", mock.Anything, mock.Anything)
}

func TestSessions_PublishFailureDoesNotFailTurn(t *testing.T) {
	f := newSessionFixture(t, greetingFlow(false))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	f.service.publisher = bus

	started, err := f.service.Start(t.Context(), engine.CreateSessionRequest{FlowID: "greeting"})
	require.NoError(t, err)

	_, err = f.service.Get(t.Context(), started.Session.ID)
	require.NoError(t, err)
}
