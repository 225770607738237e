package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/bridge"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/mocks"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestAPI(t *testing.T, b bridge.Bridge) (*API, *mocks.MockEventBus) {
	t.Helper()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	api := NewAPI(testLogger(), file.NewPersistence(t.TempDir()), persistence.NewMemoryLocker(), b, bus, nil)

	return api, bus
}

func request(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func TestAPI_RootEndpoint(t *testing.T) {
	api, _ := setupTestAPI(t, nil)

	resp, body := request(t, api.App(), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Chatflow API", string(body))
}

func TestAPI_HealthProbes(t *testing.T) {
	api, _ := setupTestAPI(t, nil)
	app := api.App()

	resp, body := request(t, app, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, _ = request(t, app, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	broken := NewAPI(testLogger(), file.NewPersistence(t.TempDir()+"/missing"), persistence.NewMemoryLocker(), nil, &mocks.MockEventBus{}, nil)

	resp, _ = request(t, broken.App(), http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

// integrationFlow asks the AI capability for an intent and branches on it.
func integrationFlow() map[string]any {
	return map[string]any{
		"name": "Support triage",
		"nodes": []*models.Node{
			testutil.Entry(testutil.InputNode("ask", "How can I help?", models.VariableTypeText, "question")),
			testutil.Node("classify", models.NodeTypeIntegration, map[string]any{
				"capability": "ai",
				"config":     map[string]any{"prompt": "{{question}}"},
				"routing": []any{
					map[string]any{"field": "intent", "value": "billing", "target": "billing"},
				},
			}),
			testutil.TextNode("billing", "Routing you to billing"),
			testutil.TextNode("other", "Let me find someone"),
		},
		"edges": []*models.Edge{
			testutil.Edge("ask", "classify"),
			testutil.Edge("classify", "other"),
		},
		"variables": []models.VariableDeclaration{{Name: "question", Type: models.VariableTypeText}},
	}
}

func TestAPI_ConversationThroughBridge(t *testing.T) {
	var calls atomic.Int32

	capabilities := bridge.NewRouter(testLogger()).Handle(bridge.CapabilityAIRequest, bridge.Func(
		func(_ context.Context, _ bridge.Capability, _ map[string]any, variables map[string]any) (bridge.Result, error) {
			calls.Add(1)

			if variables["question"] == "my invoice is wrong" {
				return bridge.Result{Success: true, Data: map[string]any{"intent": "billing"}}, nil
			}

			return bridge.Result{Success: true, Data: map[string]any{"intent": "unknown"}}, nil
		},
	))

	api, bus := setupTestAPI(t, capabilities)
	app := api.App()

	resp, body := request(t, app, http.MethodPost, "/flows", integrationFlow())
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var flow models.Flow
	require.NoError(t, json.Unmarshal(body, &flow))

	resp, body = request(t, app, http.MethodPost, "/flows/"+flow.ID+"/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = request(t, app, http.MethodPost, "/sessions", map[string]any{
		"flowId":  flow.ID,
		"trigger": map[string]any{"type": "webchat"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var started struct {
		Session models.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(body, &started))

	resp, body = request(t, app, http.MethodPost, "/sessions/"+started.Session.ID+"/continue", map[string]any{
		"message": "my invoice is wrong",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var continued struct {
		Session   models.Session    `json:"session"`
		Responses []models.Response `json:"responses"`
	}
	require.NoError(t, json.Unmarshal(body, &continued))

	require.NotEmpty(t, continued.Responses)
	assert.Equal(t, "Routing you to billing", continued.Responses[len(continued.Responses)-1].Content)
	assert.Equal(t, models.SessionStatusCompleted, continued.Session.Status)
	assert.Equal(t, int32(1), calls.Load())

	assert.Contains(t, bus.PublishedTypes(), events.FlowPublishedEvent)
	assert.Contains(t, bus.PublishedTypes(), events.SessionCompletedEvent)
}

type sweepRecorder struct {
	calls  atomic.Int32
	result error
}

func (s *sweepRecorder) AbandonIdle(_ context.Context, maxIdle time.Duration) (int, error) {
	s.calls.Add(1)

	return int(maxIdle / time.Hour), s.result
}

func TestSweeper(t *testing.T) {
	recorder := &sweepRecorder{}
	sweeper := NewSweeper(recorder, 24*time.Hour, testLogger())

	require.Error(t, sweeper.Start(context.Background(), "not a schedule"))

	sweeper.Sweep(context.Background())
	assert.Equal(t, int32(1), recorder.calls.Load())

	recorder.result = errors.New("store down")
	sweeper.Sweep(context.Background())
	assert.Equal(t, int32(2), recorder.calls.Load())

	sweeper.Stop()
}

func TestSweeper_RunsOnSchedule(t *testing.T) {
	recorder := &sweepRecorder{}
	sweeper := NewSweeper(recorder, time.Hour, testLogger())

	require.NoError(t, sweeper.Start(context.Background(), "@every 1s"))
	defer sweeper.Stop()

	assert.Eventually(t, func() bool { return recorder.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
