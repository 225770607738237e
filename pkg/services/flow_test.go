package services

import (
	"context"
	"errors"
	"testing"
	"time"

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

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Invalidate(id string) {
	c.invalidated = append(c.invalidated, id)
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newFlowService(t *testing.T) (*Flow, *mocks.MockEventBus, *recordingCache) {
	t.Helper()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	cache := &recordingCache{}

	service := NewFlow(file.NewPersistence(t.TempDir()),
		WithFlowPublisher(bus),
		WithFlowCache(cache),
		WithFlowClock(func() time.Time { return fixedNow }),
	)

	return service, bus, cache
}

func draftGreeting() *models.Flow {
	return &models.Flow{
		Name:     "Greeting",
		TenantID: "tenant-1",
		Status:   models.FlowStatusPublished,
		Nodes: []*models.Node{
			testutil.TextNode("start", "Welcome!"),
			testutil.InputNode("ask_name", "What's your name?", models.VariableTypeText, "name"),
		},
		Edges:     []*models.Edge{testutil.Edge("start", "ask_name")},
		Variables: []models.VariableDeclaration{{Name: "name", Type: models.VariableTypeText}},
	}
}

func TestFlow_HealthCheck(t *testing.T) {
	service, _, _ := newFlowService(t)

	message, ok := service.HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = NewFlow(nil).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", message)
}

func TestFlow_HealthCheck_Unhealthy(t *testing.T) {
	p := mocks.NewMockPersistence()
	p.On("HealthCheck", mock.Anything).Return(errors.New("disk gone"))

	message, ok := NewFlow(p).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Contains(t, message, "disk gone")
}

func TestFlow_CreateFlow(t *testing.T) {
	service, _, _ := newFlowService(t)

	created, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	// callers cannot create a flow straight into published
	assert.Equal(t, models.FlowStatusDraft, created.Status)
	assert.Equal(t, fixedNow, created.CreatedAt)
	assert.Nil(t, created.PublishedAt)

	fetched, err := service.GetFlow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", fetched.Name)
	assert.Len(t, fetched.Nodes, 2)
}

func TestFlow_CreateFlow_Validation(t *testing.T) {
	service, _, _ := newFlowService(t)

	_, err := service.CreateFlow(t.Context(), nil)
	require.ErrorIs(t, err, ErrFlowNil)

	_, err = service.CreateFlow(t.Context(), &models.Flow{})
	require.ErrorIs(t, err, ErrFlowNameRequired)
	assert.True(t, IsValidationError(err))

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, "name_required", serviceErr.Code)
}

func TestFlow_ListFlows(t *testing.T) {
	service, _, _ := newFlowService(t)

	first, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	other := draftGreeting()
	other.TenantID = "tenant-2"
	_, err = service.CreateFlow(t.Context(), other)
	require.NoError(t, err)

	flows, err := service.ListFlows(t.Context(), ListFlowsRequest{TenantID: "tenant-1"})
	require.NoError(t, err)
	require.Len(t, flows, 1)
	assert.Equal(t, first.ID, flows[0].ID)

	flows, err = service.ListFlows(t.Context(), ListFlowsRequest{Status: models.FlowStatusPublished})
	require.NoError(t, err)
	assert.Empty(t, flows)

	_, err = service.ListFlows(t.Context(), ListFlowsRequest{Status: "bogus"})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestFlow_UpdateFlow(t *testing.T) {
	service, _, _ := newFlowService(t)

	created, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	name := "Renamed"
	updated, err := service.UpdateFlow(t.Context(), created.ID, UpdateFlowRequest{
		Name:  &name,
		Nodes: []*models.Node{testutil.TextNode("only", "Hello")},
		Edges: []*models.Edge{},
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", updated.Name)
	assert.Len(t, updated.Nodes, 1)
	assert.Empty(t, updated.Edges)
	// untouched fields survive
	assert.Len(t, updated.Variables, 1)

	empty := ""
	_, err = service.UpdateFlow(t.Context(), created.ID, UpdateFlowRequest{Name: &empty})
	require.ErrorIs(t, err, ErrFlowNameRequired)

	_, err = service.UpdateFlow(t.Context(), "missing", UpdateFlowRequest{Name: &name})
	assert.True(t, IsNotFoundError(err))
}

func TestFlow_UpdateFlow_RejectsPublished(t *testing.T) {
	service, _, _ := newFlowService(t)

	created, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	_, err = service.PublishFlow(t.Context(), created.ID)
	require.NoError(t, err)

	name := "Renamed"
	_, err = service.UpdateFlow(t.Context(), created.ID, UpdateFlowRequest{Name: &name})
	require.ErrorIs(t, err, ErrCannotModifyPublished)
	assert.True(t, IsConflictError(err))
}

func TestFlow_PublishFlow(t *testing.T) {
	service, bus, cache := newFlowService(t)

	created, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	published, err := service.PublishFlow(t.Context(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, models.FlowStatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, fixedNow, *published.PublishedAt)
	assert.Equal(t, []string{created.ID}, cache.invalidated)
	assert.Equal(t, []events.EventType{events.FlowPublishedEvent}, bus.PublishedTypes())

	// publishing twice is a conflict, not a no-op
	_, err = service.PublishFlow(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFlow_PublishFlow_Invalid(t *testing.T) {
	service, bus, _ := newFlowService(t)

	flow := draftGreeting()
	flow.Edges = append(flow.Edges, testutil.Edge("ask_name", "ghost"))

	created, err := service.CreateFlow(t.Context(), flow)
	require.NoError(t, err)

	_, err = service.PublishFlow(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrFlowInvalid)
	assert.True(t, IsValidationError(err))

	var invalid *InvalidFlowError
	require.ErrorAs(t, err, &invalid)
	assert.False(t, invalid.Result.Valid)
	assert.NotEmpty(t, invalid.Result.Errors)

	stored, err := service.GetFlow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusDraft, stored.Status)
	assert.Empty(t, bus.PublishedTypes())
}

func TestFlow_Lifecycle(t *testing.T) {
	service, bus, _ := newFlowService(t)

	created, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	_, err = service.UnpublishFlow(t.Context(), created.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = service.PublishFlow(t.Context(), created.ID)
	require.NoError(t, err)

	require.ErrorIs(t, service.DeleteFlow(t.Context(), created.ID), ErrInvalidTransition)

	unpublished, err := service.UnpublishFlow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusUnpublished, unpublished.Status)

	archived, err := service.ArchiveFlow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)

	again, err := service.ArchiveFlow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusArchived, again.Status)

	assert.Equal(t, []events.EventType{
		events.FlowPublishedEvent,
		events.FlowUnpublishedEvent,
		events.FlowArchivedEvent,
	}, bus.PublishedTypes())

	require.NoError(t, service.DeleteFlow(t.Context(), created.ID))

	_, err = service.GetFlow(t.Context(), created.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestFlow_ValidateFlow(t *testing.T) {
	service, _, _ := newFlowService(t)

	created, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	result, err := service.ValidateFlow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	_, err = service.ValidateFlow(t.Context(), "missing")
	assert.True(t, IsNotFoundError(err))
}

func TestFlow_PublishErrorsDoNotFailTheOperation(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	service := NewFlow(file.NewPersistence(t.TempDir()), WithFlowPublisher(bus))

	created, err := service.CreateFlow(t.Context(), draftGreeting())
	require.NoError(t, err)

	published, err := service.PublishFlow(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusPublished, published.Status)
	bus.AssertNumberOfCalls(t, "Publish", 1)
}

func TestFlow_SaveFailure(t *testing.T) {
	p := mocks.NewMockPersistence()
	repo := p.GetMockFlowRepository()

	flow := draftGreeting()
	flow.ID = "flow-1"
	flow.Status = models.FlowStatusDraft

	repo.On("FlowByID", mock.Anything, "flow-1").Return(flow, nil)
	repo.On("SaveFlow", mock.Anything, mock.Anything).Return(errors.New("write failed"))

	_, err := NewFlow(p).PublishFlow(context.Background(), "flow-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write failed")
	assert.False(t, IsValidationError(err))
	assert.False(t, IsConflictError(err))

	repo.AssertExpectations(t)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFoundError(persistence.NewFlowError("get", "x", persistence.ErrFlowNotFound)))
	assert.True(t, IsNotFoundError(persistence.NewSessionError("get", "x", persistence.ErrSessionNotFound)))
	assert.True(t, IsValidationError(persistence.ErrInvalidID))
	assert.True(t, IsConflictError(persistence.ErrLockNotAcquired))
	assert.False(t, IsNotFoundError(errors.New("boom")))
}
