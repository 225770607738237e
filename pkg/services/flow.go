package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/flowvalidator"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// Invalidator drops cached copies of a flow, typically an engine.CachedFlowSource.
type Invalidator interface {
	Invalidate(id string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string) {}

// Flow manages the flow lifecycle: draft edits, validation, publish, unpublish and archive.
type Flow struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	cache       Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

type FlowOption func(*Flow)

func WithFlowPublisher(publisher eventbus.EventPublisher) FlowOption {
	return func(f *Flow) {
		f.publisher = publisher
	}
}

func WithFlowCache(cache Invalidator) FlowOption {
	return func(f *Flow) {
		f.cache = cache
	}
}

func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

func WithFlowClock(now func() time.Time) FlowOption {
	return func(f *Flow) {
		f.now = now
	}
}

// NewFlow creates a new flow service.
func NewFlow(persistence persistence.Persistence, opts ...FlowOption) *Flow {
	f := &Flow{
		persistence: persistence,
		publisher:   eventbus.Discard{},
		cache:       noopInvalidator{},
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// HealthCheck checks the health of the persistence layer.
func (f *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if f.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := f.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListFlowsRequest filters a flow listing.
type ListFlowsRequest struct {
	TenantID string
	Status   models.FlowStatus
}

func (f *Flow) ListFlows(ctx context.Context, req ListFlowsRequest) ([]*models.Flow, error) {
	if req.Status != "" && !validStatus(req.Status) {
		return nil, NewValidationError("ListFlows", "invalid_status", fmt.Sprintf("unknown status %q", req.Status), ErrInvalidStatus)
	}

	flows, err := f.persistence.FlowRepository().Flows(ctx, persistence.FlowFilter{
		TenantID: req.TenantID,
		Status:   req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return flows, nil
}

func (f *Flow) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	return f.persistence.FlowRepository().FlowByID(ctx, id)
}

// CreateFlow stores a new draft. Any status sent by the caller is ignored.
func (f *Flow) CreateFlow(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, ErrFlowNil
	}

	if flow.Name == "" {
		return nil, NewValidationError("CreateFlow", "name_required", "flow name is required", ErrFlowNameRequired)
	}

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	now := f.now()

	flow.Status = models.FlowStatusDraft
	flow.CreatedAt = now
	flow.UpdatedAt = now
	flow.PublishedAt = nil
	flow.ArchivedAt = nil

	normalize(flow)

	err := f.persistence.FlowRepository().SaveFlow(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	f.logger.InfoContext(ctx, "Flow created", "flow_id", flow.ID, "tenant_id", flow.TenantID)

	return flow, nil
}

// UpdateFlowRequest is a partial update; nil fields are left unchanged.
type UpdateFlowRequest struct {
	Name        *string
	Description *string
	Nodes       []*models.Node
	Edges       []*models.Edge
	Variables   []models.VariableDeclaration
	Settings    map[string]any
}

// UpdateFlow edits a draft flow.
func (f *Flow) UpdateFlow(ctx context.Context, id string, req UpdateFlowRequest) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().FlowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !flow.IsEditable() {
		return nil, &ServiceError{
			Op:      "UpdateFlow",
			Code:    "flow_not_editable",
			Message: fmt.Sprintf("flow %s is %s", id, flow.Status),
			Err:     ErrCannotModifyPublished,
		}
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, NewValidationError("UpdateFlow", "name_required", "flow name is required", ErrFlowNameRequired)
		}

		flow.Name = *req.Name
	}

	if req.Description != nil {
		flow.Description = *req.Description
	}

	if req.Nodes != nil {
		flow.Nodes = req.Nodes
	}

	if req.Edges != nil {
		flow.Edges = req.Edges
	}

	if req.Variables != nil {
		flow.Variables = req.Variables
	}

	if req.Settings != nil {
		flow.Settings = req.Settings
	}

	flow.UpdatedAt = f.now()

	err = f.persistence.FlowRepository().SaveFlow(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

// DeleteFlow removes a flow that no session can start on.
func (f *Flow) DeleteFlow(ctx context.Context, id string) error {
	flow, err := f.persistence.FlowRepository().FlowByID(ctx, id)
	if err != nil {
		return err
	}

	if flow.IsPublished() {
		return &ServiceError{Op: "DeleteFlow", Code: "flow_published", Message: "unpublish the flow first", Err: ErrInvalidTransition}
	}

	err = f.persistence.FlowRepository().DeleteFlow(ctx, id)
	if err != nil {
		return err
	}

	f.cache.Invalidate(id)

	return nil
}

func (f *Flow) ValidateFlow(ctx context.Context, id string) (flowvalidator.Result, error) {
	flow, err := f.persistence.FlowRepository().FlowByID(ctx, id)
	if err != nil {
		return flowvalidator.Result{}, err
	}

	return flowvalidator.Validate(flow), nil
}

// PublishFlow moves a draft to published when the validator accepts it.
func (f *Flow) PublishFlow(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().FlowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow.Status != models.FlowStatusDraft {
		return nil, transitionError("PublishFlow", flow, models.FlowStatusPublished)
	}

	result := flowvalidator.Validate(flow)
	if !result.Valid {
		return nil, &InvalidFlowError{FlowID: id, Result: result}
	}

	now := f.now()
	flow.Status = models.FlowStatusPublished
	flow.PublishedAt = &now
	flow.UpdatedAt = now

	err = f.persistence.FlowRepository().SaveFlow(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to publish flow: %w", err)
	}

	f.cache.Invalidate(id)

	f.logger.InfoContext(ctx, "Flow published", "flow_id", id, "warnings", len(result.Warnings()))

	f.publish(ctx, id, events.FlowPublished{
		BaseEvent:   events.NewBaseEvent(events.FlowPublishedEvent, flow.ID, flow.TenantID),
		FlowName:    flow.Name,
		PublishedAt: now,
	})

	return flow, nil
}

// UnpublishFlow stops new sessions from starting on a published flow.
func (f *Flow) UnpublishFlow(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().FlowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !flow.IsPublished() {
		return nil, transitionError("UnpublishFlow", flow, models.FlowStatusUnpublished)
	}

	flow.Status = models.FlowStatusUnpublished
	flow.UpdatedAt = f.now()

	err = f.persistence.FlowRepository().SaveFlow(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to unpublish flow: %w", err)
	}

	f.cache.Invalidate(id)

	f.publish(ctx, id, events.FlowUnpublished{
		BaseEvent: events.NewBaseEvent(events.FlowUnpublishedEvent, flow.ID, flow.TenantID),
		FlowName:  flow.Name,
	})

	return flow, nil
}

// ArchiveFlow retires a flow from any status.
func (f *Flow) ArchiveFlow(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := f.persistence.FlowRepository().FlowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow.Status == models.FlowStatusArchived {
		return flow, nil
	}

	now := f.now()
	flow.Status = models.FlowStatusArchived
	flow.ArchivedAt = &now
	flow.UpdatedAt = now

	err = f.persistence.FlowRepository().SaveFlow(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to archive flow: %w", err)
	}

	f.cache.Invalidate(id)

	f.publish(ctx, id, events.FlowArchived{
		BaseEvent:  events.NewBaseEvent(events.FlowArchivedEvent, flow.ID, flow.TenantID),
		FlowName:   flow.Name,
		ArchivedAt: now,
	})

	return flow, nil
}

func (f *Flow) publish(ctx context.Context, key string, event eventbus.Event) {
	err := f.publisher.Publish(ctx, key, event)
	if err != nil {
		f.logger.ErrorContext(ctx, "failed to publish flow event", "event_type", event.GetType(), "flow_id", key, "error", err)
	}
}

func transitionError(op string, flow *models.Flow, to models.FlowStatus) error {
	return &ServiceError{
		Op:      op,
		Code:    "invalid_transition",
		Message: fmt.Sprintf("flow %s cannot go from %s to %s", flow.ID, flow.Status, to),
		Err:     ErrInvalidTransition,
	}
}

func validStatus(status models.FlowStatus) bool {
	switch status {
	case models.FlowStatusDraft, models.FlowStatusPublished, models.FlowStatusUnpublished, models.FlowStatusArchived:
		return true
	default:
		return false
	}
}

func normalize(flow *models.Flow) {
	if flow.Nodes == nil {
		flow.Nodes = []*models.Node{}
	}

	if flow.Edges == nil {
		flow.Edges = []*models.Edge{}
	}

	if flow.Variables == nil {
		flow.Variables = []models.VariableDeclaration{}
	}
}
