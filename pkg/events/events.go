// Package events defines the lifecycle notifications emitted for flows and sessions.
package events

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every lifecycle event; consumers filter by the event type metadata.
const Topic = "chatflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Flow lifecycle events.
	FlowPublishedEvent   EventType = "flow.published"
	FlowUnpublishedEvent EventType = "flow.unpublished"
	FlowArchivedEvent    EventType = "flow.archived"

	// Session lifecycle events.
	SessionStartedEvent     EventType = "session.started"
	SessionTurnEvent        EventType = "session.turn"
	SessionNodeFailedEvent  EventType = "session.node.failed"
	SessionCompletedEvent   EventType = "session.completed"
	SessionFailedEvent      EventType = "session.failed"
	SessionAbandonedEvent   EventType = "session.abandoned"
	SessionTransferredEvent EventType = "session.transferred"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, flowID, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		TenantID:  tenantID,
		Metadata:  make(map[string]any),
	}
}

type FlowPublished struct {
	BaseEvent

	FlowName    string    `json:"flow_name"`
	PublishedAt time.Time `json:"published_at"`
}

func (e FlowPublished) GetType() EventType {
	return FlowPublishedEvent
}

type FlowUnpublished struct {
	BaseEvent

	FlowName string `json:"flow_name"`
}

func (e FlowUnpublished) GetType() EventType {
	return FlowUnpublishedEvent
}

type FlowArchived struct {
	BaseEvent

	FlowName   string    `json:"flow_name"`
	ArchivedAt time.Time `json:"archived_at"`
}

func (e FlowArchived) GetType() EventType {
	return FlowArchivedEvent
}

// SessionBase is embedded by every session event.
type SessionBase struct {
	BaseEvent

	SessionID     string               `json:"session_id"`
	Status        models.SessionStatus `json:"status"`
	CurrentNodeID string               `json:"current_node_id,omitempty"`
	TriggerType   string               `json:"trigger_type,omitempty"`
}

// Key is the partition key of a session event.
func (b SessionBase) Key() string {
	return b.SessionID
}

func NewSessionBase(eventType EventType, session models.Session) SessionBase {
	return SessionBase{
		BaseEvent:     NewBaseEvent(eventType, session.FlowID, session.TenantID),
		SessionID:     session.ID,
		Status:        session.Status,
		CurrentNodeID: session.Context.CurrentNodeID,
		TriggerType:   session.Trigger.Type,
	}
}

type SessionStarted struct {
	SessionBase

	ContactID string `json:"contact_id,omitempty"`
}

func (e SessionStarted) GetType() EventType {
	return SessionStartedEvent
}

// SessionTurn is published after every processed turn.
type SessionTurn struct {
	SessionBase

	Responses            int                `json:"responses"`
	Pending              models.PendingKind `json:"pending,omitempty"`
	CompletionPercentage int                `json:"completion_percentage"`
}

func (e SessionTurn) GetType() EventType {
	return SessionTurnEvent
}

type SessionNodeFailed struct {
	SessionBase

	NodeID     string `json:"node_id"`
	Error      string `json:"error"`
	ErrorCount int    `json:"error_count"`
}

func (e SessionNodeFailed) GetType() EventType {
	return SessionNodeFailedEvent
}

type SessionCompleted struct {
	SessionBase

	DurationSeconds int64          `json:"duration_seconds"`
	Variables       map[string]any `json:"variables,omitempty"`
}

func (e SessionCompleted) GetType() EventType {
	return SessionCompletedEvent
}

// SessionFailed means the session reached the error threshold.
type SessionFailed struct {
	SessionBase

	Errors []models.SessionError `json:"errors"`
}

func (e SessionFailed) GetType() EventType {
	return SessionFailedEvent
}

type SessionAbandoned struct {
	SessionBase

	IdleFor time.Duration `json:"idle_for"`
}

func (e SessionAbandoned) GetType() EventType {
	return SessionAbandonedEvent
}

type SessionTransferred struct {
	SessionBase

	Target string `json:"target"`
}

func (e SessionTransferred) GetType() EventType {
	return SessionTransferredEvent
}
