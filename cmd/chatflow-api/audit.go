package main

import (
	"context"
	"log/slog"

	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
)

// AuditLog writes flow and session lifecycle events to the log as they are
// consumed from the bus. Turn events are skipped.
type AuditLog struct {
	logger *slog.Logger
}

func NewAuditLog(logger *slog.Logger) *AuditLog {
	return &AuditLog{logger: logger.With("component", "audit")}
}

var auditedEvents = []events.EventType{
	events.FlowPublishedEvent,
	events.FlowUnpublishedEvent,
	events.FlowArchivedEvent,
	events.SessionStartedEvent,
	events.SessionNodeFailedEvent,
	events.SessionCompletedEvent,
	events.SessionFailedEvent,
	events.SessionAbandonedEvent,
	events.SessionTransferredEvent,
}

// Register installs the audit handlers on sub. The caller still has to
// Subscribe for messages to flow.
func (a *AuditLog) Register(sub eventbus.EventSubscriber) error {
	for _, eventType := range auditedEvents {
		if err := sub.Handle(eventType, a.Handle); err != nil {
			return err
		}
	}

	return nil
}

func (a *AuditLog) Handle(ctx context.Context, event any) error {
	switch e := event.(type) {
	case *events.FlowPublished:
		a.logger.InfoContext(ctx, "Flow published", "flow_id", e.FlowID, "flow_name", e.FlowName)
	case *events.FlowUnpublished:
		a.logger.InfoContext(ctx, "Flow unpublished", "flow_id", e.FlowID, "flow_name", e.FlowName)
	case *events.FlowArchived:
		a.logger.InfoContext(ctx, "Flow archived", "flow_id", e.FlowID, "flow_name", e.FlowName)
	case *events.SessionStarted:
		a.logger.InfoContext(ctx, "Session started", a.session(e.SessionBase)...)
	case *events.SessionNodeFailed:
		a.logger.WarnContext(ctx, "Session node failed",
			append(a.session(e.SessionBase), "node_id", e.NodeID, "error", e.Error, "error_count", e.ErrorCount)...)
	case *events.SessionCompleted:
		a.logger.InfoContext(ctx, "Session completed",
			append(a.session(e.SessionBase), "duration_seconds", e.DurationSeconds)...)
	case *events.SessionFailed:
		a.logger.ErrorContext(ctx, "Session failed",
			append(a.session(e.SessionBase), "errors", len(e.Errors))...)
	case *events.SessionAbandoned:
		a.logger.InfoContext(ctx, "Session abandoned",
			append(a.session(e.SessionBase), "idle_for", e.IdleFor)...)
	case *events.SessionTransferred:
		a.logger.InfoContext(ctx, "Session transferred",
			append(a.session(e.SessionBase), "target", e.Target)...)
	default:
		a.logger.DebugContext(ctx, "Unaudited event", "event", event)
	}

	return nil
}

func (a *AuditLog) session(b events.SessionBase) []any {
	return []any{"session_id", b.SessionID, "flow_id", b.FlowID, "status", b.Status}
}
