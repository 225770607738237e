package otelhelper

import (
	"github.com/dukex/chatflow/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SessionAttributes identifies a session snapshot on a span.
func SessionAttributes(s models.Session) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(SessionIDKey, s.ID),
		attribute.String(FlowIDKey, s.FlowID),
	}

	if s.TenantID != "" {
		attrs = append(attrs, attribute.String(TenantIDKey, s.TenantID))
	}

	if s.Trigger.Type != "" {
		attrs = append(attrs, attribute.String(TriggerTypeKey, s.Trigger.Type))
	}

	return attrs
}

func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetNodeError marks span failed and tags the error event with the node.
func SetNodeError(span trace.Span, err error, node *models.Node) {
	SetError(span, err,
		attribute.String(NodeIDKey, node.ID),
		attribute.String(NodeTypeKey, string(node.Type)),
	)
}
