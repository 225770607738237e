package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSessionAttributes(t *testing.T) {
	attrs := SessionAttributes(models.Session{ID: "s1", FlowID: "f1", Trigger: models.Trigger{Type: "whatsapp"}})

	assert.Equal(t, []attribute.KeyValue{
		attribute.String(SessionIDKey, "s1"),
		attribute.String(FlowIDKey, "f1"),
		attribute.String(TriggerTypeKey, "whatsapp"),
	}, attrs)
}

func TestSetNodeError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "engine.execute_node")
	SetNodeError(span, errors.New("webhook timed out"), &models.Node{ID: "hook", Type: models.NodeTypeWebhook})
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "webhook timed out", spans[0].Status().Description)

	var event sdktrace.Event

	for _, e := range spans[0].Events() {
		if e.Name == "error_occurred" {
			event = e
		}
	}

	assert.Contains(t, event.Attributes, attribute.String(NodeIDKey, "hook"))
	assert.Contains(t, event.Attributes, attribute.String(NodeTypeKey, "webhook"))
}
