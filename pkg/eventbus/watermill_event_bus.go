package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/chatflow/pkg/events"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	logger        *slog.Logger
	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        logger,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish sends event on events.Topic; key is the partitioning key (usually the session id).
func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			eb.mu.RLock()
			handler, exists := eb.subscriptions[eventType]
			eb.mu.RUnlock()

			if !exists {
				msg.Ack()

				continue
			}

			event := newEvent(eventType)
			if event == nil {
				eb.logger.WarnContext(ctx, "unknown event type", "event_type", eventType)
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				eb.logger.ErrorContext(ctx, "failed to decode event", "event_type", eventType, "error", err)
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				eb.logger.ErrorContext(ctx, "event handler failed", "event_type", eventType, "error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.FlowPublishedEvent:
		return &events.FlowPublished{}
	case events.FlowUnpublishedEvent:
		return &events.FlowUnpublished{}
	case events.FlowArchivedEvent:
		return &events.FlowArchived{}
	case events.SessionStartedEvent:
		return &events.SessionStarted{}
	case events.SessionTurnEvent:
		return &events.SessionTurn{}
	case events.SessionNodeFailedEvent:
		return &events.SessionNodeFailed{}
	case events.SessionCompletedEvent:
		return &events.SessionCompleted{}
	case events.SessionFailedEvent:
		return &events.SessionFailed{}
	case events.SessionAbandonedEvent:
		return &events.SessionAbandoned{}
	case events.SessionTransferredEvent:
		return &events.SessionTransferred{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
