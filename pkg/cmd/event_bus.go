package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/chatflow/pkg/channels/gochannel"
	"github.com/dukex/chatflow/pkg/channels/kafka"
	"github.com/dukex/chatflow/pkg/eventbus"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus creates the bus lifecycle events are published on. brokers is
// a comma separated list and is only read by the kafka provider.
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), "chatflow")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}
