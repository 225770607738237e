//go:build integration

package kafka_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/chatflow/pkg/channels/kafka"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) []string {
	t.Helper()

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0

	admin, err := sarama.NewClusterAdmin(brokers, config)
	require.NoError(t, err)

	defer admin.Close()

	require.NoError(t, admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 3, ReplicationFactor: 1}, false))

	return brokers
}

func TestKafkaEventBus_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	brokers := setupKafka(t)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, "chatflow-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.SessionStarted, 1)

	require.NoError(t, bus.Handle(events.SessionStartedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.SessionStarted)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	session := models.Session{
		ID:      "session-1",
		FlowID:  "flow-1",
		Status:  models.SessionStatusActive,
		Trigger: models.Trigger{Type: "whatsapp"},
	}

	require.NoError(t, bus.Publish(ctx, session.ID, events.SessionStarted{
		SessionBase: events.NewSessionBase(events.SessionStartedEvent, session),
		ContactID:   "contact-1",
	}))

	select {
	case got := <-received:
		assert.Equal(t, "session-1", got.SessionID)
		assert.Equal(t, "whatsapp", got.TriggerType)
		assert.Equal(t, "contact-1", got.ContactID)
	case <-time.After(30 * time.Second):
		t.Fatal("event not delivered")
	}
}
