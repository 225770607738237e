package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, ParseBrokers(" kafka-1:9092, ,kafka-2:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "chatflow")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("1", nil)
	msg.Metadata.Set(events.EventMetadataKey, "session-1")

	key, err := partitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "session-1", key)
}
