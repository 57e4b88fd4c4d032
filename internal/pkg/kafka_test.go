package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	a := NewEvent(EventCommunitySynced, 42)
	b := NewEvent(EventCommunitySynced, 42)

	assert.Equal(t, EventCommunitySynced, a.Type)
	assert.Equal(t, uint64(42), a.CommunityID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.At.IsZero())
	assert.Equal(t, "42", MakeKeyFromID(a.CommunityID))
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	_, err := NewKafkaProducer(KafkaConfig{Topic: "t"})
	require.Error(t, err)

	p, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "t"})
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
