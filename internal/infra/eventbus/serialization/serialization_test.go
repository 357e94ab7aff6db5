package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/cluster-armada/internal/domain/events"
	"github.com/ahrav/cluster-armada/internal/domain/integration"
)

func TestSerializeEventEnvelope_RoundTrip(t *testing.T) {
	t.Parallel()

	evt := integration.NewExecutionStatusEvent(7, "prod-east", integration.JobTypeCreate, integration.ExecutionStatusCompleted, "playbook finished")

	data, err := SerializeEventEnvelope(evt.EventType(), evt)
	require.NoError(t, err)

	eventType, payloadBytes, err := UnmarshalUniversalEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, events.EventTypeExecutionCompleted, eventType)

	payload, err := DeserializePayload(eventType, payloadBytes)
	require.NoError(t, err)

	decoded, ok := payload.(*integration.ExecutionStatusEvent)
	require.True(t, ok)
	assert.Equal(t, int64(7), decoded.ExecutionID)
	assert.Equal(t, "prod-east", decoded.ClusterName)
	assert.Equal(t, "playbook finished", decoded.Detail)
}

func TestSerializeEventEnvelope_UnregisteredType(t *testing.T) {
	t.Parallel()

	_, err := SerializeEventEnvelope(events.EventType("bogus"), struct{}{})
	assert.Error(t, err)
}

func TestDeserializePayload_UnregisteredType(t *testing.T) {
	t.Parallel()

	_, err := DeserializePayload(events.EventType("bogus"), []byte(`{}`))
	assert.Error(t, err)
}
