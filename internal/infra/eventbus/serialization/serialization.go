// Package serialization converts domain event payloads to and from the wire
// format used by the event bus. Every publishable event type must be
// registered here so consumers can rebuild the concrete payload from its
// envelope.
package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/cluster-armada/internal/domain/events"
	"github.com/ahrav/cluster-armada/internal/domain/integration"
)

// universalEnvelope is the self-describing wire format: the event type travels
// with the payload so consumers can pick the right decoder.
type universalEnvelope struct {
	Type    events.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// payloadFactory builds an empty payload value for an event type to decode into.
type payloadFactory func() any

var payloadRegistry = map[events.EventType]payloadFactory{
	events.EventTypeClusterOnboarded:    func() any { return new(integration.ClusterOnboardedEvent) },
	events.EventTypeExecutionRequested:  func() any { return new(integration.ExecutionStatusEvent) },
	events.EventTypeExecutionStarted:    func() any { return new(integration.ExecutionStatusEvent) },
	events.EventTypeExecutionCompleted:  func() any { return new(integration.ExecutionStatusEvent) },
	events.EventTypeExecutionFailed:     func() any { return new(integration.ExecutionStatusEvent) },
	events.EventTypeExecutionTimedOut:   func() any { return new(integration.ExecutionStatusEvent) },
	events.EventTypeExecutionReconciled: func() any { return new(integration.ExecutionReconciledEvent) },
}

// SerializeEventEnvelope wraps a payload in the universal envelope and encodes
// it for transport.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	if _, ok := payloadRegistry[eventType]; !ok {
		return nil, fmt.Errorf("unregistered event type %s", eventType)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload for %s: %w", eventType, err)
	}

	return json.Marshal(universalEnvelope{Type: eventType, Payload: payloadBytes})
}

// UnmarshalUniversalEnvelope decodes the envelope and returns the event type
// together with the still-encoded payload bytes.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var envelope universalEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return "", nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}
	return envelope.Type, envelope.Payload, nil
}

// DeserializePayload rebuilds the concrete payload for an event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	factory, ok := payloadRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("unregistered event type %s", eventType)
	}

	payload := factory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("unmarshaling payload for %s: %w", eventType, err)
	}
	return payload, nil
}
