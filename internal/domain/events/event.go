package events

import "time"

// DomainEvent is implemented by every event the domain publishes. It exposes
// the routing type and occurrence time a publisher needs to wrap the event in
// an envelope.
type DomainEvent interface {
	// EventType identifies the category of this event for routing and handling.
	EventType() EventType

	// OccurredAt records when this event was created, enabling temporal
	// tracking and debugging of event flows.
	OccurredAt() time.Time
}

// EventEnvelope wraps a domain event with the transport metadata an event bus
// needs to deliver it.
type EventEnvelope struct {
	// Type identifies the category of the wrapped event.
	Type EventType

	// Key is the partition key used for routing.
	Key string

	// Headers contain metadata key-value pairs attached to the event.
	Headers map[string]string

	// Timestamp records when the wrapped event was created.
	Timestamp time.Time

	// Payload contains the actual event data (e.g., ExecutionStatusEvent).
	// The concrete type depends on the EventType.
	Payload any

	// Metadata carries transport position details for consumed events.
	Metadata EventMetadata
}

// EventMetadata describes where in the underlying stream a consumed event
// came from.
type EventMetadata struct {
	Partition int32
	Offset    int64
}
