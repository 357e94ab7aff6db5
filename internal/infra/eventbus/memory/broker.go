// Package memory provides an in-memory implementation of the event bus.
// It offers a lightweight, non-persistent broker suitable for testing and
// development environments where durability is not required.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/ahrav/cluster-armada/internal/domain/events"
)

var _ events.EventBus = (*Broker)(nil)

// Broker is an in-memory events.EventBus. Handlers run synchronously on the
// publisher's goroutine, making event flow deterministic in tests.
type Broker struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]events.HandlerFunc
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[events.EventType][]events.HandlerFunc)}
}

// Publish delivers the envelope to every handler subscribed to its type,
// stopping at the first handler error.
func (b *Broker) Publish(ctx context.Context, event events.EventEnvelope, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var pParams events.PublishParams
	for _, opt := range opts {
		opt(&pParams)
	}
	if pParams.Key != "" {
		event.Key = pParams.Key
	}

	b.mu.RLock()
	// Copy handlers to avoid holding the lock while executing them.
	handlers := make([]events.HandlerFunc, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(ctx, event, func(error) {}); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers a handler for the given event types.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], handler)
	}
	return nil
}

// Close releases all handler registrations.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[events.EventType][]events.HandlerFunc)
	return nil
}
