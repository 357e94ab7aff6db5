package integration

import (
	"context"
	"errors"

	"github.com/ahrav/cluster-armada/internal/domain/events"
	domain "github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

// TimeoutReconcileHandler returns an event handler that reacts to execution
// timeout events with an immediate reconciliation poll, instead of waiting for
// the next background sweep. With multiple service replicas the consumer group
// spreads these polls across instances; whichever replica receives the event
// polls the run, and a sweep or operator getting there first is not an error.
func TimeoutReconcileHandler(orchestrator *Orchestrator, log *logger.Logger) events.HandlerFunc {
	log = log.With("component", "timeout_listener")

	return func(ctx context.Context, evt events.EventEnvelope, ack events.AckFunc) error {
		var executionID int64
		switch payload := evt.Payload.(type) {
		case *domain.ExecutionStatusEvent:
			executionID = payload.ExecutionID
		case domain.ExecutionStatusEvent:
			executionID = payload.ExecutionID
		default:
			log.Warn(ctx, "unexpected payload on timeout event", "event_type", evt.Type)
			ack(nil)
			return nil
		}

		_, err := orchestrator.Reconcile(ctx, executionID, "system:timeout-listener")
		switch {
		case err == nil,
			errors.Is(err, domain.ErrNotReconcilable),
			errors.Is(err, domain.ErrExecutionNotFound):
			// Resolved here, or already resolved elsewhere.
			ack(nil)
		default:
			log.Warn(ctx, "reconciliation from timeout event failed", "execution_id", executionID, "err", err)
			ack(err)
		}
		return nil
	}
}
