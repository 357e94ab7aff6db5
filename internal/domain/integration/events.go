package integration

import (
	"time"

	"github.com/ahrav/cluster-armada/internal/domain/events"
)

// ClusterOnboardedEvent signals that a cluster record was created or
// superseded and an onboarding execution was accepted for it.
type ClusterOnboardedEvent struct {
	occurredAt  time.Time
	ClusterName string
	ExecutionID int64
	Forced      bool
}

// NewClusterOnboardedEvent creates a new cluster onboarded event.
func NewClusterOnboardedEvent(clusterName string, executionID int64, forced bool) ClusterOnboardedEvent {
	return ClusterOnboardedEvent{
		occurredAt:  time.Now().UTC(),
		ClusterName: clusterName,
		ExecutionID: executionID,
		Forced:      forced,
	}
}

func (e ClusterOnboardedEvent) EventType() events.EventType { return events.EventTypeClusterOnboarded }
func (e ClusterOnboardedEvent) OccurredAt() time.Time       { return e.occurredAt }

// ExecutionStatusEvent signals a single lifecycle transition of an execution.
// The event type carried in the envelope distinguishes which transition it was.
type ExecutionStatusEvent struct {
	occurredAt  time.Time
	eventType   events.EventType
	ExecutionID int64
	ClusterName string
	JobType     JobType
	Status      ExecutionStatus
	Detail      string
}

// NewExecutionStatusEvent creates an event for an execution transition. The
// event type is derived from the new status.
func NewExecutionStatusEvent(executionID int64, clusterName string, jobType JobType, status ExecutionStatus, detail string) ExecutionStatusEvent {
	var et events.EventType
	switch status {
	case ExecutionStatusPending:
		et = events.EventTypeExecutionRequested
	case ExecutionStatusRunning:
		et = events.EventTypeExecutionStarted
	case ExecutionStatusCompleted:
		et = events.EventTypeExecutionCompleted
	case ExecutionStatusFailed:
		et = events.EventTypeExecutionFailed
	case ExecutionStatusTimedOut:
		et = events.EventTypeExecutionTimedOut
	default:
		et = events.EventTypeExecutionRequested
	}
	return ExecutionStatusEvent{
		occurredAt:  time.Now().UTC(),
		eventType:   et,
		ExecutionID: executionID,
		ClusterName: clusterName,
		JobType:     jobType,
		Status:      status,
		Detail:      detail,
	}
}

func (e ExecutionStatusEvent) EventType() events.EventType { return e.eventType }
func (e ExecutionStatusEvent) OccurredAt() time.Time       { return e.occurredAt }

// ExecutionReconciledEvent signals a reconciliation poll resolved (or gave up
// on) a timed-out execution.
type ExecutionReconciledEvent struct {
	occurredAt  time.Time
	ExecutionID int64
	ClusterName string
	FinalStatus ExecutionStatus
	Attempts    int
}

// NewExecutionReconciledEvent creates a new reconciliation event.
func NewExecutionReconciledEvent(executionID int64, clusterName string, finalStatus ExecutionStatus, attempts int) ExecutionReconciledEvent {
	return ExecutionReconciledEvent{
		occurredAt:  time.Now().UTC(),
		ExecutionID: executionID,
		ClusterName: clusterName,
		FinalStatus: finalStatus,
		Attempts:    attempts,
	}
}

func (e ExecutionReconciledEvent) EventType() events.EventType {
	return events.EventTypeExecutionReconciled
}
func (e ExecutionReconciledEvent) OccurredAt() time.Time { return e.occurredAt }
