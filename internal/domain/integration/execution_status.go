package integration

import "fmt"

// ExecutionStatus represents the lifecycle state of an automation job run
// against a cluster. It enables tracking of every attempt from request
// through its terminal outcome.
type ExecutionStatus string

const (
	// ExecutionStatusPending indicates an execution has been recorded but the
	// job has not been handed to the execution engine yet.
	ExecutionStatusPending ExecutionStatus = "PENDING"

	// ExecutionStatusRunning indicates the job was submitted to the execution
	// engine and its result is being awaited.
	ExecutionStatusRunning ExecutionStatus = "RUNNING"

	// ExecutionStatusCompleted indicates the job finished successfully.
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"

	// ExecutionStatusFailed indicates the job failed or could never be submitted.
	ExecutionStatusFailed ExecutionStatus = "FAILED"

	// ExecutionStatusTimedOut indicates the local wait expired before a result
	// was observed. The remote outcome is unknown; the execution must be
	// reconciled before any new job for the same cluster.
	ExecutionStatusTimedOut ExecutionStatus = "TIMED_OUT"

	// ExecutionStatusUnspecified is used when an execution status is unknown.
	ExecutionStatusUnspecified ExecutionStatus = "UNSPECIFIED"
)

// String returns the string representation of the ExecutionStatus.
func (s ExecutionStatus) String() string { return string(s) }

// IsTerminal reports whether the status is permanent. TIMED_OUT is
// quasi-terminal: it still blocks new executions but can be resolved by
// reconciliation.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// ParseExecutionStatus converts a string to an ExecutionStatus.
func ParseExecutionStatus(s string) ExecutionStatus {
	switch s {
	case "PENDING":
		return ExecutionStatusPending
	case "RUNNING":
		return ExecutionStatusRunning
	case "COMPLETED":
		return ExecutionStatusCompleted
	case "FAILED":
		return ExecutionStatusFailed
	case "TIMED_OUT":
		return ExecutionStatusTimedOut
	default:
		return ExecutionStatusUnspecified
	}
}

// InvalidTransitionError is returned when an execution is asked to move along
// an edge the state machine does not allow.
type InvalidTransitionError struct {
	From ExecutionStatus
	To   ExecutionStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid execution status transition from %s to %s", e.From, e.To)
}

// ValidateTransition checks if a status transition is valid and returns an
// error if not.
func (s ExecutionStatus) ValidateTransition(target ExecutionStatus) error {
	if !s.isValidTransition(target) {
		return &InvalidTransitionError{From: s, To: target}
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. It enforces the execution lifecycle rules to prevent invalid state
// changes.
func (s ExecutionStatus) isValidTransition(target ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		// From Pending, can only move to Running or Failed.
		return target == ExecutionStatusRunning || target == ExecutionStatusFailed
	case ExecutionStatusRunning:
		// From Running, can move to Completed, Failed, or TimedOut.
		return target == ExecutionStatusCompleted || target == ExecutionStatusFailed || target == ExecutionStatusTimedOut
	case ExecutionStatusTimedOut:
		// A reconciliation poll resolves the unknown outcome either way.
		return target == ExecutionStatusCompleted || target == ExecutionStatusFailed
	case ExecutionStatusCompleted, ExecutionStatusFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
