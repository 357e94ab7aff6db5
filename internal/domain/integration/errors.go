package integration

import "errors"

// Sentinel errors surfaced by repositories and the orchestrator. The API
// layer maps these to response codes; nothing below this package interprets
// HTTP semantics.
var (
	// ErrClusterNotFound is returned when a cluster lookup by name misses.
	ErrClusterNotFound = errors.New("cluster not found")

	// ErrClusterExists is returned when a CREATE request targets an existing
	// cluster without the force flag.
	ErrClusterExists = errors.New("cluster already exists")

	// ErrExecutionNotFound is returned when an execution lookup misses.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionInProgress is returned when a cluster already has a
	// non-terminal execution. The caller should poll status rather than
	// resubmit.
	ErrExecutionInProgress = errors.New("an execution is already in progress for this cluster")

	// ErrNotReconcilable is returned when reconciliation is requested for an
	// execution that is not in TIMED_OUT.
	ErrNotReconcilable = errors.New("execution is not awaiting reconciliation")
)

// ValidationError indicates a malformed or contradictory request. It is
// always raised before any state mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NewValidationError creates a ValidationError with the given reason.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
