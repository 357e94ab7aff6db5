package integration

import "time"

// Execution is one attempt to run an automation job against a cluster. Its
// identity is a monotonic id assigned by the ledger; transitions are owned
// exclusively by the orchestrator and become immutable once terminal.
type Execution struct {
	id                int64
	clusterID         int64
	jobType           JobType
	status            ExecutionStatus
	timeline          *Timeline
	resultDetail      string
	triggeredBy       string
	reconcileAttempts int
	runnerRunID       string
}

// NewExecution creates a PENDING execution for a cluster. The ledger assigns
// the monotonic id when the record is persisted.
func NewExecution(clusterID int64, jobType JobType, actor string) *Execution {
	return &Execution{
		clusterID:   clusterID,
		jobType:     jobType,
		status:      ExecutionStatusPending,
		timeline:    NewTimeline(new(realTimeProvider)),
		triggeredBy: actor,
	}
}

// ReconstructExecution recreates an Execution from stored fields, bypassing
// creation invariants. This should only be used by repositories when loading
// from the DB.
func ReconstructExecution(
	id, clusterID int64,
	jobType JobType,
	status ExecutionStatus,
	timeline *Timeline,
	resultDetail, triggeredBy string,
	reconcileAttempts int,
	runnerRunID string,
) *Execution {
	return &Execution{
		id:                id,
		clusterID:         clusterID,
		jobType:           jobType,
		status:            status,
		timeline:          timeline,
		resultDetail:      resultDetail,
		triggeredBy:       triggeredBy,
		reconcileAttempts: reconcileAttempts,
		runnerRunID:       runnerRunID,
	}
}

// ID returns the monotonic identity assigned by the ledger. Zero until persisted.
func (e *Execution) ID() int64 { return e.id }

// ClusterID returns the owning cluster's identity.
func (e *Execution) ClusterID() int64 { return e.clusterID }

// JobType returns the kind of automation job this execution runs.
func (e *Execution) JobType() JobType { return e.jobType }

// Status returns the current lifecycle state.
func (e *Execution) Status() ExecutionStatus { return e.status }

// StartedAt returns when the execution was requested.
func (e *Execution) StartedAt() time.Time { return e.timeline.StartedAt() }

// CompletedAt returns when the execution reached a terminal state.
func (e *Execution) CompletedAt() (time.Time, bool) {
	if e.status.IsTerminal() {
		return e.timeline.CompletedAt(), true
	}
	return time.Time{}, false
}

// ResultDetail returns the diagnostic payload recorded with the last transition.
func (e *Execution) ResultDetail() string { return e.resultDetail }

// TriggeredBy returns the actor identity that requested this execution.
func (e *Execution) TriggeredBy() string { return e.triggeredBy }

// ReconcileAttempts returns how many reconciliation polls have been made.
func (e *Execution) ReconcileAttempts() int { return e.reconcileAttempts }

// RunnerRunID returns the execution engine's run identifier, if the job was
// submitted. Empty for executions that failed before submission.
func (e *Execution) RunnerRunID() string { return e.runnerRunID }

// SetID attaches the ledger-assigned identity after the first insert.
func (e *Execution) SetID(id int64) { e.id = id }

// AttachRun records the execution engine's run identifier after submission.
func (e *Execution) AttachRun(runID string) { e.runnerRunID = runID }

// IncrementReconcileAttempts records another reconciliation poll.
func (e *Execution) IncrementReconcileAttempts() { e.reconcileAttempts++ }

// UpdateStatus changes the execution's status after validating the
// transition. Terminal transitions freeze the record: the detail is persisted
// verbatim and the completion time is stamped.
func (e *Execution) UpdateStatus(newStatus ExecutionStatus, detail string) error {
	if err := e.status.ValidateTransition(newStatus); err != nil {
		return err
	}

	if detail != "" {
		e.resultDetail = detail
	}
	if newStatus.IsTerminal() {
		e.timeline.MarkCompleted()
	} else {
		e.timeline.UpdateLastUpdate()
	}

	e.status = newStatus
	return nil
}

// GetTimeline provides access to the execution's timeline information.
func (e *Execution) GetTimeline() *Timeline { return e.timeline }
