package integration

import "time"

// Audit actions recorded by the orchestrator. Every state-changing operation
// writes exactly one entry per observable transition.
const (
	AuditActionRequestAccepted      = "request_accepted"
	AuditActionRequestRejected      = "request_rejected"
	AuditActionExecutionTransition  = "execution_transition"
	AuditActionCredentialResolution = "credential_resolution"
	AuditActionReconciliation       = "reconciliation"
)

// Audit outcomes.
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomeError   = "error"
)

// AuditEntry is an append-only record of a state-changing operation. Entries
// are never mutated or deleted and survive cluster supersession.
type AuditEntry struct {
	ID          int64
	ClusterID   int64 // zero when the operation never reached a cluster record
	ExecutionID int64 // zero when the operation never reached an execution
	Actor       string
	Action      string
	Outcome     string
	Detail      string
	Timestamp   time.Time
}

// NewAuditEntry creates an audit entry stamped with the current time. The
// repository assigns the monotonic id on append.
func NewAuditEntry(actor, action, outcome, detail string) *AuditEntry {
	return &AuditEntry{
		Actor:     actor,
		Action:    action,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}

// ForCluster associates the entry with a cluster.
func (a *AuditEntry) ForCluster(clusterID int64) *AuditEntry {
	a.ClusterID = clusterID
	return a
}

// ForExecution associates the entry with an execution.
func (a *AuditEntry) ForExecution(executionID int64) *AuditEntry {
	a.ExecutionID = executionID
	return a
}
