// Package integration provides domain types and interfaces for onboarding
// and maintaining Kubernetes clusters as managed targets of the backup
// platform. It defines the aggregates, state machines, and ports needed to
// drive idempotent automation jobs and keep a consistent, auditable record
// of every attempt.
package integration

import "context"

// ClusterRepository defines the persistence operations for cluster records.
// It provides an abstraction layer over the storage mechanism used to
// maintain cluster identity and integration status.
type ClusterRepository interface {
	// Upsert inserts a new cluster or rewrites an existing one by name,
	// returning the persisted record with storage identity and timestamps.
	Upsert(ctx context.Context, cluster *Cluster) (*Cluster, error)

	// GetByName retrieves a cluster by its unique name.
	// Returns ErrClusterNotFound if no record exists.
	GetByName(ctx context.Context, name string) (*Cluster, error)

	// GetByID retrieves a cluster by storage identity. Used when only an
	// execution's cluster reference is at hand, as during reconciliation.
	GetByID(ctx context.Context, clusterID int64) (*Cluster, error)

	// UpdateStatus records a new integration status for a cluster.
	UpdateStatus(ctx context.Context, clusterID int64, status ClusterStatus) error

	// List returns all cluster records ordered by name.
	List(ctx context.Context) ([]*Cluster, error)
}

// ExecutionLedger defines the persistence operations for executions. The
// ledger is the serialization point for the whole system: its storage layer
// enforces that at most one non-terminal execution exists per cluster, which
// must hold across concurrent callers and service replicas.
type ExecutionLedger interface {
	// CreatePending atomically records a new PENDING execution for a cluster.
	// Returns ErrExecutionInProgress if the cluster already has a
	// non-terminal execution; exactly one of N concurrent callers wins.
	CreatePending(ctx context.Context, clusterID int64, jobType JobType, actor string) (*Execution, error)

	// Transition moves an execution to a new status, enforcing legal edges.
	// Returns an InvalidTransitionError for an illegal edge and
	// ErrExecutionNotFound for an unknown id. Terminal transitions are
	// permanent.
	Transition(ctx context.Context, executionID int64, newStatus ExecutionStatus, detail string) error

	// AttachRun records the execution engine's run identifier for later
	// reconciliation polls.
	AttachRun(ctx context.Context, executionID int64, runID string) error

	// IncrementReconcileAttempts bumps the reconciliation counter and returns
	// the new value.
	IncrementReconcileAttempts(ctx context.Context, executionID int64) (int, error)

	// Get retrieves an execution by id.
	Get(ctx context.Context, executionID int64) (*Execution, error)

	// LatestForCluster retrieves the most recent execution for a cluster.
	// Returns ErrExecutionNotFound if the cluster has none.
	LatestForCluster(ctx context.Context, clusterID int64) (*Execution, error)

	// ListForCluster retrieves up to limit executions for a cluster, newest
	// first.
	ListForCluster(ctx context.Context, clusterID int64, limit int) ([]*Execution, error)

	// ListByStatus retrieves up to limit executions in the given status,
	// oldest first. Used by the reconciler to sweep TIMED_OUT executions.
	ListByStatus(ctx context.Context, status ExecutionStatus, limit int) ([]*Execution, error)
}

// AuditRepository defines the persistence operations for the append-only
// audit trail.
type AuditRepository interface {
	// Append persists an audit entry, assigning its monotonic id.
	Append(ctx context.Context, entry *AuditEntry) error

	// ListForCluster retrieves up to limit entries for a cluster, newest first.
	ListForCluster(ctx context.Context, clusterID int64, limit int) ([]*AuditEntry, error)
}
