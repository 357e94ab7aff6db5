package integration

import (
	"context"
	"fmt"
	"time"
)

// Job variable keys passed to the execution engine. VarExecutionID doubles as
// the idempotency key: repeated submissions carrying the same value are
// recognized as the same logical run by the engine.
const (
	VarExecutionID    = "execution_id"
	VarClusterName    = "cluster_name"
	VarNamespace      = "namespace"
	VarServiceAccount = "service_account"
	VarKubeconfig     = "kubeconfig"
	VarForce          = "force"
	VarOverwrite      = "overwrite"
)

// JobHandle identifies a submitted job for later result retrieval.
type JobHandle struct {
	// ExecutionID is the ledger identity the job was submitted under.
	ExecutionID int64

	// RunID is the engine-side run identifier.
	RunID string
}

// OutcomeStatus classifies the terminal result of awaiting a job.
type OutcomeStatus string

const (
	// OutcomeSuccess means the engine reported the job finished successfully.
	OutcomeSuccess OutcomeStatus = "SUCCESS"

	// OutcomeFailure means the engine reported the job failed.
	OutcomeFailure OutcomeStatus = "FAILURE"

	// OutcomeTimeout means no terminal result was observed in time. The
	// remote outcome is unknown; the caller must poll again with the same
	// idempotency key rather than resubmit.
	OutcomeTimeout OutcomeStatus = "TIMEOUT"
)

// JobOutcome is the observed result of a job submission.
type JobOutcome struct {
	Status OutcomeStatus
	Detail string
}

// ExecutionEngine is a facade over the external job runner. Submissions are
// at-least-once: a submit may succeed remotely even when the local call
// fails, so callers key every submission by execution id and never resubmit
// without first polling for an existing run.
type ExecutionEngine interface {
	// Submit hands a job to the engine. The vars map must carry
	// VarExecutionID as the idempotency key.
	Submit(ctx context.Context, jobType JobType, vars map[string]string) (JobHandle, error)

	// AwaitResult blocks until the job reaches a terminal state or the
	// timeout elapses, in which case it returns an OutcomeTimeout outcome.
	// Cancelling the wait never cancels the remote job. An error is returned
	// only when the context is done.
	AwaitResult(ctx context.Context, handle JobHandle, timeout time.Duration) (JobOutcome, error)

	// Poll performs a single non-blocking result check for a previously
	// submitted job. It never causes a new submission. A still-running job
	// yields OutcomeTimeout.
	Poll(ctx context.Context, handle JobHandle) (JobOutcome, error)
}

// CredentialResolver resolves a cluster's credential reference into usable
// connection material. Implementations must not log raw material.
type CredentialResolver interface {
	// Resolve returns the connection material for the cluster's credential
	// source. Failures are classified as *CredentialError.
	Resolve(ctx context.Context, cluster *Cluster) (CredentialMaterial, error)
}

// AdapterError indicates the execution engine rejected or never received a
// submission. It is distinct from a timeout: the job is known not to run.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("execution engine %s failed: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
