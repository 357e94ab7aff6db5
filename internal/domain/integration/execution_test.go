package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecution(t *testing.T) {
	t.Parallel()

	exec := NewExecution(42, JobTypeCreate, "api:operator")

	assert.Zero(t, exec.ID())
	assert.Equal(t, int64(42), exec.ClusterID())
	assert.Equal(t, JobTypeCreate, exec.JobType())
	assert.Equal(t, ExecutionStatusPending, exec.Status())
	assert.Equal(t, "api:operator", exec.TriggeredBy())
	assert.False(t, exec.StartedAt().IsZero())

	_, ok := exec.CompletedAt()
	assert.False(t, ok, "non-terminal executions have no completion time")
}

func TestExecution_UpdateStatus(t *testing.T) {
	t.Parallel()

	exec := NewExecution(1, JobTypeCreate, "api:operator")

	require.NoError(t, exec.UpdateStatus(ExecutionStatusRunning, ""))
	assert.Equal(t, ExecutionStatusRunning, exec.Status())

	require.NoError(t, exec.UpdateStatus(ExecutionStatusCompleted, "playbook finished"))
	assert.Equal(t, ExecutionStatusCompleted, exec.Status())
	assert.Equal(t, "playbook finished", exec.ResultDetail())

	completedAt, ok := exec.CompletedAt()
	require.True(t, ok)
	assert.False(t, completedAt.IsZero())
}

func TestExecution_UpdateStatus_RejectsIllegalEdge(t *testing.T) {
	t.Parallel()

	exec := NewExecution(1, JobTypeCreate, "api:operator")

	err := exec.UpdateStatus(ExecutionStatusCompleted, "")
	require.Error(t, err)
	assert.Equal(t, ExecutionStatusPending, exec.Status(), "failed transition must not mutate state")
}

func TestExecution_UpdateStatus_KeepsDetailOnEmpty(t *testing.T) {
	t.Parallel()

	exec := NewExecution(1, JobTypeCreate, "api:operator")
	require.NoError(t, exec.UpdateStatus(ExecutionStatusRunning, "job submitted"))
	require.NoError(t, exec.UpdateStatus(ExecutionStatusTimedOut, ""))

	assert.Equal(t, "job submitted", exec.ResultDetail())
}

func TestExecution_AttachRunAndReconcileAttempts(t *testing.T) {
	t.Parallel()

	exec := NewExecution(1, JobTypeValidate, "api:operator")

	exec.AttachRun("run-42")
	assert.Equal(t, "run-42", exec.RunnerRunID())

	exec.IncrementReconcileAttempts()
	exec.IncrementReconcileAttempts()
	assert.Equal(t, 2, exec.ReconcileAttempts())
}
