package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/internal/infra/storage"
)

func setupExecutionTest(t *testing.T) (context.Context, *pgxpool.Pool, *executionStore, int64, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	ctx := context.Background()

	clusters := NewClusterStore(db, storage.NoOpTracer())
	cluster, err := clusters.Upsert(ctx, createTestCluster(t, "prod-east"))
	require.NoError(t, err)

	store := NewExecutionStore(db, storage.NoOpTracer())
	return ctx, db, store, cluster.ID(), cleanup
}

func TestExecutionStore_CreatePendingAndGet(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)
	require.NotZero(t, exec.ID())

	loaded, err := store.Get(ctx, exec.ID())
	require.NoError(t, err)

	assert.Equal(t, exec.ID(), loaded.ID())
	assert.Equal(t, clusterID, loaded.ClusterID())
	assert.Equal(t, integration.JobTypeCreate, loaded.JobType())
	assert.Equal(t, integration.ExecutionStatusPending, loaded.Status())
	assert.Equal(t, "api:operator", loaded.TriggeredBy())
	assert.False(t, loaded.StartedAt().IsZero())

	_, done := loaded.CompletedAt()
	assert.False(t, done)
}

func TestExecutionStore_CreatePending_RejectsSecondActive(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	_, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)

	_, err = store.CreatePending(ctx, clusterID, integration.JobTypeUpdateServiceAccount, "api:operator")
	assert.ErrorIs(t, err, integration.ErrExecutionInProgress)
}

func TestExecutionStore_CreatePending_ConcurrentRequestsSingleWinner(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	const workers = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case assert.ErrorIs(t, err, integration.ErrExecutionInProgress):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted, "exactly one concurrent request should win")
	assert.Equal(t, workers-1, rejected)
}

func TestExecutionStore_CreatePending_AllowedAfterTerminal(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusRunning, ""))
	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusCompleted, "playbook succeeded"))

	// The terminal row no longer blocks new work.
	_, err = store.CreatePending(ctx, clusterID, integration.JobTypeUpdateServiceAccount, "api:operator")
	require.NoError(t, err)
}

func TestExecutionStore_CreatePending_TimedOutStillBlocks(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusRunning, ""))
	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusTimedOut, "no result within deadline"))

	_, err = store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	assert.ErrorIs(t, err, integration.ErrExecutionInProgress)
}

func TestExecutionStore_Transition_Lifecycle(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusRunning, ""))
	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusCompleted, "playbook succeeded"))

	loaded, err := store.Get(ctx, exec.ID())
	require.NoError(t, err)

	assert.Equal(t, integration.ExecutionStatusCompleted, loaded.Status())
	assert.Equal(t, "playbook succeeded", loaded.ResultDetail())

	completedAt, done := loaded.CompletedAt()
	require.True(t, done)
	assert.False(t, completedAt.IsZero())
}

func TestExecutionStore_Transition_RejectsIllegalEdge(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)

	err = store.Transition(ctx, exec.ID(), integration.ExecutionStatusCompleted, "")
	var invalidErr *integration.InvalidTransitionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, integration.ExecutionStatusPending, invalidErr.From)
	assert.Equal(t, integration.ExecutionStatusCompleted, invalidErr.To)
}

func TestExecutionStore_Transition_TerminalIsFrozen(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusRunning, ""))
	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusFailed, "playbook failed"))

	err = store.Transition(ctx, exec.ID(), integration.ExecutionStatusRunning, "")
	var invalidErr *integration.InvalidTransitionError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestExecutionStore_Transition_NotFound(t *testing.T) {
	t.Parallel()
	ctx, _, store, _, cleanup := setupExecutionTest(t)
	defer cleanup()

	err := store.Transition(ctx, 9999, integration.ExecutionStatusRunning, "")
	assert.ErrorIs(t, err, integration.ErrExecutionNotFound)
}

func TestExecutionStore_AttachRunAndReconcileAttempts(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)

	require.NoError(t, store.AttachRun(ctx, exec.ID(), "run-42"))

	attempts, err := store.IncrementReconcileAttempts(ctx, exec.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	attempts, err = store.IncrementReconcileAttempts(ctx, exec.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	loaded, err := store.Get(ctx, exec.ID())
	require.NoError(t, err)
	assert.Equal(t, "run-42", loaded.RunnerRunID())
	assert.Equal(t, 2, loaded.ReconcileAttempts())
}

func TestExecutionStore_LatestAndListForCluster(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	first, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)
	require.NoError(t, store.Transition(ctx, first.ID(), integration.ExecutionStatusRunning, ""))
	require.NoError(t, store.Transition(ctx, first.ID(), integration.ExecutionStatusCompleted, ""))

	second, err := store.CreatePending(ctx, clusterID, integration.JobTypeUpdateServiceAccount, "api:operator")
	require.NoError(t, err)

	latest, err := store.LatestForCluster(ctx, clusterID)
	require.NoError(t, err)
	assert.Equal(t, second.ID(), latest.ID())

	execs, err := store.ListForCluster(ctx, clusterID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, second.ID(), execs[0].ID())
	assert.Equal(t, first.ID(), execs[1].ID())
}

func TestExecutionStore_ListByStatus(t *testing.T) {
	t.Parallel()
	ctx, _, store, clusterID, cleanup := setupExecutionTest(t)
	defer cleanup()

	exec, err := store.CreatePending(ctx, clusterID, integration.JobTypeCreate, "api:operator")
	require.NoError(t, err)
	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusRunning, ""))
	require.NoError(t, store.Transition(ctx, exec.ID(), integration.ExecutionStatusTimedOut, "no result within deadline"))

	timedOut, err := store.ListByStatus(ctx, integration.ExecutionStatusTimedOut, 10)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, exec.ID(), timedOut[0].ID())

	completed, err := store.ListByStatus(ctx, integration.ExecutionStatusCompleted, 10)
	require.NoError(t, err)
	assert.Empty(t, completed)
}
