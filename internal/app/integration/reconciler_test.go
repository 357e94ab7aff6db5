package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

func TestReconcilerSweep_ResolvesTimedOutExecutions(t *testing.T) {
	suite := setupOrchestratorSuite(OrchestratorConfig{})
	ctx := context.Background()

	suite.resolver.On("Resolve", mock.Anything, mock.Anything).Return(resolvedMaterial(), nil)
	suite.engine.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.JobHandle{RunID: "run-1"}, nil)
	suite.engine.On("AwaitResult", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.JobOutcome{Status: domain.OutcomeTimeout}, nil)
	suite.engine.On("Poll", mock.Anything, mock.Anything).
		Return(domain.JobOutcome{Status: domain.OutcomeSuccess, Detail: "finished late"}, nil)

	receipt, err := suite.orchestrator.OnboardCluster(ctx, onboardRequest())
	require.NoError(t, err)
	suite.awaitStatus(t, receipt.ExecutionID, domain.ExecutionStatusTimedOut)

	reconciler := NewReconciler(
		ReconcilerConfig{},
		suite.orchestrator,
		suite.store,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)
	reconciler.sweep(ctx)

	exec, err := suite.store.Get(ctx, receipt.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status())
	assert.Equal(t, "finished late", exec.ResultDetail())
}

func TestReconcilerSweep_EmptyBatchIsNoOp(t *testing.T) {
	suite := setupOrchestratorSuite(OrchestratorConfig{})

	reconciler := NewReconciler(
		ReconcilerConfig{BatchSize: 10},
		suite.orchestrator,
		suite.store,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)
	reconciler.sweep(context.Background())

	suite.engine.AssertNotCalled(t, "Poll", mock.Anything, mock.Anything)
}
