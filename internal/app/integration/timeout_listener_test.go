package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/cluster-armada/internal/domain/events"
	domain "github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/internal/infra/eventbus/kafka"
	membus "github.com/ahrav/cluster-armada/internal/infra/eventbus/memory"
	"github.com/ahrav/cluster-armada/internal/infra/storage/integration/memory"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

func TestTimeoutReconcileHandler_ResolvesTimedOutExecution(t *testing.T) {
	ctx := context.Background()

	broker := membus.NewBroker()
	store := memory.NewStore()
	engine := new(mockExecutionEngine)
	resolver := new(mockCredentialResolver)

	orchestrator := NewOrchestrator(
		OrchestratorConfig{},
		store,
		store,
		store.Audit(),
		resolver,
		engine,
		kafka.NewDomainEventPublisher(broker, events.NewDomainEventTranslator()),
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
	)

	require.NoError(t, broker.Subscribe(ctx,
		[]events.EventType{events.EventTypeExecutionTimedOut},
		TimeoutReconcileHandler(orchestrator, logger.Noop()),
	))

	resolver.On("Resolve", mock.Anything, mock.Anything).Return(resolvedMaterial(), nil)
	engine.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.JobHandle{RunID: "run-1"}, nil).Once()
	engine.On("AwaitResult", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.JobOutcome{Status: domain.OutcomeTimeout, Detail: "no result within deadline"}, nil)
	engine.On("Poll", mock.Anything, mock.Anything).
		Return(domain.JobOutcome{Status: domain.OutcomeSuccess, Detail: "finished late"}, nil).Once()

	receipt, err := orchestrator.OnboardCluster(ctx, onboardRequest())
	require.NoError(t, err)

	// The timeout event fires the handler, which polls the run and resolves
	// the execution without a second submission.
	var exec *domain.Execution
	require.Eventually(t, func() bool {
		exec, err = store.Get(ctx, receipt.ExecutionID)
		return err == nil && exec.Status() == domain.ExecutionStatusCompleted
	}, 2*time.Second, 5*time.Millisecond, "timeout event never resolved the execution")

	assert.Equal(t, "finished late", exec.ResultDetail())
	engine.AssertNumberOfCalls(t, "Submit", 1)

	cluster, err := store.GetByName(ctx, "prod-east")
	require.NoError(t, err)
	assert.Equal(t, domain.ClusterStatusConnected, cluster.Status())
}

func TestTimeoutReconcileHandler_IgnoresAlreadyResolvedExecutions(t *testing.T) {
	ctx := context.Background()

	suite := setupOrchestratorSuite(OrchestratorConfig{})
	handler := TimeoutReconcileHandler(suite.orchestrator, logger.Noop())

	suite.resolver.On("Resolve", mock.Anything, mock.Anything).Return(resolvedMaterial(), nil)
	suite.engine.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.JobHandle{RunID: "run-1"}, nil)
	suite.engine.On("AwaitResult", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.JobOutcome{Status: domain.OutcomeSuccess}, nil)

	receipt, err := suite.orchestrator.OnboardCluster(ctx, onboardRequest())
	require.NoError(t, err)
	suite.awaitStatus(t, receipt.ExecutionID, domain.ExecutionStatusCompleted)

	// A stale timeout event for a completed execution acks cleanly.
	var acked bool
	evt := domain.NewExecutionStatusEvent(receipt.ExecutionID, "prod-east", domain.JobTypeCreate, domain.ExecutionStatusTimedOut, "")
	err = handler(ctx, events.EventEnvelope{Type: evt.EventType(), Payload: evt}, func(err error) {
		acked = err == nil
	})
	require.NoError(t, err)
	assert.True(t, acked)
	suite.engine.AssertNotCalled(t, "Poll", mock.Anything, mock.Anything)
}
