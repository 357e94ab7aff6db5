package integration

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

// reconcilerActor identifies sweep-driven reconciliations in the audit trail.
const reconcilerActor = "system:reconciler"

// ReconcilerConfig tunes the background reconciliation sweep.
type ReconcilerConfig struct {
	// Interval is the delay between sweeps.
	Interval time.Duration

	// BatchSize bounds how many TIMED_OUT executions one sweep handles.
	BatchSize int
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// Reconciler periodically sweeps TIMED_OUT executions and asks the
// orchestrator to resolve them. It exists so a timed-out execution does not
// depend on an operator noticing it.
type Reconciler struct {
	cfg ReconcilerConfig

	orchestrator *Orchestrator
	ledger       domain.ExecutionLedger

	logger *logger.Logger
	tracer trace.Tracer
}

// NewReconciler creates a reconciliation sweeper.
func NewReconciler(cfg ReconcilerConfig, orchestrator *Orchestrator, ledger domain.ExecutionLedger, log *logger.Logger, tracer trace.Tracer) *Reconciler {
	return &Reconciler{
		cfg:          cfg.withDefaults(),
		orchestrator: orchestrator,
		ledger:       ledger,
		logger:       log.With("component", "reconciler"),
		tracer:       tracer,
	}
}

// Run sweeps until the context is cancelled. It always returns ctx.Err().
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info(ctx, "Reconciler started", "interval", r.cfg.Interval.String(), "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "Reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep reconciles one batch of TIMED_OUT executions.
func (r *Reconciler) sweep(ctx context.Context) {
	ctx, span := r.tracer.Start(ctx, "reconciler.sweep")
	defer span.End()

	execs, err := r.ledger.ListByStatus(ctx, domain.ExecutionStatusTimedOut, r.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		r.logger.Error(ctx, "Failed to list timed out executions", "err", err)
		return
	}
	span.SetAttributes(attribute.Int("timed_out_count", len(execs)))

	for _, exec := range execs {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.orchestrator.Reconcile(ctx, exec.ID(), reconcilerActor); err != nil {
			// Another reconciler or an operator may have resolved it first.
			if errors.Is(err, domain.ErrNotReconcilable) {
				continue
			}
			r.logger.Warn(ctx, "Reconciliation failed", "execution_id", exec.ID(), "err", err)
		}
	}
}
