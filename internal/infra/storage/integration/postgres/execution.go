package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/internal/infra/storage"
)

// executionStore implements integration.ExecutionLedger using PostgreSQL as
// the backing store. CreatePending relies on a partial unique index over
// non-terminal executions, so the single-active-execution guarantee holds even
// with multiple service replicas sharing the database.
var _ integration.ExecutionLedger = (*executionStore)(nil)

type executionStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewExecutionStore creates a new PostgreSQL-backed execution ledger with
// tracing capabilities.
func NewExecutionStore(pool *pgxpool.Pool, tracer trace.Tracer) *executionStore {
	return &executionStore{db: pool, tracer: tracer}
}

const executionColumns = `id, cluster_id, job_type, status, started_at, last_update, completed_at,
	result_detail, triggered_by, reconcile_attempts, runner_run_id`

// CreatePending atomically records a new PENDING execution for a cluster.
// A unique violation on the active-execution index means another caller won
// the race; it is surfaced as ErrExecutionInProgress.
func (r *executionStore) CreatePending(ctx context.Context, clusterID int64, jobType integration.JobType, actor string) (*integration.Execution, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int64("cluster_id", clusterID),
		attribute.String("job_type", jobType.String()),
	)

	var exec *integration.Execution
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_pending_execution", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		row := r.db.QueryRow(ctx, `
			INSERT INTO executions (cluster_id, job_type, status, triggered_by)
			VALUES ($1, $2, $3, $4)
			RETURNING id, started_at, last_update`,
			clusterID, jobType.String(), integration.ExecutionStatusPending.String(), actor)

		var (
			id                    int64
			startedAt, lastUpdate time.Time
		)
		if err := row.Scan(&id, &startedAt, &lastUpdate); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return integration.ErrExecutionInProgress
			}
			return fmt.Errorf("create pending execution error: %w", err)
		}

		exec = integration.ReconstructExecution(
			id, clusterID,
			jobType,
			integration.ExecutionStatusPending,
			integration.ReconstructTimeline(startedAt, time.Time{}, lastUpdate),
			"", actor, 0, "",
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Transition moves an execution to a new status after validating the edge
// against the current row under a row lock. Concurrent transitions serialize
// on the lock, so exactly one of two racing callers observes the old status.
func (r *executionStore) Transition(ctx context.Context, executionID int64, newStatus integration.ExecutionStatus, detail string) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int64("execution_id", executionID),
		attribute.String("new_status", newStatus.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.transition_execution", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		tx, err := r.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		var current string
		err = tx.QueryRow(ctx, `
			SELECT status FROM executions WHERE id = $1 FOR UPDATE`, executionID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return integration.ErrExecutionNotFound
			}
			return fmt.Errorf("lock execution error: %w", err)
		}

		if err := integration.ParseExecutionStatus(current).ValidateTransition(newStatus); err != nil {
			return err
		}

		if newStatus.IsTerminal() {
			_, err = tx.Exec(ctx, `
				UPDATE executions
				SET status = $2,
					result_detail = CASE WHEN $3 <> '' THEN $3 ELSE result_detail END,
					completed_at = NOW(),
					last_update = NOW()
				WHERE id = $1`, executionID, newStatus.String(), detail)
		} else {
			_, err = tx.Exec(ctx, `
				UPDATE executions
				SET status = $2,
					result_detail = CASE WHEN $3 <> '' THEN $3 ELSE result_detail END,
					last_update = NOW()
				WHERE id = $1`, executionID, newStatus.String(), detail)
		}
		if err != nil {
			return fmt.Errorf("update execution status error: %w", err)
		}

		return tx.Commit(ctx)
	})
}

// AttachRun records the execution engine's run identifier.
func (r *executionStore) AttachRun(ctx context.Context, executionID int64, runID string) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int64("execution_id", executionID),
		attribute.String("run_id", runID),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.attach_execution_run", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		tag, err := r.db.Exec(ctx, `
			UPDATE executions SET runner_run_id = $2, last_update = NOW() WHERE id = $1`,
			executionID, runID)
		if err != nil {
			return fmt.Errorf("attach run error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return integration.ErrExecutionNotFound
		}
		return nil
	})
}

// IncrementReconcileAttempts bumps the reconciliation counter and returns the
// new value.
func (r *executionStore) IncrementReconcileAttempts(ctx context.Context, executionID int64) (int, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("execution_id", executionID))

	var attempts int
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.increment_reconcile_attempts", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		err := r.db.QueryRow(ctx, `
			UPDATE executions
			SET reconcile_attempts = reconcile_attempts + 1, last_update = NOW()
			WHERE id = $1
			RETURNING reconcile_attempts`, executionID).Scan(&attempts)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return integration.ErrExecutionNotFound
			}
			return fmt.Errorf("increment reconcile attempts error: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// Get retrieves an execution by id.
func (r *executionStore) Get(ctx context.Context, executionID int64) (*integration.Execution, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("execution_id", executionID))

	var exec *integration.Execution
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_execution", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		row := r.db.QueryRow(ctx, fmt.Sprintf(`
			SELECT %s FROM executions WHERE id = $1`, executionColumns), executionID)

		e, err := scanExecution(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return integration.ErrExecutionNotFound
			}
			return fmt.Errorf("get execution error: %w", err)
		}
		exec = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// LatestForCluster retrieves the most recent execution for a cluster.
func (r *executionStore) LatestForCluster(ctx context.Context, clusterID int64) (*integration.Execution, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("cluster_id", clusterID))

	var exec *integration.Execution
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.latest_execution_for_cluster", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		row := r.db.QueryRow(ctx, fmt.Sprintf(`
			SELECT %s FROM executions
			WHERE cluster_id = $1
			ORDER BY id DESC
			LIMIT 1`, executionColumns), clusterID)

		e, err := scanExecution(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return integration.ErrExecutionNotFound
			}
			return fmt.Errorf("latest execution error: %w", err)
		}
		exec = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// ListForCluster retrieves up to limit executions for a cluster, newest first.
func (r *executionStore) ListForCluster(ctx context.Context, clusterID int64, limit int) ([]*integration.Execution, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int64("cluster_id", clusterID),
		attribute.Int("limit", limit),
	)

	var execs []*integration.Execution
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_executions_for_cluster", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		rows, err := r.db.Query(ctx, fmt.Sprintf(`
			SELECT %s FROM executions
			WHERE cluster_id = $1
			ORDER BY id DESC
			LIMIT $2`, executionColumns), clusterID, limit)
		if err != nil {
			return fmt.Errorf("list executions error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanExecution(rows)
			if err != nil {
				return fmt.Errorf("scan execution row error: %w", err)
			}
			execs = append(execs, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return execs, nil
}

// ListByStatus retrieves up to limit executions in the given status, oldest
// first.
func (r *executionStore) ListByStatus(ctx context.Context, status integration.ExecutionStatus, limit int) ([]*integration.Execution, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("status", status.String()),
		attribute.Int("limit", limit),
	)

	var execs []*integration.Execution
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_executions_by_status", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		rows, err := r.db.Query(ctx, fmt.Sprintf(`
			SELECT %s FROM executions
			WHERE status = $1
			ORDER BY id
			LIMIT $2`, executionColumns), status.String(), limit)
		if err != nil {
			return fmt.Errorf("list executions by status error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanExecution(rows)
			if err != nil {
				return fmt.Errorf("scan execution row error: %w", err)
			}
			execs = append(execs, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return execs, nil
}

func scanExecution(row pgx.Row) (*integration.Execution, error) {
	var (
		id, clusterID         int64
		jobType, status       string
		startedAt, lastUpdate time.Time
		completedAt           sql.NullTime
		resultDetail          string
		triggeredBy           string
		reconcileAttempts     int
		runnerRunID           string
	)
	err := row.Scan(
		&id, &clusterID, &jobType, &status, &startedAt, &lastUpdate, &completedAt,
		&resultDetail, &triggeredBy, &reconcileAttempts, &runnerRunID,
	)
	if err != nil {
		return nil, err
	}

	var completed time.Time
	if completedAt.Valid {
		completed = completedAt.Time
	}

	return integration.ReconstructExecution(
		id, clusterID,
		integration.ParseJobType(jobType),
		integration.ParseExecutionStatus(status),
		integration.ReconstructTimeline(startedAt, completed, lastUpdate),
		resultDetail, triggeredBy, reconcileAttempts, runnerRunID,
	), nil
}
