package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/internal/infra/storage"
)

// auditStore implements integration.AuditRepository using PostgreSQL as the
// backing store. Entries are append-only; no update or delete paths exist.
var _ integration.AuditRepository = (*auditStore)(nil)

type auditStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewAuditStore creates a new PostgreSQL-backed audit repository with tracing
// capabilities.
func NewAuditStore(pool *pgxpool.Pool, tracer trace.Tracer) *auditStore {
	return &auditStore{db: pool, tracer: tracer}
}

// Append persists an audit entry and assigns its monotonic id.
func (r *auditStore) Append(ctx context.Context, entry *integration.AuditEntry) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("action", entry.Action),
		attribute.String("outcome", entry.Outcome),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.append_audit_entry", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		var clusterID, executionID sql.NullInt64
		if entry.ClusterID != 0 {
			clusterID = sql.NullInt64{Int64: entry.ClusterID, Valid: true}
		}
		if entry.ExecutionID != 0 {
			executionID = sql.NullInt64{Int64: entry.ExecutionID, Valid: true}
		}

		err := r.db.QueryRow(ctx, `
			INSERT INTO audit_entries (cluster_id, execution_id, actor, action, outcome, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			clusterID, executionID, entry.Actor, entry.Action, entry.Outcome, entry.Detail, entry.Timestamp,
		).Scan(&entry.ID)
		if err != nil {
			return fmt.Errorf("append audit entry error: %w", err)
		}
		return nil
	})
}

// ListForCluster retrieves up to limit entries for a cluster, newest first.
func (r *auditStore) ListForCluster(ctx context.Context, clusterID int64, limit int) ([]*integration.AuditEntry, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int64("cluster_id", clusterID),
		attribute.Int("limit", limit),
	)

	var entries []*integration.AuditEntry
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_audit_entries", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		rows, err := r.db.Query(ctx, `
			SELECT id, cluster_id, execution_id, actor, action, outcome, detail, created_at
			FROM audit_entries
			WHERE cluster_id = $1
			ORDER BY id DESC
			LIMIT $2`, clusterID, limit)
		if err != nil {
			return fmt.Errorf("list audit entries error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				entry     integration.AuditEntry
				cid, eid  sql.NullInt64
				createdAt time.Time
			)
			if err := rows.Scan(&entry.ID, &cid, &eid, &entry.Actor, &entry.Action, &entry.Outcome, &entry.Detail, &createdAt); err != nil {
				return fmt.Errorf("scan audit entry row error: %w", err)
			}
			entry.ClusterID = cid.Int64
			entry.ExecutionID = eid.Int64
			entry.Timestamp = createdAt
			entries = append(entries, &entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
