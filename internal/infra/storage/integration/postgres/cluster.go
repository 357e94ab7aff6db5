// Package postgres provides PostgreSQL-backed implementations of the
// integration domain repositories. The execution store doubles as the
// concurrency gate for the whole system: a partial unique index guarantees at
// most one non-terminal execution per cluster across all service replicas.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/internal/infra/storage"
)

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

const defaultQueryTimeout = 3 * time.Second

// clusterStore implements integration.ClusterRepository using PostgreSQL as
// the backing store.
var _ integration.ClusterRepository = (*clusterStore)(nil)

type clusterStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewClusterStore creates a new PostgreSQL-backed cluster repository with
// tracing capabilities.
func NewClusterStore(pool *pgxpool.Pool, tracer trace.Tracer) *clusterStore {
	return &clusterStore{db: pool, tracer: tracer}
}

// Upsert persists a cluster, rewriting the record on a name conflict. The
// returned cluster carries the storage identity and timestamps.
func (r *clusterStore) Upsert(ctx context.Context, cluster *integration.Cluster) (*integration.Cluster, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("cluster_name", cluster.Name()),
		attribute.String("status", cluster.Status().String()),
	)

	var persisted *integration.Cluster
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.upsert_cluster", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		inline, _ := cluster.Credential().InlineBlob()
		vaultPath, _ := cluster.Credential().VaultPath()

		row := r.db.QueryRow(ctx, `
			INSERT INTO clusters (name, namespace, service_account, credential_inline, credential_vault_path, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (name) DO UPDATE SET
				namespace = EXCLUDED.namespace,
				service_account = EXCLUDED.service_account,
				credential_inline = EXCLUDED.credential_inline,
				credential_vault_path = EXCLUDED.credential_vault_path,
				status = EXCLUDED.status,
				updated_at = NOW()
			RETURNING id, created_at, updated_at`,
			cluster.Name(),
			cluster.Namespace(),
			cluster.ServiceAccount(),
			inline,
			vaultPath,
			cluster.Status().String(),
		)

		var (
			id                   int64
			createdAt, updatedAt time.Time
		)
		if err := row.Scan(&id, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("upsert cluster error: %w", err)
		}

		persisted = integration.ReconstructCluster(
			id,
			cluster.Name(),
			cluster.Namespace(),
			cluster.ServiceAccount(),
			cluster.Credential(),
			cluster.Status(),
			createdAt,
			updatedAt,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return persisted, nil
}

// GetByName retrieves a cluster by its unique name.
func (r *clusterStore) GetByName(ctx context.Context, name string) (*integration.Cluster, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("cluster_name", name))

	var cluster *integration.Cluster
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_cluster_by_name", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		row := r.db.QueryRow(ctx, `
			SELECT id, name, namespace, service_account, credential_inline, credential_vault_path, status, created_at, updated_at
			FROM clusters
			WHERE name = $1`, name)

		c, err := scanCluster(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return integration.ErrClusterNotFound
			}
			return fmt.Errorf("get cluster error: %w", err)
		}
		cluster = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

// GetByID retrieves a cluster by storage identity.
func (r *clusterStore) GetByID(ctx context.Context, clusterID int64) (*integration.Cluster, error) {
	dbAttrs := append(defaultDBAttributes, attribute.Int64("cluster_id", clusterID))

	var cluster *integration.Cluster
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_cluster_by_id", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		row := r.db.QueryRow(ctx, `
			SELECT id, name, namespace, service_account, credential_inline, credential_vault_path, status, created_at, updated_at
			FROM clusters
			WHERE id = $1`, clusterID)

		c, err := scanCluster(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return integration.ErrClusterNotFound
			}
			return fmt.Errorf("get cluster error: %w", err)
		}
		cluster = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cluster, nil
}

// UpdateStatus records a new integration status for a cluster.
func (r *clusterStore) UpdateStatus(ctx context.Context, clusterID int64, status integration.ClusterStatus) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.Int64("cluster_id", clusterID),
		attribute.String("status", status.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_cluster_status", dbAttrs, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		tag, err := r.db.Exec(ctx, `
			UPDATE clusters SET status = $2, updated_at = NOW() WHERE id = $1`,
			clusterID, status.String())
		if err != nil {
			return fmt.Errorf("update cluster status error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return integration.ErrClusterNotFound
		}
		return nil
	})
}

// List returns all cluster records ordered by name.
func (r *clusterStore) List(ctx context.Context) ([]*integration.Cluster, error) {
	var clusters []*integration.Cluster
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_clusters", defaultDBAttributes, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
		defer cancel()

		rows, err := r.db.Query(ctx, `
			SELECT id, name, namespace, service_account, credential_inline, credential_vault_path, status, created_at, updated_at
			FROM clusters
			ORDER BY name`)
		if err != nil {
			return fmt.Errorf("list clusters error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanCluster(rows)
			if err != nil {
				return fmt.Errorf("scan cluster row error: %w", err)
			}
			clusters = append(clusters, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return clusters, nil
}

func scanCluster(row pgx.Row) (*integration.Cluster, error) {
	var (
		id                   int64
		name                 string
		namespace            string
		serviceAccount       string
		inline               string
		vaultPath            string
		status               string
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &name, &namespace, &serviceAccount, &inline, &vaultPath, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	return integration.ReconstructCluster(
		id,
		name,
		namespace,
		serviceAccount,
		integration.ReconstructCredentialRef(inline, vaultPath),
		integration.ParseClusterStatus(status),
		createdAt,
		updatedAt,
	), nil
}
