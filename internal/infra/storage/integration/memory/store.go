// Package memory provides an in-memory implementation of the integration
// repositories. It offers a lightweight, non-persistent store suitable for
// testing and development environments where durability is not required.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
)

// Store implements integration.ClusterRepository, integration.ExecutionLedger,
// and integration.AuditRepository behind a single mutex. The mutex stands in
// for the database's partial unique index: CreatePending checks and inserts
// under the same lock, so the single-active-execution guarantee matches the
// PostgreSQL behavior. Reads hand out reconstructed copies, never the
// map-resident aggregates, so callers observe records the same way they would
// rows scanned from the database.
type Store struct {
	mu sync.Mutex

	clusters      map[string]*integration.Cluster
	nextClusterID int64

	executions  map[int64]*integration.Execution
	nextExecID  int64
	audit       []*integration.AuditEntry
	nextAuditID int64
}

var (
	_ integration.ClusterRepository = (*Store)(nil)
	_ integration.ExecutionLedger   = (*Store)(nil)
	_ integration.AuditRepository   = (*auditFacet)(nil)
)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		clusters:      make(map[string]*integration.Cluster),
		executions:    make(map[int64]*integration.Execution),
		nextClusterID: 1,
		nextExecID:    1,
		nextAuditID:   1,
	}
}

// Upsert inserts or rewrites a cluster record by name.
func (s *Store) Upsert(_ context.Context, cluster *integration.Cluster) (*integration.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	id := cluster.ID()
	createdAt := now
	if existing, ok := s.clusters[cluster.Name()]; ok {
		id = existing.ID()
		createdAt = existing.CreatedAt()
	} else if id == 0 {
		id = s.nextClusterID
		s.nextClusterID++
	}

	persisted := integration.ReconstructCluster(
		id,
		cluster.Name(),
		cluster.Namespace(),
		cluster.ServiceAccount(),
		cluster.Credential(),
		cluster.Status(),
		createdAt,
		now,
	)
	s.clusters[cluster.Name()] = persisted
	return cloneCluster(persisted), nil
}

// GetByName retrieves a cluster by name.
func (s *Store) GetByName(_ context.Context, name string) (*integration.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cluster, ok := s.clusters[name]
	if !ok {
		return nil, integration.ErrClusterNotFound
	}
	return cloneCluster(cluster), nil
}

// GetByID retrieves a cluster by storage identity.
func (s *Store) GetByID(_ context.Context, clusterID int64) (*integration.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cluster := range s.clusters {
		if cluster.ID() == clusterID {
			return cloneCluster(cluster), nil
		}
	}
	return nil, integration.ErrClusterNotFound
}

// UpdateStatus records a new integration status for a cluster.
func (s *Store) UpdateStatus(_ context.Context, clusterID int64, status integration.ClusterStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cluster := range s.clusters {
		if cluster.ID() == clusterID {
			cluster.SetStatus(status)
			return nil
		}
	}
	return integration.ErrClusterNotFound
}

// List returns all cluster records ordered by name.
func (s *Store) List(_ context.Context) ([]*integration.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clusters := make([]*integration.Cluster, 0, len(s.clusters))
	for _, cluster := range s.clusters {
		clusters = append(clusters, cloneCluster(cluster))
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name() < clusters[j].Name() })
	return clusters, nil
}

// CreatePending records a new PENDING execution unless the cluster already has
// a non-terminal one.
func (s *Store) CreatePending(_ context.Context, clusterID int64, jobType integration.JobType, actor string) (*integration.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, exec := range s.executions {
		if exec.ClusterID() == clusterID && !exec.Status().IsTerminal() {
			return nil, integration.ErrExecutionInProgress
		}
	}

	exec := integration.NewExecution(clusterID, jobType, actor)
	exec.SetID(s.nextExecID)
	s.nextExecID++
	s.executions[exec.ID()] = exec
	return cloneExecution(exec), nil
}

// Transition moves an execution to a new status, enforcing legal edges.
func (s *Store) Transition(_ context.Context, executionID int64, newStatus integration.ExecutionStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return integration.ErrExecutionNotFound
	}
	return exec.UpdateStatus(newStatus, detail)
}

// AttachRun records the execution engine's run identifier.
func (s *Store) AttachRun(_ context.Context, executionID int64, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return integration.ErrExecutionNotFound
	}
	exec.AttachRun(runID)
	return nil
}

// IncrementReconcileAttempts bumps the reconciliation counter.
func (s *Store) IncrementReconcileAttempts(_ context.Context, executionID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return 0, integration.ErrExecutionNotFound
	}
	exec.IncrementReconcileAttempts()
	return exec.ReconcileAttempts(), nil
}

// Get retrieves an execution by id.
func (s *Store) Get(_ context.Context, executionID int64) (*integration.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[executionID]
	if !ok {
		return nil, integration.ErrExecutionNotFound
	}
	return cloneExecution(exec), nil
}

// LatestForCluster retrieves the most recent execution for a cluster.
func (s *Store) LatestForCluster(_ context.Context, clusterID int64) (*integration.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *integration.Execution
	for _, exec := range s.executions {
		if exec.ClusterID() != clusterID {
			continue
		}
		if latest == nil || exec.ID() > latest.ID() {
			latest = exec
		}
	}
	if latest == nil {
		return nil, integration.ErrExecutionNotFound
	}
	return cloneExecution(latest), nil
}

// ListForCluster retrieves up to limit executions for a cluster, newest first.
func (s *Store) ListForCluster(_ context.Context, clusterID int64, limit int) ([]*integration.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var execs []*integration.Execution
	for _, exec := range s.executions {
		if exec.ClusterID() == clusterID {
			execs = append(execs, cloneExecution(exec))
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].ID() > execs[j].ID() })
	if limit > 0 && len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}

// ListByStatus retrieves up to limit executions in the given status, oldest
// first.
func (s *Store) ListByStatus(_ context.Context, status integration.ExecutionStatus, limit int) ([]*integration.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var execs []*integration.Execution
	for _, exec := range s.executions {
		if exec.Status() == status {
			execs = append(execs, cloneExecution(exec))
		}
	}
	sort.Slice(execs, func(i, j int) bool { return execs[i].ID() < execs[j].ID() })
	if limit > 0 && len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}

// Audit returns the store's audit repository facet. The facet exists because
// ListForCluster has a different signature on the execution ledger.
func (s *Store) Audit() integration.AuditRepository { return (*auditFacet)(s) }

type auditFacet Store

// Append persists an audit entry.
func (a *auditFacet) Append(_ context.Context, entry *integration.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry.ID = a.nextAuditID
	a.nextAuditID++
	a.audit = append(a.audit, entry)
	return nil
}

// ListForCluster retrieves up to limit audit entries for a cluster, newest first.
func (a *auditFacet) ListForCluster(_ context.Context, clusterID int64, limit int) ([]*integration.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []*integration.AuditEntry
	for i := len(a.audit) - 1; i >= 0; i-- {
		if a.audit[i].ClusterID == clusterID {
			entry := *a.audit[i]
			entries = append(entries, &entry)
			if limit > 0 && len(entries) == limit {
				break
			}
		}
	}
	return entries, nil
}

func cloneCluster(cluster *integration.Cluster) *integration.Cluster {
	return integration.ReconstructCluster(
		cluster.ID(),
		cluster.Name(),
		cluster.Namespace(),
		cluster.ServiceAccount(),
		cluster.Credential(),
		cluster.Status(),
		cluster.CreatedAt(),
		cluster.UpdatedAt(),
	)
}

func cloneExecution(exec *integration.Execution) *integration.Execution {
	timeline := exec.GetTimeline()
	return integration.ReconstructExecution(
		exec.ID(),
		exec.ClusterID(),
		exec.JobType(),
		exec.Status(),
		integration.ReconstructTimeline(timeline.StartedAt(), timeline.CompletedAt(), timeline.LastUpdate()),
		exec.ResultDetail(),
		exec.TriggeredBy(),
		exec.ReconcileAttempts(),
		exec.RunnerRunID(),
	)
}
