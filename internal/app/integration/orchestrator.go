// Package integration implements the application services that drive cluster
// onboarding and maintenance: accepting execution requests, driving jobs
// through the execution engine, and reconciling executions whose outcome was
// never observed.
package integration

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/cluster-armada/internal/domain/events"
	domain "github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

// OrchestratorConfig tunes execution handling.
type OrchestratorConfig struct {
	// AwaitTimeout bounds the synchronous wait for a job result. Expiry marks
	// the execution TIMED_OUT for later reconciliation.
	AwaitTimeout time.Duration

	// MaxReconcileAttempts bounds reconciliation polls before a TIMED_OUT
	// execution is forced to FAILED.
	MaxReconcileAttempts int

	// StatusFanout bounds concurrent per-cluster lookups in ListStatuses.
	StatusFanout int
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.AwaitTimeout <= 0 {
		c.AwaitTimeout = 10 * time.Minute
	}
	if c.MaxReconcileAttempts <= 0 {
		c.MaxReconcileAttempts = 3
	}
	if c.StatusFanout <= 0 {
		c.StatusFanout = 8
	}
	return c
}

// OnboardRequest carries everything needed to register a cluster and start
// its onboarding job.
type OnboardRequest struct {
	Name           string
	Namespace      string
	ServiceAccount string

	// Kubeconfig is base64-encoded inline connection material. Mutually
	// exclusive with VaultPath.
	Kubeconfig string

	// VaultPath references connection material in the secret store.
	VaultPath string

	// Force supersedes an existing cluster record in place, preserving its
	// execution history.
	Force bool

	Actor string
}

// ExecutionReceipt is returned when an execution request is accepted. The job
// itself runs in the background; callers poll status to observe its outcome.
type ExecutionReceipt struct {
	ClusterName string
	ExecutionID int64
	JobType     domain.JobType
	Status      domain.ExecutionStatus
}

// ExecutionSummary is a read-model view of a single execution.
type ExecutionSummary struct {
	ID                int64
	JobType           domain.JobType
	Status            domain.ExecutionStatus
	StartedAt         time.Time
	CompletedAt       *time.Time
	ResultDetail      string
	TriggeredBy       string
	ReconcileAttempts int
}

// ClusterStatusView is a read-model view of a cluster and its latest execution.
type ClusterStatusView struct {
	Name             string
	Namespace        string
	ServiceAccount   string
	Status           domain.ClusterStatus
	CredentialSource domain.CredentialSource
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LatestExecution  *ExecutionSummary
}

// Orchestrator coordinates cluster integration executions. It owns every
// execution status transition; no other component mutates the ledger.
type Orchestrator struct {
	cfg OrchestratorConfig

	clusters domain.ClusterRepository
	ledger   domain.ExecutionLedger
	audit    domain.AuditRepository

	resolver  domain.CredentialResolver
	engine    domain.ExecutionEngine
	publisher events.DomainEventPublisher

	logger *logger.Logger
	tracer trace.Tracer
}

// NewOrchestrator wires the orchestrator with its dependencies.
func NewOrchestrator(
	cfg OrchestratorConfig,
	clusters domain.ClusterRepository,
	ledger domain.ExecutionLedger,
	audit domain.AuditRepository,
	resolver domain.CredentialResolver,
	engine domain.ExecutionEngine,
	publisher events.DomainEventPublisher,
	log *logger.Logger,
	tracer trace.Tracer,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		clusters:  clusters,
		ledger:    ledger,
		audit:     audit,
		resolver:  resolver,
		engine:    engine,
		publisher: publisher,
		logger:    log.With("component", "orchestrator"),
		tracer:    tracer,
	}
}

// OnboardCluster registers a cluster (or supersedes one with Force) and starts
// a CREATE execution for it. At most one execution can be active per cluster;
// a second concurrent request is rejected with ErrExecutionInProgress before
// any job is dispatched.
func (o *Orchestrator) OnboardCluster(ctx context.Context, req OnboardRequest) (*ExecutionReceipt, error) {
	log := o.logger.With("operation", "onboard_cluster", "cluster_name", req.Name)
	ctx, span := o.tracer.Start(ctx, "orchestrator.onboard_cluster",
		trace.WithAttributes(
			attribute.String("cluster_name", req.Name),
			attribute.Bool("force", req.Force),
		),
	)
	defer span.End()

	credential, err := credentialFromRequest(req.Kubeconfig, req.VaultPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid credential reference")
		o.auditRejected(ctx, req.Actor, 0, err)
		return nil, err
	}

	candidate, err := domain.NewCluster(req.Name, req.Namespace, req.ServiceAccount, credential)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid onboarding request")
		o.auditRejected(ctx, req.Actor, 0, err)
		return nil, err
	}

	existing, err := o.clusters.GetByName(ctx, req.Name)
	switch {
	case err == nil:
		if !req.Force {
			span.AddEvent("cluster_already_exists")
			o.auditRejected(ctx, req.Actor, existing.ID(), domain.ErrClusterExists)
			return nil, domain.ErrClusterExists
		}
		// Supersede in place: identity and execution history survive.
		if err := existing.Supersede(req.Namespace, req.ServiceAccount, credential); err != nil {
			span.RecordError(err)
			return nil, err
		}
		candidate = existing
		span.AddEvent("cluster_superseded")
	case err != domain.ErrClusterNotFound:
		span.RecordError(err)
		span.SetStatus(codes.Error, "cluster lookup failed")
		return nil, fmt.Errorf("looking up cluster %s: %w", req.Name, err)
	}

	cluster, err := o.clusters.Upsert(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cluster persist failed")
		return nil, fmt.Errorf("persisting cluster %s: %w", req.Name, err)
	}

	exec, err := o.acceptExecution(ctx, cluster, domain.JobTypeCreate, req.Actor)
	if err != nil {
		return nil, err
	}
	span.AddEvent("execution_accepted", trace.WithAttributes(attribute.Int64("execution_id", exec.ID())))

	evt := domain.NewClusterOnboardedEvent(cluster.Name(), exec.ID(), req.Force)
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(cluster.Name())); err != nil {
		// Event distribution is best effort; the execution proceeds.
		log.Warn(ctx, "failed to publish cluster onboarded event", "err", err)
	}

	// Snapshot the receipt before the background run starts mutating the
	// execution copy.
	accepted := receipt(cluster, exec)

	vars := o.baseVars(cluster, exec)
	vars[domain.VarForce] = strconv.FormatBool(req.Force)
	go o.runExecution(context.WithoutCancel(ctx), cluster, exec, vars)

	log.Info(ctx, "Onboarding accepted", "execution_id", accepted.ExecutionID, "force", req.Force)
	return accepted, nil
}

// UpdateServiceAccount starts an UPDATE_SERVICE_ACCOUNT execution that rotates
// the cluster's service account. The record's service account is only updated
// once the job completes.
func (o *Orchestrator) UpdateServiceAccount(ctx context.Context, clusterName, serviceAccount, actor string) (*ExecutionReceipt, error) {
	log := o.logger.With("operation", "update_service_account", "cluster_name", clusterName)
	ctx, span := o.tracer.Start(ctx, "orchestrator.update_service_account",
		trace.WithAttributes(attribute.String("cluster_name", clusterName)),
	)
	defer span.End()

	if err := domain.ValidateName("service account", serviceAccount); err != nil {
		span.RecordError(err)
		o.auditRejected(ctx, actor, 0, err)
		return nil, err
	}

	cluster, err := o.clusters.GetByName(ctx, clusterName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	exec, err := o.acceptExecution(ctx, cluster, domain.JobTypeUpdateServiceAccount, actor)
	if err != nil {
		return nil, err
	}
	span.AddEvent("execution_accepted", trace.WithAttributes(attribute.Int64("execution_id", exec.ID())))

	accepted := receipt(cluster, exec)

	vars := o.baseVars(cluster, exec)
	vars[domain.VarServiceAccount] = serviceAccount
	vars[domain.VarOverwrite] = "true"
	go o.runExecution(context.WithoutCancel(ctx), cluster, exec, vars)

	log.Info(ctx, "Service account update accepted", "execution_id", accepted.ExecutionID)
	return accepted, nil
}

// ValidateCluster starts a VALIDATE execution that checks connectivity and
// permissions without mutating the cluster.
func (o *Orchestrator) ValidateCluster(ctx context.Context, clusterName, actor string) (*ExecutionReceipt, error) {
	log := o.logger.With("operation", "validate_cluster", "cluster_name", clusterName)
	ctx, span := o.tracer.Start(ctx, "orchestrator.validate_cluster",
		trace.WithAttributes(attribute.String("cluster_name", clusterName)),
	)
	defer span.End()

	cluster, err := o.clusters.GetByName(ctx, clusterName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	exec, err := o.acceptExecution(ctx, cluster, domain.JobTypeValidate, actor)
	if err != nil {
		return nil, err
	}
	span.AddEvent("execution_accepted", trace.WithAttributes(attribute.Int64("execution_id", exec.ID())))

	accepted := receipt(cluster, exec)
	go o.runExecution(context.WithoutCancel(ctx), cluster, exec, o.baseVars(cluster, exec))

	log.Info(ctx, "Validation accepted", "execution_id", accepted.ExecutionID)
	return accepted, nil
}

// acceptExecution records the PENDING ledger row that serializes executions
// per cluster, then writes the acceptance audit entry.
func (o *Orchestrator) acceptExecution(ctx context.Context, cluster *domain.Cluster, jobType domain.JobType, actor string) (*domain.Execution, error) {
	exec, err := o.ledger.CreatePending(ctx, cluster.ID(), jobType, actor)
	if err != nil {
		o.auditRejected(ctx, actor, cluster.ID(), err)
		return nil, err
	}

	entry := domain.NewAuditEntry(actor, domain.AuditActionRequestAccepted, domain.AuditOutcomeSuccess,
		fmt.Sprintf("%s execution accepted", jobType)).
		ForCluster(cluster.ID()).
		ForExecution(exec.ID())
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.Warn(ctx, "failed to append audit entry", "err", err)
	}

	o.publishStatus(ctx, cluster, exec, "")
	return exec, nil
}

// runExecution drives an accepted execution through the engine to a terminal
// or TIMED_OUT state. It runs detached from the request that accepted the
// execution; cancellation of the original request must not abandon the job.
func (o *Orchestrator) runExecution(ctx context.Context, cluster *domain.Cluster, exec *domain.Execution, vars map[string]string) {
	log := o.logger.With(
		"operation", "run_execution",
		"cluster_name", cluster.Name(),
		"execution_id", exec.ID(),
		"job_type", exec.JobType().String(),
	)
	ctx, span := o.tracer.Start(ctx, "orchestrator.run_execution",
		trace.WithAttributes(
			attribute.String("cluster_name", cluster.Name()),
			attribute.Int64("execution_id", exec.ID()),
			attribute.String("job_type", exec.JobType().String()),
		),
	)
	defer span.End()

	material, err := o.resolver.Resolve(ctx, cluster)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential resolution failed")
		o.auditCredentialFailure(ctx, cluster, exec, err)
		o.failBeforeSubmit(ctx, cluster, exec, fmt.Sprintf("credential resolution failed: %s", credentialDetail(err)))
		return
	}
	vars[domain.VarKubeconfig] = base64.StdEncoding.EncodeToString(material.Kubeconfig())

	if err := o.transition(ctx, cluster, exec, domain.ExecutionStatusRunning, ""); err != nil {
		span.RecordError(err)
		return
	}

	handle, err := o.engine.Submit(ctx, exec.JobType(), vars)
	if err != nil {
		// A rejected submit means the job is known not to run; this is a
		// plain failure, not an unknown outcome.
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		if terr := o.transition(ctx, cluster, exec, domain.ExecutionStatusFailed, fmt.Sprintf("job submission failed: %v", err)); terr != nil {
			log.Error(ctx, "failed to record submit failure", "err", terr)
		}
		return
	}
	span.AddEvent("job_submitted", trace.WithAttributes(attribute.String("run_id", handle.RunID)))

	if err := o.ledger.AttachRun(ctx, exec.ID(), handle.RunID); err != nil {
		log.Warn(ctx, "failed to record run id", "run_id", handle.RunID, "err", err)
	}

	outcome, err := o.engine.AwaitResult(ctx, handle, o.cfg.AwaitTimeout)
	if err != nil {
		// Context death while waiting: the outcome is unknown, treat as timeout.
		outcome = domain.JobOutcome{Status: domain.OutcomeTimeout, Detail: "result wait interrupted"}
	}

	switch outcome.Status {
	case domain.OutcomeSuccess:
		o.completeSuccess(ctx, cluster, exec, vars, outcome.Detail)
	case domain.OutcomeFailure:
		if err := o.transition(ctx, cluster, exec, domain.ExecutionStatusFailed, outcome.Detail); err != nil {
			log.Error(ctx, "failed to record job failure", "err", err)
		}
	case domain.OutcomeTimeout:
		span.AddEvent("result_timeout")
		if err := o.transition(ctx, cluster, exec, domain.ExecutionStatusTimedOut, outcome.Detail); err != nil {
			log.Error(ctx, "failed to record timeout", "err", err)
		}
		log.Warn(ctx, "Execution timed out awaiting result; reconciliation will poll", "run_id", handle.RunID)
	}
}

// completeSuccess records a COMPLETED transition and applies any record
// changes the job type implies.
func (o *Orchestrator) completeSuccess(ctx context.Context, cluster *domain.Cluster, exec *domain.Execution, vars map[string]string, detail string) {
	if err := o.transition(ctx, cluster, exec, domain.ExecutionStatusCompleted, detail); err != nil {
		o.logger.Error(ctx, "failed to record job success", "execution_id", exec.ID(), "err", err)
		return
	}

	if exec.JobType() == domain.JobTypeUpdateServiceAccount {
		if sa := vars[domain.VarServiceAccount]; sa != "" {
			if err := cluster.ApplyServiceAccount(sa); err == nil {
				if _, err := o.clusters.Upsert(ctx, cluster); err != nil {
					o.logger.Warn(ctx, "failed to persist rotated service account", "err", err)
				}
			}
		}
	}
}

// Reconcile resolves a TIMED_OUT execution by polling the engine for the
// job's true outcome. It never resubmits: the idempotency key already
// identifies the run, and an unknown outcome only becomes known by observing
// it. After MaxReconcileAttempts unresolved polls the execution is forced to
// FAILED so the cluster is not blocked forever.
func (o *Orchestrator) Reconcile(ctx context.Context, executionID int64, actor string) (*domain.Execution, error) {
	log := o.logger.With("operation", "reconcile", "execution_id", executionID)
	ctx, span := o.tracer.Start(ctx, "orchestrator.reconcile",
		trace.WithAttributes(attribute.Int64("execution_id", executionID)),
	)
	defer span.End()

	exec, err := o.ledger.Get(ctx, executionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if exec.Status() != domain.ExecutionStatusTimedOut {
		span.AddEvent("not_reconcilable", trace.WithAttributes(attribute.String("status", exec.Status().String())))
		return nil, domain.ErrNotReconcilable
	}

	cluster, err := o.clusters.GetByID(ctx, exec.ClusterID())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	attempts, err := o.ledger.IncrementReconcileAttempts(ctx, executionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("reconcile_attempts", attempts))

	resolved := domain.ExecutionStatusTimedOut
	detail := ""

	if exec.RunnerRunID() == "" {
		// No run was ever attached; there is nothing to poll.
		resolved, detail = domain.ExecutionStatusFailed, "no run identifier recorded"
	} else {
		outcome, pollErr := o.engine.Poll(ctx, domain.JobHandle{ExecutionID: exec.ID(), RunID: exec.RunnerRunID()})
		switch {
		case pollErr == nil && outcome.Status == domain.OutcomeSuccess:
			resolved, detail = domain.ExecutionStatusCompleted, outcome.Detail
		case pollErr == nil && outcome.Status == domain.OutcomeFailure:
			resolved, detail = domain.ExecutionStatusFailed, outcome.Detail
		default:
			if pollErr != nil {
				log.Warn(ctx, "reconciliation poll failed", "err", pollErr)
			}
		}
	}

	if resolved == domain.ExecutionStatusTimedOut && attempts >= o.cfg.MaxReconcileAttempts {
		resolved = domain.ExecutionStatusFailed
		detail = fmt.Sprintf("reconciliation exhausted after %d attempts", attempts)
		span.AddEvent("reconciliation_exhausted")
	}

	outcomeLabel := domain.AuditOutcomeSuccess
	if resolved == domain.ExecutionStatusTimedOut {
		// Still unresolved; record the attempt and leave the execution as is.
		entry := domain.NewAuditEntry(actor, domain.AuditActionReconciliation, outcomeLabel,
			fmt.Sprintf("attempt %d: outcome still unknown", attempts)).
			ForCluster(exec.ClusterID()).
			ForExecution(exec.ID())
		if err := o.audit.Append(ctx, entry); err != nil {
			log.Warn(ctx, "failed to append audit entry", "err", err)
		}
		return o.ledger.Get(ctx, executionID)
	}

	if err := o.transition(ctx, cluster, exec, resolved, detail); err != nil {
		span.RecordError(err)
		return nil, err
	}

	entry := domain.NewAuditEntry(actor, domain.AuditActionReconciliation, outcomeLabel,
		fmt.Sprintf("attempt %d: resolved to %s", attempts, resolved)).
		ForCluster(exec.ClusterID()).
		ForExecution(exec.ID())
	if err := o.audit.Append(ctx, entry); err != nil {
		log.Warn(ctx, "failed to append audit entry", "err", err)
	}

	evt := domain.NewExecutionReconciledEvent(exec.ID(), cluster.Name(), resolved, attempts)
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(cluster.Name())); err != nil {
		log.Warn(ctx, "failed to publish reconciled event", "err", err)
	}

	log.Info(ctx, "Execution reconciled", "resolved", resolved.String(), "attempts", attempts)
	return o.ledger.Get(ctx, executionID)
}

// GetStatus returns the cluster record together with its latest execution.
func (o *Orchestrator) GetStatus(ctx context.Context, clusterName string) (*ClusterStatusView, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.get_status",
		trace.WithAttributes(attribute.String("cluster_name", clusterName)),
	)
	defer span.End()

	cluster, err := o.clusters.GetByName(ctx, clusterName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	view := clusterView(cluster)

	latest, err := o.ledger.LatestForCluster(ctx, cluster.ID())
	switch {
	case err == nil:
		view.LatestExecution = executionSummary(latest)
	case err != domain.ErrExecutionNotFound:
		span.RecordError(err)
		return nil, fmt.Errorf("loading latest execution for %s: %w", clusterName, err)
	}

	return view, nil
}

// ListStatuses returns the status view for every registered cluster. Latest
// executions are fetched concurrently with a bounded fanout.
func (o *Orchestrator) ListStatuses(ctx context.Context) ([]*ClusterStatusView, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.list_statuses")
	defer span.End()

	clusters, err := o.clusters.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("cluster_count", len(clusters)))

	views := make([]*ClusterStatusView, len(clusters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.StatusFanout)
	for i, cluster := range clusters {
		g.Go(func() error {
			view := clusterView(cluster)
			latest, err := o.ledger.LatestForCluster(gctx, cluster.ID())
			switch {
			case err == nil:
				view.LatestExecution = executionSummary(latest)
			case err != domain.ErrExecutionNotFound:
				return fmt.Errorf("loading latest execution for %s: %w", cluster.Name(), err)
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return views, nil
}

// History returns up to limit executions for a cluster, newest first.
func (o *Orchestrator) History(ctx context.Context, clusterName string, limit int) ([]*ExecutionSummary, error) {
	cluster, err := o.clusters.GetByName(ctx, clusterName)
	if err != nil {
		return nil, err
	}

	execs, err := o.ledger.ListForCluster(ctx, cluster.ID(), limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]*ExecutionSummary, len(execs))
	for i, exec := range execs {
		summaries[i] = executionSummary(exec)
	}
	return summaries, nil
}

// transition records a status change on the ledger, mirrors terminal outcomes
// onto the cluster record, writes the audit entry, and publishes the event.
func (o *Orchestrator) transition(ctx context.Context, cluster *domain.Cluster, exec *domain.Execution, newStatus domain.ExecutionStatus, detail string) error {
	if err := o.ledger.Transition(ctx, exec.ID(), newStatus, detail); err != nil {
		return fmt.Errorf("transitioning execution %d to %s: %w", exec.ID(), newStatus, err)
	}

	entry := domain.NewAuditEntry(exec.TriggeredBy(), domain.AuditActionExecutionTransition, domain.AuditOutcomeSuccess,
		fmt.Sprintf("%s -> %s", exec.Status(), newStatus)).
		ForCluster(cluster.ID()).
		ForExecution(exec.ID())
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.Warn(ctx, "failed to append audit entry", "err", err)
	}

	if err := exec.UpdateStatus(newStatus, detail); err != nil {
		// The ledger accepted the edge from the same starting status, so the
		// local copy must accept it too.
		o.logger.Warn(ctx, "local execution copy diverged from ledger", "execution_id", exec.ID(), "err", err)
	}

	// Cluster status only moves on terminal outcomes.
	switch newStatus {
	case domain.ExecutionStatusCompleted:
		if err := o.clusters.UpdateStatus(ctx, cluster.ID(), domain.ClusterStatusConnected); err != nil {
			o.logger.Warn(ctx, "failed to update cluster status", "err", err)
		}
	case domain.ExecutionStatusFailed:
		if err := o.clusters.UpdateStatus(ctx, cluster.ID(), domain.ClusterStatusError); err != nil {
			o.logger.Warn(ctx, "failed to update cluster status", "err", err)
		}
	}

	o.publishStatus(ctx, cluster, exec, detail)
	return nil
}

// failBeforeSubmit records a PENDING -> FAILED transition for executions that
// never reached the engine.
func (o *Orchestrator) failBeforeSubmit(ctx context.Context, cluster *domain.Cluster, exec *domain.Execution, detail string) {
	if err := o.transition(ctx, cluster, exec, domain.ExecutionStatusFailed, detail); err != nil {
		o.logger.Error(ctx, "failed to record pre-submit failure", "execution_id", exec.ID(), "err", err)
	}
}

func (o *Orchestrator) publishStatus(ctx context.Context, cluster *domain.Cluster, exec *domain.Execution, detail string) {
	evt := domain.NewExecutionStatusEvent(exec.ID(), cluster.Name(), exec.JobType(), exec.Status(), detail)
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(cluster.Name())); err != nil {
		o.logger.Warn(ctx, "failed to publish execution status event", "execution_id", exec.ID(), "err", err)
	}
}

func (o *Orchestrator) auditRejected(ctx context.Context, actor string, clusterID int64, cause error) {
	entry := domain.NewAuditEntry(actor, domain.AuditActionRequestRejected, domain.AuditOutcomeError, cause.Error())
	if clusterID != 0 {
		entry.ForCluster(clusterID)
	}
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.Warn(ctx, "failed to append audit entry", "err", err)
	}
}

func (o *Orchestrator) auditCredentialFailure(ctx context.Context, cluster *domain.Cluster, exec *domain.Execution, cause error) {
	entry := domain.NewAuditEntry(exec.TriggeredBy(), domain.AuditActionCredentialResolution, domain.AuditOutcomeError,
		credentialDetail(cause)).
		ForCluster(cluster.ID()).
		ForExecution(exec.ID())
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.Warn(ctx, "failed to append audit entry", "err", err)
	}
}

func (o *Orchestrator) baseVars(cluster *domain.Cluster, exec *domain.Execution) map[string]string {
	return map[string]string{
		domain.VarExecutionID:    strconv.FormatInt(exec.ID(), 10),
		domain.VarClusterName:    cluster.Name(),
		domain.VarNamespace:      cluster.Namespace(),
		domain.VarServiceAccount: cluster.ServiceAccount(),
	}
}

func credentialFromRequest(kubeconfig, vaultPath string) (domain.CredentialRef, error) {
	var credential domain.CredentialRef
	switch {
	case kubeconfig != "" && vaultPath != "":
		return credential, domain.NewValidationError("only one of kubeconfig or kubeconfig_vault_path may be provided")
	case kubeconfig != "":
		credential = domain.NewInlineCredential(kubeconfig)
	case vaultPath != "":
		credential = domain.NewVaultCredential(vaultPath)
	default:
		return credential, domain.NewValidationError("either kubeconfig or kubeconfig_vault_path must be provided")
	}
	return credential, nil
}

// credentialDetail renders a credential failure for audit and status records.
// Classified errors keep their kind; anything else is reported opaquely so no
// material can leak.
func credentialDetail(err error) string {
	if credErr, ok := domain.AsCredentialError(err); ok {
		return fmt.Sprintf("%s: %s", credErr.Kind, credErr.Reason)
	}
	return "unclassified credential failure"
}

func receipt(cluster *domain.Cluster, exec *domain.Execution) *ExecutionReceipt {
	return &ExecutionReceipt{
		ClusterName: cluster.Name(),
		ExecutionID: exec.ID(),
		JobType:     exec.JobType(),
		Status:      exec.Status(),
	}
}

func clusterView(cluster *domain.Cluster) *ClusterStatusView {
	return &ClusterStatusView{
		Name:             cluster.Name(),
		Namespace:        cluster.Namespace(),
		ServiceAccount:   cluster.ServiceAccount(),
		Status:           cluster.Status(),
		CredentialSource: cluster.Credential().Source(),
		CreatedAt:        cluster.CreatedAt(),
		UpdatedAt:        cluster.UpdatedAt(),
	}
}

func executionSummary(exec *domain.Execution) *ExecutionSummary {
	summary := &ExecutionSummary{
		ID:                exec.ID(),
		JobType:           exec.JobType(),
		Status:            exec.Status(),
		StartedAt:         exec.StartedAt(),
		ResultDetail:      exec.ResultDetail(),
		TriggeredBy:       exec.TriggeredBy(),
		ReconcileAttempts: exec.ReconcileAttempts(),
	}
	if completedAt, ok := exec.CompletedAt(); ok {
		summary.CompletedAt = &completedAt
	}
	return summary
}
