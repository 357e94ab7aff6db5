// Package api exposes the cluster integration HTTP surface. Handlers decode
// and validate requests, delegate to the orchestrator, and map domain errors
// to response codes; they hold no business rules of their own.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cluster-armada/internal/api/errs"
	app "github.com/ahrav/cluster-armada/internal/app/integration"
	domain "github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
	"github.com/ahrav/cluster-armada/pkg/common/otel"
)

// ServerConfig holds the server's listen address and admission limits.
type ServerConfig struct {
	Host string
	Port string

	// RequestsPerSecond and Burst bound request admission. Requests beyond the
	// limit are rejected with 429 rather than queued.
	RequestsPerSecond float64
	Burst             int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == "" {
		c.Port = "6000"
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 50
	}
	if c.Burst <= 0 {
		c.Burst = 100
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 20 * time.Second
	}
	return c
}

// Server serves the cluster integration API.
type Server struct {
	cfg          ServerConfig
	logger       *logger.Logger
	router       *chi.Mux
	orchestrator *app.Orchestrator
	pool         *pgxpool.Pool
	limiter      *common.RateLimiter
	tracer       trace.Tracer
}

// NewServer wires the router with middleware and all cluster routes.
func NewServer(
	cfg ServerConfig,
	orchestrator *app.Orchestrator,
	pool *pgxpool.Pool,
	log *logger.Logger,
	tracer trace.Tracer,
) *Server {
	cfg = cfg.withDefaults()

	s := &Server{
		cfg:          cfg,
		logger:       log,
		orchestrator: orchestrator,
		pool:         pool,
		limiter:      common.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		tracer:       tracer,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	s.router = r
	s.routes()
	return s
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// rateLimitMiddleware rejects requests beyond the admission limit. Health
// probes bypass it so orchestration platforms never see throttled probes.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.respondError(w, r, errs.Newf(errs.ResourceExhausted, "request rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Post("/clusters", s.handleOnboard)
			r.Get("/clusters", s.handleListClusters)
			r.Get("/clusters/{name}", s.handleGetCluster)
			r.Get("/clusters/{name}/executions", s.handleHistory)
			r.Post("/clusters/{name}/service-account", s.handleUpdateServiceAccount)
			r.Post("/clusters/{name}/validate", s.handleValidate)
			r.Post("/executions/{id}/reconcile", s.handleReconcile)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		s.respondError(w, r, errs.New(errs.Unavailable, fmt.Errorf("database not reachable: %w", err)))
		return
	}
	s.respond(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// onboardRequest is the payload for registering a cluster.
type onboardRequest struct {
	Name               string `json:"name" validate:"required"`
	Namespace          string `json:"namespace" validate:"required"`
	ServiceAccount     string `json:"service_account" validate:"required"`
	Kubeconfig         string `json:"kubeconfig,omitempty"`
	KubeconfigVaultRef string `json:"kubeconfig_vault_path,omitempty"`
	Force              bool   `json:"force,omitempty"`
}

// executionResponse is returned whenever an execution is accepted.
type executionResponse struct {
	ClusterName string `json:"cluster_name"`
	ExecutionID int64  `json:"execution_id"`
	JobType     string `json:"job_type"`
	Status      string `json:"status"`
}

func toExecutionResponse(receipt *app.ExecutionReceipt) executionResponse {
	return executionResponse{
		ClusterName: receipt.ClusterName,
		ExecutionID: receipt.ExecutionID,
		JobType:     receipt.JobType.String(),
		Status:      receipt.Status.String(),
	}
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, errs.New(errs.InvalidArgument, err))
		return
	}
	if err := errs.Check(req); err != nil {
		s.respondError(w, r, errs.New(errs.InvalidArgument, err))
		return
	}

	receipt, err := s.orchestrator.OnboardCluster(r.Context(), app.OnboardRequest{
		Name:           req.Name,
		Namespace:      req.Namespace,
		ServiceAccount: req.ServiceAccount,
		Kubeconfig:     req.Kubeconfig,
		VaultPath:      req.KubeconfigVaultRef,
		Force:          req.Force,
		Actor:          actorFrom(r),
	})
	if err != nil {
		s.respondError(w, r, mapDomainError(err))
		return
	}

	s.respond(w, r, http.StatusCreated, toExecutionResponse(receipt))
}

// serviceAccountRequest is the payload for rotating a cluster's service account.
type serviceAccountRequest struct {
	ServiceAccount string `json:"service_account" validate:"required"`
}

func (s *Server) handleUpdateServiceAccount(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req serviceAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, errs.New(errs.InvalidArgument, err))
		return
	}
	if err := errs.Check(req); err != nil {
		s.respondError(w, r, errs.New(errs.InvalidArgument, err))
		return
	}

	receipt, err := s.orchestrator.UpdateServiceAccount(r.Context(), name, req.ServiceAccount, actorFrom(r))
	if err != nil {
		s.respondError(w, r, mapDomainError(err))
		return
	}

	s.respond(w, r, http.StatusAccepted, toExecutionResponse(receipt))
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	receipt, err := s.orchestrator.ValidateCluster(r.Context(), name, actorFrom(r))
	if err != nil {
		s.respondError(w, r, mapDomainError(err))
		return
	}

	s.respond(w, r, http.StatusAccepted, toExecutionResponse(receipt))
}

// clusterResponse is the read-model view of a cluster.
type clusterResponse struct {
	Name             string           `json:"name"`
	Namespace        string           `json:"namespace"`
	ServiceAccount   string           `json:"service_account"`
	Status           string           `json:"status"`
	CredentialSource string           `json:"credential_source"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	LatestExecution  *executionDetail `json:"latest_execution,omitempty"`
}

type executionDetail struct {
	ID                int64      `json:"id"`
	JobType           string     `json:"job_type"`
	Status            string     `json:"status"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	ResultDetail      string     `json:"result_detail,omitempty"`
	TriggeredBy       string     `json:"triggered_by"`
	ReconcileAttempts int        `json:"reconcile_attempts"`
}

func toClusterResponse(view *app.ClusterStatusView) clusterResponse {
	resp := clusterResponse{
		Name:             view.Name,
		Namespace:        view.Namespace,
		ServiceAccount:   view.ServiceAccount,
		Status:           view.Status.String(),
		CredentialSource: string(view.CredentialSource),
		CreatedAt:        view.CreatedAt,
		UpdatedAt:        view.UpdatedAt,
	}
	if view.LatestExecution != nil {
		detail := toExecutionDetail(view.LatestExecution)
		resp.LatestExecution = &detail
	}
	return resp
}

func toExecutionDetail(summary *app.ExecutionSummary) executionDetail {
	return executionDetail{
		ID:                summary.ID,
		JobType:           summary.JobType.String(),
		Status:            summary.Status.String(),
		StartedAt:         summary.StartedAt,
		CompletedAt:       summary.CompletedAt,
		ResultDetail:      summary.ResultDetail,
		TriggeredBy:       summary.TriggeredBy,
		ReconcileAttempts: summary.ReconcileAttempts,
	}
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	view, err := s.orchestrator.GetStatus(r.Context(), name)
	if err != nil {
		s.respondError(w, r, mapDomainError(err))
		return
	}

	s.respond(w, r, http.StatusOK, toClusterResponse(view))
}

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	views, err := s.orchestrator.ListStatuses(r.Context())
	if err != nil {
		s.respondError(w, r, mapDomainError(err))
		return
	}

	clusters := make([]clusterResponse, len(views))
	for i, view := range views {
		clusters[i] = toClusterResponse(view)
	}
	s.respond(w, r, http.StatusOK, map[string]any{"clusters": clusters})
}

const defaultHistoryLimit = 50

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.respondError(w, r, errs.Newf(errs.InvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	summaries, err := s.orchestrator.History(r.Context(), name, limit)
	if err != nil {
		s.respondError(w, r, mapDomainError(err))
		return
	}

	executions := make([]executionDetail, len(summaries))
	for i, summary := range summaries {
		executions[i] = toExecutionDetail(summary)
	}
	s.respond(w, r, http.StatusOK, map[string]any{"executions": executions})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	executionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, r, errs.Newf(errs.InvalidArgument, "execution id must be an integer"))
		return
	}

	exec, err := s.orchestrator.Reconcile(r.Context(), executionID, actorFrom(r))
	if err != nil {
		s.respondError(w, r, mapDomainError(err))
		return
	}

	detail := executionDetail{
		ID:                exec.ID(),
		JobType:           exec.JobType().String(),
		Status:            exec.Status().String(),
		StartedAt:         exec.StartedAt(),
		ResultDetail:      exec.ResultDetail(),
		TriggeredBy:       exec.TriggeredBy(),
		ReconcileAttempts: exec.ReconcileAttempts(),
	}
	if completedAt, ok := exec.CompletedAt(); ok {
		detail.CompletedAt = &completedAt
	}
	s.respond(w, r, http.StatusOK, detail)
}

// actorFrom derives the audit actor identity from the request. There is no
// authentication layer yet; callers self-identify through a header.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Requested-By"); actor != "" {
		return "api:" + actor
	}
	return "api:anonymous"
}

// mapDomainError classifies orchestrator errors for the response writer.
func mapDomainError(err error) *errs.Error {
	switch {
	case errors.Is(err, domain.ErrClusterNotFound),
		errors.Is(err, domain.ErrExecutionNotFound):
		return errs.New(errs.NotFound, err)
	case errors.Is(err, domain.ErrClusterExists):
		return errs.New(errs.AlreadyExists, err)
	case errors.Is(err, domain.ErrExecutionInProgress):
		return errs.New(errs.Aborted, err)
	case errors.Is(err, domain.ErrNotReconcilable):
		return errs.New(errs.FailedPrecondition, err)
	case domain.IsValidationError(err):
		return errs.New(errs.InvalidArgument, err)
	default:
		return errs.New(errs.Internal, err)
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Fields any    `json:"fields,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error(r.Context(), "failed to encode response", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, appErr *errs.Error) {
	resp := errorResponse{Error: appErr.Message, Code: appErr.Code.String()}
	s.respond(w, r, appErr.HTTPStatus(), resp)
}

// Handler exposes the router for embedding in an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
		ErrorLog:     logger.NewStdLogger(s.logger, logger.LevelError),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "failed to shutdown server", "err", err)
		}
	}()

	s.logger.Info(ctx, "starting server", "addr", server.Addr)
	return server.ListenAndServe()
}
