package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	vault "github.com/hashicorp/vault/api"
	"github.com/jackc/pgx/v5/pgxpool"
	otelapi "go.opentelemetry.io/otel"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/cluster-armada/internal/api"
	"github.com/ahrav/cluster-armada/internal/api/debug"
	appIntegration "github.com/ahrav/cluster-armada/internal/app/integration"
	"github.com/ahrav/cluster-armada/internal/config"
	"github.com/ahrav/cluster-armada/internal/config/fileloader"
	"github.com/ahrav/cluster-armada/internal/config/viperloader"
	"github.com/ahrav/cluster-armada/internal/domain/events"
	domain "github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/internal/infra/credentials"
	"github.com/ahrav/cluster-armada/internal/infra/eventbus/kafka"
	"github.com/ahrav/cluster-armada/internal/infra/runner"
	integrationStore "github.com/ahrav/cluster-armada/internal/infra/storage/integration/postgres"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
	"github.com/ahrav/cluster-armada/pkg/common/otel"
)

var build = "develop"

const serviceType = "cluster-orchestrator"

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			// Add any error-specific attributes.
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			// Output the error event with valid JSON details.
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("CLUSTER-ORCHESTRATOR-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS
	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Configuration
	// An explicit CONFIG_PATH reads exactly that file; otherwise viper merges
	// the default search locations with ORCHESTRATOR_ environment overrides.
	var loader config.Loader = viperloader.NewLoader("")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		loader = fileloader.NewFileLoader(path)
	}
	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	// -------------------------------------------------------------------------
	// Database Support
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating db pool: %w", err)
	}
	defer pool.Close()

	// -------------------------------------------------------------------------
	// Start Tracing Support
	log.Info(ctx, "startup", "status", "initializing tracing support")

	traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      cfg.Otel.ServiceName,
		ExporterEndpoint: cfg.Otel.ExporterEndpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
			"/debug":        {},
		},
		Probability: cfg.Otel.SamplingRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"k8s.pod.name":     os.Getenv("POD_NAME"),
			"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
			"k8s.container.id": hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer teardown(ctx)

	tracer := traceProvider.Tracer(cfg.Otel.ServiceName)

	// -------------------------------------------------------------------------
	// Start Debug Service
	go func() {
		log.Info(ctx, "startup", "status", "debug router started", "host", cfg.API.DebugHost)

		if err := http.ListenAndServe(cfg.API.DebugHost, debug.Mux()); err != nil {
			log.Error(ctx, "shutdown", "status", "debug router closed", "host", cfg.API.DebugHost, "msg", err)
		}
	}()

	// -------------------------------------------------------------------------
	// Event Bus
	log.Info(ctx, "startup", "status", "initializing event bus")

	metrics, err := api.NewAPIMetrics(otelapi.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	bus, err := kafka.ConnectWithRetry(&kafka.Config{
		Brokers:              cfg.Kafka.Brokers,
		ClusterEventsTopic:   cfg.Kafka.ClusterEventsTopic,
		ExecutionEventsTopic: cfg.Kafka.ExecutionEventsTopic,
		GroupID:              cfg.Kafka.GroupID,
		ClientID:             hostname,
		ServiceType:          serviceType,
	}, log, metrics, tracer)
	if err != nil {
		return fmt.Errorf("connecting event bus: %w", err)
	}
	defer bus.Close()

	publisher := kafka.NewDomainEventPublisher(bus, events.NewDomainEventTranslator())

	// -------------------------------------------------------------------------
	// Credential Resolution
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Vault.Address

	vaultClient, err := vault.NewClient(vaultCfg)
	if err != nil {
		return fmt.Errorf("creating vault client: %w", err)
	}
	if cfg.Vault.Token != "" {
		vaultClient.SetToken(cfg.Vault.Token)
	}
	resolver := credentials.NewResolver(vaultClient, cfg.Vault.Mount, log, tracer)

	// -------------------------------------------------------------------------
	// Execution Engine
	playbooks := make(map[domain.JobType]string, len(cfg.Runner.Playbooks))
	for jobType, playbook := range cfg.Runner.Playbooks {
		playbooks[domain.ParseJobType(jobType)] = playbook
	}
	engine := runner.NewClient(runner.Config{
		BaseURL:      cfg.Runner.BaseURL,
		Token:        cfg.Runner.Token,
		PollInterval: cfg.Runner.PollInterval,
	}, playbooks, log, tracer)

	// -------------------------------------------------------------------------
	// Orchestration
	clusterStore := integrationStore.NewClusterStore(pool, tracer)
	executionStore := integrationStore.NewExecutionStore(pool, tracer)
	auditStore := integrationStore.NewAuditStore(pool, tracer)

	orchestrator := appIntegration.NewOrchestrator(
		appIntegration.OrchestratorConfig{
			AwaitTimeout:         cfg.Orchestrator.AwaitTimeout,
			MaxReconcileAttempts: cfg.Orchestrator.MaxReconcileAttempts,
		},
		clusterStore,
		executionStore,
		auditStore,
		resolver,
		engine,
		publisher,
		log,
		tracer,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	reconciler := appIntegration.NewReconciler(
		appIntegration.ReconcilerConfig{
			Interval:  cfg.Reconciler.Interval,
			BatchSize: cfg.Reconciler.BatchSize,
		},
		orchestrator,
		executionStore,
		log,
		tracer,
	)
	go func() {
		if err := reconciler.Run(runCtx); err != nil && err != context.Canceled {
			log.Error(runCtx, "reconciler stopped", "err", err)
		}
	}()

	// Timeout events trigger an immediate reconciliation poll; the periodic
	// sweep remains the backstop for events lost in transit.
	if err := bus.Subscribe(runCtx, []events.EventType{events.EventTypeExecutionTimedOut},
		appIntegration.TimeoutReconcileHandler(orchestrator, log)); err != nil {
		return fmt.Errorf("subscribing to timeout events: %w", err)
	}

	// -------------------------------------------------------------------------
	// Start API Service
	log.Info(ctx, "startup", "status", "initializing API support")

	server := api.NewServer(api.ServerConfig{
		Host:              cfg.API.Host,
		Port:              cfg.API.Port,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
	}, orchestrator, pool, log, tracer)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start(runCtx)
	}()

	// -------------------------------------------------------------------------
	// Shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info(ctx, "shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info(ctx, "shutdown", "status", "shutdown complete", "signal", sig)

		cancel()
		if err := <-serverErrors; err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}
