// Package config defines the orchestrator service configuration and the
// loading abstractions used to populate it.
package config

import (
	"fmt"
	"time"
)

// Config represents the top-level service configuration.
type Config struct {
	API          APIConfig          `yaml:"api" mapstructure:"api"`
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Vault        VaultConfig        `yaml:"vault" mapstructure:"vault"`
	Runner       RunnerConfig       `yaml:"runner" mapstructure:"runner"`
	Kafka        KafkaConfig        `yaml:"kafka" mapstructure:"kafka"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Reconciler   ReconcilerConfig   `yaml:"reconciler" mapstructure:"reconciler"`
	Otel         OtelConfig         `yaml:"otel" mapstructure:"otel"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host              string  `yaml:"host" mapstructure:"host"`
	Port              string  `yaml:"port" mapstructure:"port"`
	DebugHost         string  `yaml:"debug_host" mapstructure:"debug_host"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn" mapstructure:"dsn"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// VaultConfig holds secret store settings for credential resolution.
type VaultConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
	Token   string `yaml:"token" mapstructure:"token"`

	// Mount is the KV v2 mount holding cluster kubeconfigs.
	Mount string `yaml:"mount" mapstructure:"mount"`
}

// RunnerConfig holds automation runner settings.
type RunnerConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	Token        string        `yaml:"token" mapstructure:"token"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// Playbooks maps job types to runner playbook names. Unmapped job types
	// are rejected before submission.
	Playbooks map[string]string `yaml:"playbooks" mapstructure:"playbooks"`
}

// KafkaConfig holds event bus settings.
type KafkaConfig struct {
	Brokers              []string `yaml:"brokers" mapstructure:"brokers"`
	ClusterEventsTopic   string   `yaml:"cluster_events_topic" mapstructure:"cluster_events_topic"`
	ExecutionEventsTopic string   `yaml:"execution_events_topic" mapstructure:"execution_events_topic"`
	GroupID              string   `yaml:"group_id" mapstructure:"group_id"`
}

// OrchestratorConfig holds execution handling settings.
type OrchestratorConfig struct {
	AwaitTimeout         time.Duration `yaml:"await_timeout" mapstructure:"await_timeout"`
	MaxReconcileAttempts int           `yaml:"max_reconcile_attempts" mapstructure:"max_reconcile_attempts"`
}

// ReconcilerConfig holds background sweep settings.
type ReconcilerConfig struct {
	Interval  time.Duration `yaml:"interval" mapstructure:"interval"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
}

// OtelConfig holds telemetry export settings.
type OtelConfig struct {
	ServiceName      string  `yaml:"service_name" mapstructure:"service_name"`
	ExporterEndpoint string  `yaml:"exporter_endpoint" mapstructure:"exporter_endpoint"`
	SamplingRatio    float64 `yaml:"sampling_ratio" mapstructure:"sampling_ratio"`
}

// DefaultPlaybooks is the playbook catalog used when none is configured.
var DefaultPlaybooks = map[string]string{
	"CREATE":                 "create_cluster.yml",
	"UPDATE_SERVICE_ACCOUNT": "update_service_account.yml",
	"VALIDATE":               "validate_cluster.yml",
}

// ApplyDefaults fills unset fields with sane defaults.
func (c *Config) ApplyDefaults() {
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == "" {
		c.API.Port = "6000"
	}
	if c.API.DebugHost == "" {
		c.API.DebugHost = "0.0.0.0:6010"
	}
	if c.API.RequestsPerSecond <= 0 {
		c.API.RequestsPerSecond = 50
	}
	if c.API.Burst <= 0 {
		c.API.Burst = 100
	}
	if c.Database.MinConns <= 0 {
		c.Database.MinConns = 5
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 25
	}
	if c.Vault.Mount == "" {
		c.Vault.Mount = "secret"
	}
	if c.Runner.PollInterval <= 0 {
		c.Runner.PollInterval = 2 * time.Second
	}
	if len(c.Runner.Playbooks) == 0 {
		c.Runner.Playbooks = DefaultPlaybooks
	}
	if c.Kafka.ClusterEventsTopic == "" {
		c.Kafka.ClusterEventsTopic = "cluster-events"
	}
	if c.Kafka.ExecutionEventsTopic == "" {
		c.Kafka.ExecutionEventsTopic = "execution-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "cluster-orchestrator"
	}
	if c.Orchestrator.AwaitTimeout <= 0 {
		c.Orchestrator.AwaitTimeout = 10 * time.Minute
	}
	if c.Orchestrator.MaxReconcileAttempts <= 0 {
		c.Orchestrator.MaxReconcileAttempts = 3
	}
	if c.Reconciler.Interval <= 0 {
		c.Reconciler.Interval = 30 * time.Second
	}
	if c.Reconciler.BatchSize <= 0 {
		c.Reconciler.BatchSize = 50
	}
	if c.Otel.ServiceName == "" {
		c.Otel.ServiceName = "cluster-orchestrator"
	}
	if c.Otel.SamplingRatio <= 0 {
		c.Otel.SamplingRatio = 0.05
	}
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Vault.Address == "" {
		return fmt.Errorf("vault.address is required")
	}
	if c.Runner.BaseURL == "" {
		return fmt.Errorf("runner.base_url is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	return nil
}
