// Package viperloader loads service configuration with viper, layering file
// contents under environment variable overrides.
package viperloader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ahrav/cluster-armada/internal/config"
)

const envPrefix = "ORCHESTRATOR"

// Loader loads configuration through viper. Environment variables prefixed
// with ORCHESTRATOR_ override file values, so ORCHESTRATOR_DATABASE_DSN
// overrides database.dsn.
type Loader struct {
	// path is an optional explicit config file path. When empty, viper
	// searches the working directory and /etc/cluster-armada.
	path string
}

// NewLoader creates a viper-backed loader. An empty path enables the default
// search locations.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load reads, merges, and validates the configuration.
func (l *Loader) Load(ctx context.Context) (*config.Config, error) {
	v := viper.New()

	if l.path != "" {
		v.SetConfigFile(l.path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cluster-armada")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when everything arrives via environment.
		var notFound viper.ConfigFileNotFoundError
		if l.path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
