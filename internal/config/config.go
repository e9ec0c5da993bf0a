// Package config provides configuration loading for takeoffd.
//
// Configuration is read from an optional YAML file and overridden by
// environment variables. Sections cover the HTTP server, logging,
// observability, the pipeline executor, the extraction client, policy
// loading, snapshot storage and NATS.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
)

// Config holds the complete takeoffd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
	Pipeline      pipeline.Config     `koanf:"pipeline"`
	Extract       extract.Config      `koanf:"extract"`
	Policy        PolicyConfig        `koanf:"policy"`
	Snapshot      SnapshotConfig      `koanf:"snapshot"`
	NATS          NATSConfig          `koanf:"nats"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects the log level and encoder. Level accepts the
// zapcore level names plus "trace".
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
}

// PolicyConfig controls policy file loading. Dir is scanned for
// .yaml/.yml policy files at startup and watched for edits when Watch
// is set; an empty Dir disables both. Region selects the regional
// assumption defaults, empty means national.
type PolicyConfig struct {
	Dir    string `koanf:"dir"`
	Watch  bool   `koanf:"watch"`
	Region string `koanf:"region"`
}

// SnapshotConfig selects the ledger snapshot backend. Backend is
// "file" or "memory"; Path overrides the file backend's base directory.
type SnapshotConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// NATSConfig holds the audit trail connection. An empty URL disables
// publishing entirely.
type NATSConfig struct {
	URL   string `koanf:"url"`
	Token Secret `koanf:"token"`
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Log level or format is unknown
//   - Service name or endpoint is empty while telemetry is enabled
//   - Pipeline retry/backoff settings are inconsistent
//   - Snapshot backend is unknown
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	// "trace" is below zapcore's named range; internal/logging owns the
	// mapping, validation only needs to admit the name.
	if c.Logging.Level != "trace" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
		}
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Observability.EnableTelemetry {
		if c.Observability.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if c.Observability.Endpoint == "" {
			return errors.New("endpoint required when telemetry is enabled")
		}
	}

	if c.Pipeline.MaxRetries < 1 {
		return fmt.Errorf("pipeline max_retries must be >= 1, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.StageTimeout < 0 {
		return errors.New("pipeline stage_timeout cannot be negative")
	}
	if c.Pipeline.BackoffBase <= 0 {
		return errors.New("pipeline backoff_base must be positive")
	}
	if c.Pipeline.BackoffCap < c.Pipeline.BackoffBase {
		return fmt.Errorf("pipeline backoff_cap %s is below backoff_base %s",
			c.Pipeline.BackoffCap, c.Pipeline.BackoffBase)
	}

	if c.Snapshot.Backend != "file" && c.Snapshot.Backend != "memory" {
		return fmt.Errorf("snapshot backend must be 'file' or 'memory', got %q", c.Snapshot.Backend)
	}

	return nil
}
