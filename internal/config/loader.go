package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/plumblinelabs/takeoffd/internal/pipeline"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration from the default file path and environment.
// Shorthand for LoadWithFile("").
func Load() (*Config, error) {
	return LoadWithFile("")
}

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, POLICY_DIR, etc.)
//  2. YAML config file (~/.config/takeoffd/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path ~/.config/takeoffd/config.yaml is used. A missing file is
// not an error; defaults and environment variables still apply.
//
// # Security Considerations
//
// File permissions: the configuration file must have 0600 or 0400
// permissions. World- or group-readable files are rejected because the
// file may carry a NATS token or extraction API key.
//
// Path validation: only configuration files under ~/.config/takeoffd/ or
// /etc/takeoffd/ can be loaded. Paths outside these directories are
// rejected, symlinks are resolved first.
//
// File size: files larger than 1MB are rejected.
//
// # Environment Variable Mapping
//
// Environment variables are split on the first underscore into a section
// and a field name:
//
//	SERVER_HTTP_PORT   -> server.http_port
//	PIPELINE_MAX_RETRIES -> pipeline.max_retries
//	EXTRACT_BASE_URL   -> extract.base_url
//	NATS_URL           -> nats.url
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "takeoffd", "config.yaml")
	}

	// Path validation runs even when the file does not exist.
	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a
		// TOCTOU race between the permission check and the read.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Environment variables are uppercased with underscore separators.
	// The first underscore separates the section from the field name,
	// later underscores stay in the field name:
	//
	//	SNAPSHOT_BACKEND        -> snapshot.backend
	//	OBSERVABILITY_SERVICE_NAME -> observability.service_name
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates ~/.config/takeoffd with 0700 permissions if it
// does not exist yet.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "takeoffd")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks that path is in an allowed directory. Runs
// even if the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link inside an allowed directory cannot
	// point elsewhere. Paths that do not exist yet validate as-is.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "takeoffd"),
		"/etc/takeoffd",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/takeoffd/ or /etc/takeoffd/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size through
// FileInfo from an already-opened descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	// 0600 or 0400 only. Skipped on Windows, which has no Unix
	// permission bits.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "takeoffd"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}

	def := pipeline.DefaultConfig()
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = def.MaxRetries
	}
	if cfg.Pipeline.StageTimeout == 0 {
		cfg.Pipeline.StageTimeout = def.StageTimeout
	}
	if cfg.Pipeline.BackoffBase == 0 {
		cfg.Pipeline.BackoffBase = def.BackoffBase
	}
	if cfg.Pipeline.BackoffCap == 0 {
		cfg.Pipeline.BackoffCap = def.BackoffCap
	}

	cfg.Extract.ApplyDefaults()

	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = "file"
	}
}
