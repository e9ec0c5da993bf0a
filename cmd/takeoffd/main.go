// Takeoffd is the provenance-ledger daemon for construction plan takeoff.
//
// The daemon runs staged inference pipelines over plan documents and records
// every evidence item, assumption, inference, decision and review flag in an
// append-only ledger per run. Ledgers are persisted as snapshots and served
// back over HTTP.
//
// Configuration is loaded from ~/.config/takeoffd/config.yaml and overridden
// by environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	takeoffd
//
//	# Explicit config file
//	takeoffd -config /etc/takeoffd/config.yaml
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9191 POLICY_DIR=/etc/takeoffd/policies takeoffd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/plumblinelabs/takeoffd/internal/audit"
	"github.com/plumblinelabs/takeoffd/internal/config"
	"github.com/plumblinelabs/takeoffd/internal/extract"
	"github.com/plumblinelabs/takeoffd/internal/featureflag"
	"github.com/plumblinelabs/takeoffd/internal/ledger"
	"github.com/plumblinelabs/takeoffd/internal/logging"
	"github.com/plumblinelabs/takeoffd/internal/pipeline"
	"github.com/plumblinelabs/takeoffd/internal/policy"
	"github.com/plumblinelabs/takeoffd/internal/server"
	"github.com/plumblinelabs/takeoffd/internal/snapshot"
	"github.com/plumblinelabs/takeoffd/internal/stages"
	"github.com/plumblinelabs/takeoffd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/takeoffd/config.yaml)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  takeoffd           Start the takeoffd daemon\n")
			fmt.Fprintf(os.Stderr, "  takeoffd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Daemon error: %v", err)
	}

	log.Println("Shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("takeoffd by Plumbline Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the takeoffd daemon and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize the logger, then telemetry
//  3. Connect infrastructure (NATS audit trail, policy files, snapshot store)
//  4. Assemble the run service over the standard pipeline
//  5. Start the HTTP server
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()
	zl := logger.Underlying()

	logger.Info(ctx, "Starting takeoffd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("snapshot_backend", cfg.Snapshot.Backend),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			zl.Warn("Telemetry shutdown reported errors", zap.Error(err))
		}
	}()
	if health := tel.Health(); health.Degraded {
		zl.Warn("Telemetry degraded", zap.String("reason", health.Reason))
	}

	deps, err := initDependencies(ctx, cfg, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info(ctx, "Dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Bool("policy_watch", deps.watcher != nil),
		zap.Strings("policies", deps.resolver.Known()),
		zap.Any("feature_flags", deps.flags.All()))

	var observer ledger.Observer
	if deps.trail != nil {
		observer = deps.trail
	}
	runs := server.NewRunService(server.RunDeps{
		Executor: pipeline.NewExecutor(cfg.Pipeline, zl),
		Resolver: deps.resolver,
		Stages: stages.Deps{
			Extractor: deps.extractor,
			Flags:     deps.flags,
			Region:    cfg.Policy.Region,
			Logger:    zl,
		},
		Store:    deps.store,
		Observer: observer,
		Logger:   zl,
	})

	srv := server.NewServer(cfg, runs, zl)

	logger.Info(ctx, "Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("runs_endpoint", "/v1/runs"),
		zap.String("metrics_endpoint", "/metrics"))

	// Start server (blocks until context cancellation)
	return srv.Start(ctx)
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	flags     *featureflag.Service
	natsConn  *nats.Conn
	trail     *audit.Trail
	resolver  *policy.Resolver
	watcher   *policy.Watcher
	store     snapshot.Store
	extractor extract.Client
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
}

// initLogger initializes the structured logger from the logging section.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	return logging.NewLogger(logCfg, nil)
}

// telemetryConfig maps the observability section onto the telemetry config.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Observability.EnableTelemetry
	tcfg.ServiceName = cfg.Observability.ServiceName
	tcfg.Endpoint = cfg.Observability.Endpoint
	tcfg.ServiceVersion = version
	return tcfg
}

// initDependencies initializes all infrastructure dependencies.
//
// This function:
//  1. Resolves feature flags from defaults and environment
//  2. Connects to NATS for the audit trail (when configured)
//  3. Loads policy files and starts the policy watcher (when configured)
//  4. Opens the snapshot store
//  5. Creates the extraction client
func initDependencies(ctx context.Context, cfg *config.Config, zl *zap.Logger) (*dependencies, error) {
	flags := featureflag.New(zl)
	if !flags.Enabled(featureflag.UseNewLedger) {
		// The legacy ledger this flag selected against no longer exists.
		zl.Warn("useNewLedger=false is no longer supported; forcing the flag on")
		flags.Set(featureflag.UseNewLedger, true)
	}

	var nc *nats.Conn
	var trail *audit.Trail
	if cfg.NATS.URL != "" {
		opts := []nats.Option{
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1 * time.Second),
		}
		if cfg.NATS.Token.IsSet() {
			opts = append(opts, nats.Token(cfg.NATS.Token.Value()))
		}
		var err error
		nc, err = nats.Connect(cfg.NATS.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		trail = audit.NewTrail(nc, flags, zl)
		zl.Info("Connected to NATS", zap.String("url", cfg.NATS.URL))
	} else {
		zl.Info("Audit trail disabled: no NATS URL configured")
	}

	resolver := policy.NewResolver(zl)
	var watcher *policy.Watcher
	if cfg.Policy.Dir != "" {
		if _, err := os.Stat(cfg.Policy.Dir); err != nil {
			closeConn(nc)
			return nil, fmt.Errorf("policy directory: %w", err)
		}
		if cfg.Policy.Watch {
			var err error
			watcher, err = policy.NewWatcher(resolver, cfg.Policy.Dir, zl)
			if err != nil {
				closeConn(nc)
				return nil, err
			}
			if err := watcher.Start(ctx); err != nil {
				closeConn(nc)
				return nil, err
			}
			zl.Info("Policy watcher started", zap.String("dir", cfg.Policy.Dir))
		} else if err := resolver.LoadPolicyDir(cfg.Policy.Dir); err != nil {
			// Bad files fall back to the default policy; the daemon
			// still serves runs.
			zl.Warn("Policy directory load reported errors", zap.Error(err))
		}
	}

	var store snapshot.Store
	switch cfg.Snapshot.Backend {
	case "memory":
		store = snapshot.NewMemoryStore()
		zl.Info("Using in-memory snapshot store; ledgers will not survive a restart")
	default: // "file", validated at load time
		fileStore, err := snapshot.NewFileStore(cfg.Snapshot.Path)
		if err != nil {
			closeConn(nc)
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		store = fileStore
		zl.Info("Snapshot store ready", zap.String("path", fileStore.BasePath()))
	}

	var extractor extract.Client
	if cfg.Extract.BaseURL != "" {
		client, err := extract.NewHTTPClient(cfg.Extract, zl)
		if err != nil {
			closeConn(nc)
			return nil, fmt.Errorf("failed to create extraction client: %w", err)
		}
		extractor = client
		zl.Info("Extraction client ready", zap.String("base_url", cfg.Extract.BaseURL))
	} else {
		extractor = extract.NewStubClient()
		zl.Warn("Extraction service not configured; using the built-in stub extractor")
	}

	return &dependencies{
		flags:     flags,
		natsConn:  nc,
		trail:     trail,
		resolver:  resolver,
		watcher:   watcher,
		store:     store,
		extractor: extractor,
	}, nil
}

// closeConn closes a NATS connection if one was established.
func closeConn(nc *nats.Conn) {
	if nc != nil {
		nc.Close()
	}
}
