package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/relaystream/internal/logger"
	"github.com/marmos91/relaystream/internal/telemetry"
	"github.com/marmos91/relaystream/pkg/api"
	"github.com/marmos91/relaystream/pkg/api/auth"
	"github.com/marmos91/relaystream/pkg/api/handlers"
	"github.com/marmos91/relaystream/pkg/config"
	"github.com/marmos91/relaystream/pkg/metrics"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/stream"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/relaystream/pkg/metrics/prometheus"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relaystream server",
	Long: `Start the relaystream server in the foreground with the specified
configuration. Run it under a process supervisor for background operation.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/relaystream/config.yaml.

The logging level is reloaded when the configuration file changes.

Examples:
  # Start with the default config
  relaystream start

  # Start with custom config file
  relaystream start --config /etc/relaystream/config.yaml

  # Start with environment variable overrides
  RELAYSTREAM_LOGGING_LEVEL=DEBUG relaystream start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "relaystream",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Profiling.Enabled,
		ServiceName:    "relaystream",
		ServiceVersion: Version,
		Endpoint:       cfg.Profiling.Endpoint,
		ProfileTypes:   cfg.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("relaystream starting", "version", Version, "commit", Commit)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Profiling.Endpoint, "profile_types", cfg.Profiling.ProfileTypes)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	chunkCache, err := config.CreateCache(ctx, cfg.Cache, metrics.NewCacheMetrics(cfg.Cache.Type))
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer func() {
		if err := chunkCache.Close(); err != nil {
			logger.Error("cache close error", logger.Err(err))
		}
	}()
	logger.Info("Chunk cache ready",
		"type", cfg.Cache.Type,
		"path", cfg.Cache.Path,
		"capacity", humanize.IBytes(uint64(cfg.Cache.Size)))

	workers, err := config.CreateWorkers(ctx, cfg.Upstream)
	if err != nil {
		return fmt.Errorf("failed to create upstream workers: %w", err)
	}

	workerPool, err := pool.New(workers, cfg.Pool.ToPoolConfig(), pool.WithMetrics(metrics.NewPoolMetrics()))
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	logger.Info("Worker pool ready",
		"upstream", cfg.Upstream.Type,
		"workers", len(workers),
		"policy", cfg.Pool.Policy,
		"cooldown", cfg.Pool.Cooldown)

	engine, err := stream.New(chunkCache, workerPool, cfg.Stream.ToEngineConfig(), stream.WithMetrics(metrics.NewStreamMetrics()))
	if err != nil {
		return fmt.Errorf("failed to create streaming engine: %w", err)
	}

	records, err := config.CreateMetadataStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open metadata database: %w", err)
	}
	defer func() {
		if err := records.Close(); err != nil {
			logger.Error("metadata close error", logger.Err(err))
		}
	}()

	var jwtService *auth.JWTService
	if cfg.Admin.Enabled {
		jwtService, err = auth.NewJWTService(auth.JWTConfig{
			Secret:        cfg.Admin.JWTSecret,
			TokenDuration: cfg.Admin.TokenDuration,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize admin auth: %w", err)
		}
		logger.Info("Admin API enabled", "path", "/api/v1")
	}

	deps := api.Deps{
		Engine:      engine,
		Cache:       chunkCache,
		Pool:        workerPool,
		Metadata:    records,
		Upstream:    handlers.CheckFunc(config.UpstreamHealth(workers)),
		JWT:         jwtService,
		HTTPMetrics: metrics.NewHTTPMetrics(),
	}

	if path := configFileInUse(); path != "" {
		if err := config.Watch(path, func(next *config.Config) {
			if next.Logging.Level != logger.Level() {
				logger.SetLevel(next.Logging.Level)
				logger.Info("Log level changed", "level", next.Logging.Level)
			}
		}); err != nil {
			logger.Warn("Configuration watch disabled", logger.Err(err))
		}
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	g, gctx := errgroup.WithContext(ctx)

	apiServer := api.NewServer(cfg.Server, deps)
	g.Go(func() error { return apiServer.Start(gctx) })

	if cfg.Metrics.Enabled {
		metricsServer := api.NewMetricsServer(cfg.Metrics.Port)
		g.Go(func() error { return metricsServer.Start(gctx) })
	}

	logger.Info("Server is running. Press Ctrl+C to stop.", "port", cfg.Server.Port)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		select {
		case err := <-done:
			if err != nil {
				logger.Error("Server shutdown error", logger.Err(err))
				return err
			}
		case <-time.After(cfg.ShutdownTimeout):
			return fmt.Errorf("shutdown timed out after %s", cfg.ShutdownTimeout)
		}
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// configFileInUse returns the file Load read, or "" when running on
// defaults.
func configFileInUse() string {
	if f := GetConfigFile(); f != "" {
		return f
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return ""
}
