package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/relaystream/internal/bytesize"
	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/metadata/gormstore"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/stream"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyProfilingDefaults(&cfg.Profiling)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	applyMetricsDefaults(&cfg.Metrics)
	cfg.Server.ApplyDefaults()
	applyAdminDefaults(&cfg.Admin)
	applyCacheDefaults(&cfg.Cache)
	applyPoolDefaults(&cfg.Pool)
	applyStreamDefaults(&cfg.Stream)
	applyUpstreamDefaults(&cfg.Upstream)
	cfg.Database.ApplyDefaults()
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
}

// applyCacheDefaults keeps at least one chunk of capacity so a configured
// cache can always hold the chunk being served.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}
	if cfg.Size == 0 {
		cfg.Size = 16 * bytesize.GiB
	}
	if cfg.Size < chunk.Size {
		cfg.Size = chunk.Size
	}
	if cfg.Type == "badger" && cfg.Path == "" {
		cfg.Path = defaultCacheDir()
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 5 * time.Minute
	}
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "relaystream", "chunks")
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "relaystream", "chunks")
	}
	return filepath.Join(os.TempDir(), "relaystream-chunks")
}

func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.Policy == "" {
		cfg.Policy = string(pool.PolicyLeastLoaded)
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = pool.DefaultCooldown
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = pool.DefaultFailureThreshold
	}
}

func applyStreamDefaults(cfg *StreamConfig) {
	d := stream.DefaultConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = d.RetryDelay
	}
	if cfg.WorkerWaitAttempts == 0 {
		cfg.WorkerWaitAttempts = d.WorkerWaitAttempts
	}
	if cfg.WorkerWaitDelay == 0 {
		cfg.WorkerWaitDelay = d.WorkerWaitDelay
	}
	if cfg.MaxConcurrentFetches == 0 {
		cfg.MaxConcurrentFetches = d.MaxConcurrentFetches
	}
	if cfg.MetadataCacheSize == 0 {
		cfg.MetadataCacheSize = d.MetadataCacheSize
	}
	if cfg.MetadataCacheTTL == 0 {
		cfg.MetadataCacheTTL = d.MetadataCacheTTL
	}
}

func applyUpstreamDefaults(cfg *UpstreamConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Type == "memory" && len(cfg.Workers) == 0 {
		cfg.Workers = []WorkerConfig{{Name: "local"}}
	}
	if cfg.Type == "s3" && cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
}

// ToEngineConfig converts the stream section for stream.New.
func (c StreamConfig) ToEngineConfig() stream.Config {
	return stream.Config{
		MaxAttempts:          c.MaxAttempts,
		RetryDelay:           c.RetryDelay,
		WorkerWaitAttempts:   c.WorkerWaitAttempts,
		WorkerWaitDelay:      c.WorkerWaitDelay,
		MaxConcurrentFetches: c.MaxConcurrentFetches,
		MetadataCacheSize:    c.MetadataCacheSize,
		MetadataCacheTTL:     c.MetadataCacheTTL,
	}
}

// ToPoolConfig converts the pool section for pool.New.
func (c PoolConfig) ToPoolConfig() pool.Config {
	return pool.Config{
		Policy:           pool.Policy(c.Policy),
		Cooldown:         c.Cooldown,
		FailureThreshold: c.FailureThreshold,
	}
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: gormstore.Config{
			Type: gormstore.DatabaseTypeSQLite,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
