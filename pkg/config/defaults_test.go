package config

import (
	"testing"
	"time"

	"github.com/marmos91/relaystream/internal/bytesize"
	"github.com/marmos91/relaystream/pkg/chunk"
	"github.com/marmos91/relaystream/pkg/pool"
	"github.com/marmos91/relaystream/pkg/stream"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" || cfg.Logging.Output != "stdout" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" || cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
	if len(cfg.Profiling.ProfileTypes) != 3 {
		t.Errorf("Expected 3 default profile types, got %v", cfg.Profiling.ProfileTypes)
	}
	if cfg.Cache.Type != "badger" || cfg.Cache.Size != 16*bytesize.GiB {
		t.Errorf("Unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Cache.Path != "/tmp/xdg-cache/relaystream/chunks" {
		t.Errorf("Unexpected cache path %q", cfg.Cache.Path)
	}
	if cfg.Pool.Cooldown != 60*time.Second || cfg.Pool.FailureThreshold != 3 {
		t.Errorf("Unexpected pool defaults: %+v", cfg.Pool)
	}
	if cfg.Admin.TokenDuration != 24*time.Hour {
		t.Errorf("Unexpected token duration %v", cfg.Admin.TokenDuration)
	}
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected metrics port 9090, got %d", cfg.Metrics.Port)
	}
	if cfg.Upstream.Type != "memory" {
		t.Errorf("Expected memory upstream, got %q", cfg.Upstream.Type)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Format: "json"},
		Cache:   CacheConfig{Type: "memory", Size: 3 * bytesize.GiB},
		Stream:  StreamConfig{MaxAttempts: 7, RetryDelay: 5 * time.Second},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" || cfg.Logging.Format != "json" {
		t.Errorf("Logging overwritten: %+v", cfg.Logging)
	}
	if cfg.Cache.Size != 3*bytesize.GiB || cfg.Cache.Path != "" {
		t.Errorf("Cache overwritten: %+v", cfg.Cache)
	}
	if cfg.Stream.MaxAttempts != 7 || cfg.Stream.RetryDelay != 5*time.Second {
		t.Errorf("Stream overwritten: %+v", cfg.Stream)
	}
}

func TestApplyDefaults_CacheHoldsAtLeastOneChunk(t *testing.T) {
	cfg := &Config{Cache: CacheConfig{Type: "memory", Size: 1024}}
	ApplyDefaults(cfg)

	if cfg.Cache.Size != chunk.Size {
		t.Errorf("Expected size raised to one chunk, got %d", cfg.Cache.Size)
	}
}

func TestConversions(t *testing.T) {
	cfg := GetDefaultConfig()

	if got := cfg.Stream.ToEngineConfig(); got != stream.DefaultConfig() {
		t.Errorf("Engine config %+v differs from engine defaults %+v", got, stream.DefaultConfig())
	}

	if wait := cfg.Stream.MaxWorkerWait(); wait < cfg.Pool.Cooldown {
		t.Errorf("Default worker wait %v is shorter than the pool cooldown %v", wait, cfg.Pool.Cooldown)
	}

	pc := cfg.Pool.ToPoolConfig()
	if pc.Policy != pool.PolicyLeastLoaded || pc.Cooldown != pool.DefaultCooldown {
		t.Errorf("Unexpected pool config %+v", pc)
	}
}
