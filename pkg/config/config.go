// Package config loads the relaystream server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/relaystream/internal/bytesize"
	"github.com/marmos91/relaystream/pkg/api"
	"github.com/marmos91/relaystream/pkg/metadata/gormstore"
)

// Config represents the relaystream configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (RELAYSTREAM_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Profiling controls Pyroscope continuous profiling
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server configures the public HTTP server
	Server api.APIConfig `mapstructure:"server" yaml:"server"`

	// Admin configures the admin API
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`

	// Cache configures the chunk cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Pool configures worker selection and cooldown
	Pool PoolConfig `mapstructure:"pool" yaml:"pool"`

	// Stream configures retries and upstream concurrency
	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`

	// Upstream selects the backend and its workers
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`

	// Database backs file records (subtitle lookup, admin API)
	Database gormstore.Config `mapstructure:"database" yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure disables TLS to the collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Default: ["cpu", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// AdminConfig configures the JWT-protected admin API.
type AdminConfig struct {
	// Enabled mounts /api/v1. Requires JWTSecret.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// JWTSecret signs admin tokens; at least 32 characters.
	// Override: RELAYSTREAM_ADMIN_JWT_SECRET
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true" yaml:"jwt_secret,omitempty"`

	// TokenDuration is the default lifetime of minted tokens
	// Default: 24h
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration"`
}

// CacheConfig configures the chunk cache.
type CacheConfig struct {
	// Type is "badger" (persistent) or "memory"
	// Default: badger
	Type string `mapstructure:"type" validate:"required,oneof=badger memory" yaml:"type"`

	// Path is the badger directory
	Path string `mapstructure:"path" validate:"required_if=Type badger" yaml:"path,omitempty"`

	// Size is the byte capacity; human-readable ("16GiB", "512Mi")
	// Default: 16GiB
	Size bytesize.ByteSize `mapstructure:"size" yaml:"size"`

	// SyncWrites makes each chunk durable before it is served
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes,omitempty"`

	// FlushInterval controls how often access times are persisted
	// Default: 10s
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval,omitempty"`

	// GCInterval controls value log garbage collection
	// Default: 5m
	GCInterval time.Duration `mapstructure:"gc_interval" yaml:"gc_interval,omitempty"`
}

// PoolConfig configures the upstream worker pool.
type PoolConfig struct {
	// Policy is least_loaded or round_robin
	// Default: least_loaded
	Policy string `mapstructure:"policy" validate:"required,oneof=least_loaded round_robin" yaml:"policy"`

	// Cooldown is how long a failing or throttled worker is excluded
	// Default: 60s
	Cooldown time.Duration `mapstructure:"cooldown" validate:"gt=0" yaml:"cooldown"`

	// FailureThreshold is the number of consecutive failures that trigger
	// a cooldown
	// Default: 3
	FailureThreshold int `mapstructure:"failure_threshold" validate:"gte=1" yaml:"failure_threshold"`
}

// StreamConfig configures the streaming engine.
type StreamConfig struct {
	// MaxAttempts bounds attempts per chunk for timeouts and RPC errors
	// Default: 3
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1" yaml:"max_attempts"`

	// RetryDelay is the fixed wait between attempts
	// Default: 1s
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gt=0" yaml:"retry_delay"`

	// WorkerWaitAttempts bounds waits when every worker is cooling down.
	// With WorkerWaitDelay it should cover pool.cooldown.
	// Default: 60
	WorkerWaitAttempts int `mapstructure:"worker_wait_attempts" validate:"gte=1" yaml:"worker_wait_attempts"`

	// WorkerWaitDelay is the longest single wait for a worker
	// Default: 1s
	WorkerWaitDelay time.Duration `mapstructure:"worker_wait_delay" validate:"gt=0" yaml:"worker_wait_delay"`

	// MaxConcurrentFetches caps simultaneous upstream calls server-wide
	// Default: 3
	MaxConcurrentFetches int `mapstructure:"max_concurrent_fetches" validate:"gte=1" yaml:"max_concurrent_fetches"`

	// MetadataCacheSize and MetadataCacheTTL bound file metadata memoization
	// Default: 1024, 10m
	MetadataCacheSize int           `mapstructure:"metadata_cache_size" validate:"gte=1" yaml:"metadata_cache_size"`
	MetadataCacheTTL  time.Duration `mapstructure:"metadata_cache_ttl" validate:"gt=0" yaml:"metadata_cache_ttl"`
}

// UpstreamConfig selects the backend.
type UpstreamConfig struct {
	// Type is "s3" or "memory"
	// Default: memory
	Type string `mapstructure:"type" validate:"required,oneof=s3 memory" yaml:"type"`

	// Memory serves files from a local directory tree <dir>/<cid>/<iid>/<name>.
	Memory MemoryUpstreamConfig `mapstructure:"memory" yaml:"memory,omitempty"`

	// S3 holds the bucket settings shared by all workers.
	S3 S3UpstreamConfig `mapstructure:"s3" yaml:"s3,omitempty"`

	// Workers lists one entry per credential. Memory upstream defaults
	// to a single worker.
	Workers []WorkerConfig `mapstructure:"workers" validate:"dive" yaml:"workers,omitempty"`
}

type MemoryUpstreamConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

type S3UpstreamConfig struct {
	Bucket         string        `mapstructure:"bucket" yaml:"bucket"`
	Region         string        `mapstructure:"region" yaml:"region"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	KeyPrefix      string        `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`
	ForcePathStyle bool          `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout,omitempty"`
	RateLimitWait  time.Duration `mapstructure:"rate_limit_wait" yaml:"rate_limit_wait,omitempty"`
}

// WorkerConfig is one upstream credential.
type WorkerConfig struct {
	Name            string `mapstructure:"name" validate:"required" yaml:"name"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing file is not an error: defaults are returned, still subject to
// environment overrides.
// MaxWorkerWait is the longest a stream waits for a worker to leave
// cooldown before failing.
func (s *StreamConfig) MaxWorkerWait() time.Duration {
	return time.Duration(s.WorkerWaitAttempts) * s.WorkerWaitDelay
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// decode unmarshals v over the defaults and validates the result.
func decode(v *viper.Viper) (*Config, error) {
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  relaystream init\n\n"+
				"Or specify a custom config file:\n"+
				"  relaystream <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  relaystream init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold the JWT secret and worker keys.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// NewViper returns a viper instance configured the way Load uses it, for
// callers that want to watch the file.
func NewViper(configPath string) *viper.Viper {
	v := viper.New()
	setupViper(v, configPath)
	return v
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: RELAYSTREAM_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("RELAYSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v, reflect.TypeOf(Config{}), "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// bindEnvKeys registers every leaf key so env overrides apply even when
// the file does not mention the key. AutomaticEnv alone only covers keys
// viper already knows about.
func bindEnvKeys(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		ft := f.Type
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Time{}) {
			bindEnvKeys(v, ft, key)
			continue
		}
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// byteSizeDecodeHook converts strings like "16GiB" and plain numbers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration. Raw
// integers are nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/relaystream, ~/.config/relaystream,
// or "." when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "relaystream")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "relaystream")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
