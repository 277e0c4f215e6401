package config

import (
	"strings"
	"testing"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := GetDefaultConfig()
	cfg.Database.SQLite.Path = t.TempDir() + "/meta.db"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig(t)); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidServerPort(t *testing.T) {
	cfg := validConfig(t)
	cfg.Server.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_UnknownPolicy(t *testing.T) {
	cfg := validConfig(t)
	cfg.Pool.Policy = "random"

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown pool policy")
	}
}

func TestValidate_BadgerNeedsPath(t *testing.T) {
	cfg := validConfig(t)
	cfg.Cache.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing cache path")
	}
	if !strings.Contains(err.Error(), "Cache.Path") {
		t.Errorf("Expected error about Cache.Path, got: %v", err)
	}
}

func TestValidate_AdminSecret(t *testing.T) {
	cfg := validConfig(t)
	cfg.Admin.Enabled = true

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for admin without secret")
	}

	cfg.Admin.JWTSecret = "short"
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "32") {
		t.Fatalf("Expected length error, got %v", err)
	}

	cfg.Admin.JWTSecret = strings.Repeat("x", 32)
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid admin config, got %v", err)
	}
}

func TestValidate_Upstream(t *testing.T) {
	cfg := validConfig(t)
	cfg.Upstream.Type = "s3"
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("Expected bucket error, got %v", err)
	}

	cfg = validConfig(t)
	cfg.Upstream.Workers = []WorkerConfig{{Name: "a"}, {Name: "a"}}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("Expected duplicate worker error, got %v", err)
	}

	cfg = validConfig(t)
	cfg.Upstream.Workers = []WorkerConfig{{Name: ""}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for unnamed worker")
	}
}

func TestValidate_MetricsPortCollision(t *testing.T) {
	cfg := validConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = cfg.Server.Port

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected error for colliding ports")
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := validConfig(t)
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for telemetry without endpoint")
	}
}

func TestValidate_UnknownProfileType(t *testing.T) {
	cfg := validConfig(t)
	cfg.Profiling.ProfileTypes = []string{"cpu", "bogus"}

	if err := Validate(cfg); err == nil {
		t.Fatal("Expected validation error for unknown profile type")
	}
}
