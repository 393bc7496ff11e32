package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/taskguard/internal/retry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Retry.Strategy != retry.StrategyExponential {
		t.Errorf("strategy = %q, want exponential", cfg.Retry.Strategy)
	}
	if cfg.Retry.MaxRetries != retry.DefaultConfig.MaxRetries {
		t.Errorf("max retries = %d, want %d", cfg.Retry.MaxRetries, retry.DefaultConfig.MaxRetries)
	}
	if cfg.Queue.MaxReceiveCount != cfg.Retry.MaxRetries+2 {
		t.Errorf("max receive count = %d, want maxRetries+2", cfg.Queue.MaxReceiveCount)
	}
	if cfg.Visibility.DefaultWindow != cfg.Queue.DefaultVisibility {
		t.Errorf("visibility window = %v, want queue default %v",
			cfg.Visibility.DefaultWindow, cfg.Queue.DefaultVisibility)
	}
	if cfg.Pipeline.IdempotencyTTL != 24*time.Hour {
		t.Errorf("idempotency ttl = %v, want 24h", cfg.Pipeline.IdempotencyTTL)
	}
	if cfg.Pipeline.SourceQueue != "taskguard-main" {
		t.Errorf("source queue = %q", cfg.Pipeline.SourceQueue)
	}
	if cfg.Workers.Count != 4 || cfg.Workers.PollInterval != 500*time.Millisecond {
		t.Errorf("workers = %+v", cfg.Workers)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_DATABASE_URL", "postgres://localhost:5432/taskguard")
	path := writeConfig(t, "database:\n  url: ${TEST_DATABASE_URL}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Database.URL != "postgres://localhost:5432/taskguard" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
retry:
  max_retries: 7
pipeline:
  failure_threshold_per_mille: 300
  source_queue: orders-main
workers:
  count: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("max retries = %d, want 7", cfg.Retry.MaxRetries)
	}
	if cfg.Queue.MaxReceiveCount != 9 {
		t.Errorf("max receive count = %d, want 9", cfg.Queue.MaxReceiveCount)
	}
	if cfg.Pipeline.FailureThresholdPerMille != 300 {
		t.Errorf("threshold = %d, want 300", cfg.Pipeline.FailureThresholdPerMille)
	}
	if cfg.Pipeline.SourceQueue != "orders-main" {
		t.Errorf("source queue = %q, want orders-main", cfg.Pipeline.SourceQueue)
	}
	if cfg.Workers.Count != 2 {
		t.Errorf("workers = %d, want 2", cfg.Workers.Count)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
