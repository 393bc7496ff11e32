package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	memqueue "github.com/vietddude/taskguard/internal/infra/queue/memory"
	"github.com/vietddude/taskguard/internal/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Retry.Strategy == "" {
		cfg.Retry.Strategy = retry.StrategyExponential
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = retry.DefaultConfig.BaseDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = retry.DefaultConfig.MaxDelay
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry.Multiplier = retry.DefaultConfig.Multiplier
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = retry.DefaultConfig.MaxRetries
	}

	if cfg.Queue.DefaultVisibility == 0 {
		cfg.Queue.DefaultVisibility = memqueue.DefaultConfig.DefaultVisibility
	}
	if cfg.Queue.MaxVisibilitySeconds == 0 {
		cfg.Queue.MaxVisibilitySeconds = memqueue.DefaultConfig.MaxVisibilitySeconds
	}
	if cfg.Queue.MaxReceiveCount == 0 {
		cfg.Queue.MaxReceiveCount = cfg.Retry.MaxRetries + 2
	}

	if cfg.Visibility.DefaultWindow == 0 {
		cfg.Visibility.DefaultWindow = cfg.Queue.DefaultVisibility
	}

	if cfg.Pipeline.IdempotencyTTL == 0 {
		cfg.Pipeline.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Pipeline.SourceQueue == "" {
		cfg.Pipeline.SourceQueue = "taskguard-main"
	}

	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = 4
	}
	if cfg.Workers.PollInterval == 0 {
		cfg.Workers.PollInterval = 500 * time.Millisecond
	}
}
