package config

import (
	"time"

	memqueue "github.com/vietddude/taskguard/internal/infra/queue/memory"
	redisclient "github.com/vietddude/taskguard/internal/infra/redis"
	"github.com/vietddude/taskguard/internal/infra/storage/postgres"
	"github.com/vietddude/taskguard/internal/pipeline"
	"github.com/vietddude/taskguard/internal/retry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig           `yaml:"server"`
	Logging    LoggingConfig          `yaml:"logging"`
	Redis      redisclient.Config     `yaml:"redis"`
	Database   postgres.Config        `yaml:"database"`
	Queue      memqueue.Config        `yaml:"queue"`
	Retry      retry.Config           `yaml:"retry"`
	Visibility retry.VisibilityConfig `yaml:"visibility"`
	Pipeline   pipeline.Config        `yaml:"pipeline"`
	Workers    WorkerConfig           `yaml:"workers"`
	Collector  CollectorConfig        `yaml:"collector"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// WorkerConfig holds consumer loop settings.
type WorkerConfig struct {
	Count        int           `yaml:"count"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CollectorConfig holds the optional remote telemetry collector endpoint.
type CollectorConfig struct {
	Endpoint string `yaml:"endpoint"` // empty disables forwarding
}
