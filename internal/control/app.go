// Package control wires the pipeline together and manages its lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vietddude/taskguard/internal/core/config"
	"github.com/vietddude/taskguard/internal/dlq"
	"github.com/vietddude/taskguard/internal/health"
	"github.com/vietddude/taskguard/internal/idempotency"
	memqueue "github.com/vietddude/taskguard/internal/infra/queue/memory"
	redisclient "github.com/vietddude/taskguard/internal/infra/redis"
	"github.com/vietddude/taskguard/internal/infra/sink"
	"github.com/vietddude/taskguard/internal/infra/storage"
	"github.com/vietddude/taskguard/internal/infra/storage/memory"
	"github.com/vietddude/taskguard/internal/infra/storage/postgres"
	"github.com/vietddude/taskguard/internal/lifecycle"
	"github.com/vietddude/taskguard/internal/pipeline"
	"github.com/vietddude/taskguard/internal/retry"
)

// App is the assembled daemon: storage, transport, pipeline service,
// workers, and the health server.
type App struct {
	cfg          *config.AppConfig
	service      *pipeline.Service
	workers      []*pipeline.Worker
	transport    *memqueue.Queue
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	grpcSink     *sink.GRPC
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp initializes all dependencies. Storage backend selection follows
// configuration: Postgres when a database URL is set, Redis when a Redis
// URL is set, otherwise process-local memory.
func NewApp(cfg *config.AppConfig, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	app := &App{cfg: cfg, log: log}

	// 1. Storage
	var taskRepo storage.TaskRepository
	var idemRepo storage.IdempotencyRepository
	var dlqRepo storage.DLQRepository
	var storePinger health.Pinger

	switch {
	case cfg.Database.URL != "":
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		taskRepo = postgres.NewTaskRepo(db)
		idemRepo = postgres.NewIdempotencyRepo(db)
		dlqRepo = postgres.NewDLQRepo(db)
		storePinger = db
		app.db = db
		log.Info("Using PostgreSQL storage")

	case cfg.Redis.URL != "":
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}

		store := memory.NewMemoryStorage()
		taskRepo = redisclient.NewTaskRepo(client)
		idemRepo = redisclient.NewIdempotencyRepo(client)
		// DLQ analytics stays in-process when Redis backs the records.
		dlqRepo = memory.NewDLQRepo(store)
		storePinger = client
		app.redisClient = client
		log.Info("Using Redis storage")

	default:
		store := memory.NewMemoryStorage()
		taskRepo = memory.NewTaskRepo(store)
		idemRepo = memory.NewIdempotencyRepo(store)
		dlqRepo = memory.NewDLQRepo(store)
		log.Info("Using in-memory storage")
	}

	// 2. Telemetry sink, scraped through the health server's /metrics.
	var s sink.Sink = sink.NewPrometheus(prometheus.DefaultRegisterer)
	if cfg.Collector.Endpoint != "" {
		grpcSink, err := sink.NewGRPC(context.Background(), cfg.Collector.Endpoint, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init collector sink: %w", err)
		}
		app.grpcSink = grpcSink
		s = sink.Multi{s, grpcSink}
	}

	// 3. Transport
	transport := memqueue.New(cfg.Queue)
	app.transport = transport

	// 4. Core components
	registry := retry.NewRegistry()
	coordinator, err := retry.NewCoordinator(registry, cfg.Retry, cfg.Visibility, transport, s, log)
	if err != nil {
		return nil, err
	}

	strategy, err := registry.Lookup(cfg.Retry.Strategy)
	if err != nil {
		return nil, err
	}

	lc := lifecycle.NewManager(taskRepo, s)
	guard := idempotency.NewGuard(idemRepo, cfg.Pipeline.IdempotencyTTL, s)
	builder := dlq.NewBuilder(strategy, cfg.Retry)

	app.service = pipeline.NewService(
		cfg.Pipeline, lc, guard, coordinator, builder, dlqRepo, transport, s, log,
	)

	// 5. Workers
	for i := 0; i < cfg.Workers.Count; i++ {
		app.workers = append(app.workers, pipeline.NewWorker(
			i, app.service, transport, nil, cfg.Workers.PollInterval, log,
		))
	}

	// 6. Health server
	monitor := health.NewMonitor(storePinger, transport, dlqRepo)
	app.healthServer = health.NewServer(monitor, cfg.Server.Port)

	return app, nil
}

// Service exposes the pipeline operations to embedding callers.
func (a *App) Service() *pipeline.Service {
	return a.service
}

// Start launches the workers and the health server.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for _, w := range a.workers {
		a.wg.Add(1)
		go func(w *pipeline.Worker) {
			defer a.wg.Done()
			w.Run(runCtx)
		}(w)
	}

	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("health server stopped", "error", err)
		}
	}()

	a.log.Info("taskguard started", "workers", len(a.workers), "port", a.cfg.Server.Port)
	return nil
}

// Stop shuts the daemon down, waiting for in-flight work.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := a.healthServer.Stop(ctx); err != nil {
		return err
	}
	if a.grpcSink != nil {
		_ = a.grpcSink.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	return nil
}
