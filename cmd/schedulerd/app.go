package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/forgebench/scheduler/internal/config"
	"github.com/forgebench/scheduler/internal/executor"
	"github.com/forgebench/scheduler/internal/scheduler"
)

// httpShutdownTimeout bounds how long in-flight HTTP requests may take to
// finish once a shutdown signal arrives.
const httpShutdownTimeout = 10 * time.Second

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	rdb    *goredis.Client

	queue *scheduler.JobQueue
	pool  *scheduler.WorkerPool
}

// newApplication creates a new application instance with all dependencies
// initialized. The Redis connection must already be established.
func newApplication(cfg *config.Config, logger *slog.Logger, rdb *goredis.Client) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		rdb:    rdb,
	}

	app.queue = scheduler.NewJobQueue(
		rdb,
		cfg.Queue.Name,
		logger.With("component", "job_queue"),
		scheduler.WithResultTTL(cfg.Queue.ResultTTL),
	)

	// The stub executor fabricates outcomes; the rollout service swaps in
	// a sandbox-backed one through the same interface.
	app.pool = scheduler.NewWorkerPool(
		app.queue,
		executor.NewStub(),
		scheduler.WorkerPoolConfig{
			NumWorkers:      cfg.Pool.NumWorkers,
			PollInterval:    cfg.Pool.PollInterval,
			JobTimeout:      cfg.Pool.JobTimeout,
			ShutdownTimeout: cfg.Pool.ShutdownTimeout,
		},
		logger.With("component", "worker_pool"),
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the worker pool and the HTTP server, handling lifecycle and
// cleanup. It blocks until a shutdown signal arrives or the server fails.
func (app *application) Run(ctx context.Context) error {
	// The pool recovers stranded jobs before workers start consuming.
	if err := app.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// startHTTPServer starts the HTTP server with graceful shutdown support.
// It takes a context that can be used to signal cancellation and the router.
// Returns an error if the server fails to start or encounters problems.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: router,
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.logger.Info("Starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("Server failed", "error", err)
			cancelServer()
		}
	}()

	select {
	case <-shutdownCh:
		app.logger.Info("Shutting down server...")
	case <-serverCtx.Done():
		app.logger.Info("Server context canceled, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.cleanup()

	app.logger.Info("Server shutdown completed")
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	// Let in-flight jobs drain before dropping the Redis connection.
	if app.pool != nil {
		if err := app.pool.Shutdown(); err != nil {
			app.logger.Error("Worker pool shutdown incomplete", "error", err)
		}
	}

	if app.rdb != nil {
		if err := app.rdb.Close(); err != nil {
			app.logger.Error("Error closing Redis connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
