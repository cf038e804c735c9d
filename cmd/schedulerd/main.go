// Package main implements the entry point for the scheduler daemon, which
// serves the job submission API and runs the worker pool that drains the
// Redis-backed task queue.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/forgebench/scheduler/internal/config"
	"github.com/forgebench/scheduler/internal/platform/logger"
	"github.com/forgebench/scheduler/internal/platform/redis"
)

func main() {
	ctx := context.Background()

	cfg, appLogger, err := initializeApp()
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		appLogger.Error("Failed to connect to Redis", "error", err)
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	app, err := newApplication(cfg, appLogger, rdb)
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// initializeApp loads configuration and sets up logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)

	slog.Info("Scheduler configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queue", cfg.Queue.Name,
		"workers", cfg.Pool.NumWorkers)

	if cfg.Auth.JWTSecret != "" {
		slog.Debug("Auth configuration", "jwt_secret_present", true)
	}

	return cfg, appLogger, nil
}
