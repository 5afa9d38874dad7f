package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fleetbook/internal/amqp"
	"fleetbook/internal/config"
	applog "fleetbook/internal/log"
	"fleetbook/internal/storage"
	"fleetbook/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting fleetbook-worker")

	// Load configuration
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite repository to read pending revisions
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize AMQP client for consuming messages (optional; the periodic
	// sweep still archives without it)
	var consumer worker.SyncConsumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client, relying on periodic sweep", "error", err)
		} else {
			defer amqpClient.Close()
			consumer = amqpClient
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	archiveWorker := worker.NewArchiveWorker(repo, consumer, cfg.ArchiveDir, cfg.SyncBatchSize, cfg.SyncInterval)

	// Run until a shutdown signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Archive worker running",
		"archive_dir", cfg.ArchiveDir,
		"batch_size", cfg.SyncBatchSize,
		"interval", cfg.SyncInterval.String())

	if err := archiveWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Archive worker failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}
