package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pmt/internal/amqp"
	"pmt/internal/blob"
	"pmt/internal/config"
	"pmt/internal/log"
	"pmt/internal/storage"
	"pmt/internal/storage/postgres"
	"pmt/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting pmt-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if !cfg.ArchiveEnabled() {
		logger.Error("S3_BUCKET is required for the archive worker")
		os.Exit(1)
	}

	store, cleanup, err := openArchiveStore(cfg)
	if err != nil {
		logger.Error("Failed to open data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blobs, err := blob.NewS3Store(ctx, blob.S3Config{
		Region:    cfg.S3Region,
		Bucket:    cfg.S3Bucket,
		Endpoint:  cfg.S3Endpoint,
		PathStyle: cfg.S3PathStyle,
	})
	if err != nil {
		logger.Error("Failed to initialize S3 store", "error", err, "bucket", cfg.S3Bucket)
		os.Exit(1)
	}
	logger.Info("Initialized S3 archive store", "bucket", cfg.S3Bucket, "region", cfg.S3Region)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	archiveWorker := worker.NewArchiveWorker(store, blobs, cfg.ArchiveBatchSize)

	logger.Info("Worker running",
		"queue", cfg.AMQPQueue,
		"batch_size", cfg.ArchiveBatchSize,
		"interval", cfg.ArchiveInterval)

	if err := archiveWorker.Run(ctx, amqpClient, cfg.ArchiveInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func openArchiveStore(cfg *config.Config) (worker.ArchiveStore, func(), error) {
	switch cfg.DataBackend {
	case "postgres":
		store, err := postgres.NewStore(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}
}
