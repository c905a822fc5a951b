package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cloud"
	"kakeibo/internal/cloud/firestore"
	"kakeibo/internal/cloud/memory"
	"kakeibo/internal/config"
	applog "kakeibo/internal/log"
	"kakeibo/internal/storage"
	"kakeibo/internal/worker"
)

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting kakeibo-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the sync worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.AttachmentQuota)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var documentStore cloud.DocumentStore
	switch cfg.CloudBackend {
	case "gcp":
		fsClient, err := firestore.NewClient(context.Background(), cfg.FirestoreProjectID)
		if err != nil {
			logger.Error("Failed to initialize Firestore client", "error", err)
			os.Exit(1)
		}
		defer fsClient.Close()
		documentStore = fsClient
		logger.Info("Firestore client initialized", "project", cfg.FirestoreProjectID)
	default:
		// The memory store only lives as long as this process. It still
		// exercises the full consume path during development.
		documentStore = memory.NewDocumentStore()
		logger.Info("Memory document store initialized")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncWorker := worker.NewSyncWorker(repo, documentStore)

	// Push everything once on startup so records queued while the worker
	// was down still reach the cloud mirror.
	logger.Info("Performing startup sync check")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
		// Keep running; the consume loop repairs state message by message.
	}

	go func() {
		handler := func(msg *amqp.SyncMessage) error {
			return syncWorker.HandleMessage(ctx, msg)
		}
		if err := amqpClient.Consume(ctx, handler); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	logger.Info("Worker stopped gracefully")
}
