package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cloud"
	"kakeibo/internal/cloud/firestore"
	"kakeibo/internal/cloud/gcs"
	"kakeibo/internal/cloud/memory"
	"kakeibo/internal/config"
	apphttp "kakeibo/internal/http"
	applog "kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

func main() {
	// Load .env for local development; in containers the env is already set.
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.AttachmentQuota)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	objectStore, documentStore, closeCloud, err := buildCloudStores(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize cloud backend", "error", err, "backend", cfg.CloudBackend)
		os.Exit(1)
	}
	defer closeCloud()

	// AMQP is optional: without it, failed cloud mirrors are only repaired
	// by an explicit resync.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, cloud retries rely on manual resync")
	}

	saver := services.NewHybridSaver(repo, objectStore)

	var txPublisher services.TransactionSyncPublisher
	var budgetPublisher services.BudgetSyncPublisher
	if amqpClient != nil {
		txPublisher = amqpClient
		budgetPublisher = amqpClient
	}
	txService := services.NewTransactionService(repo, saver, objectStore, txPublisher)
	budgetService := services.NewBudgetService(repo, documentStore, budgetPublisher)

	srv := apphttp.NewServer(":"+cfg.Port, txService, budgetService, repo, cfg.ReportCacheSize, cfg.ReportCacheTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting kakeibo server", "port", cfg.Port, "backend", cfg.CloudBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

// buildCloudStores wires the configured backend. The memory backend keeps
// everything in-process, useful for development and tests of the full stack.
func buildCloudStores(ctx context.Context, cfg *config.Config, logger *applog.Logger) (cloud.ObjectStore, cloud.DocumentStore, func(), error) {
	switch cfg.CloudBackend {
	case "gcp":
		gcsClient, err := gcs.NewClient(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, nil, err
		}
		fsClient, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
		if err != nil {
			gcsClient.Close()
			return nil, nil, nil, err
		}
		logger.Info("Initialized GCP backend", "bucket", cfg.GCSBucket, "project", cfg.FirestoreProjectID)
		return gcsClient, fsClient, func() {
			_ = fsClient.Close()
			_ = gcsClient.Close()
		}, nil
	default:
		logger.Info("Initialized memory backend")
		return memory.NewObjectStore(), memory.NewDocumentStore(), func() {}, nil
	}
}
