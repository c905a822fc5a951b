package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cloud"
	"kakeibo/internal/storage"
)

// SyncWorker mirrors local state to the cloud document store. The local
// SQLite database stays authoritative, messages only name what changed and
// the worker reads the current row before writing.
type SyncWorker struct {
	storage *storage.SQLiteRepository
	remote  cloud.DocumentStore
}

func NewSyncWorker(storage *storage.SQLiteRepository, remote cloud.DocumentStore) *SyncWorker {
	return &SyncWorker{
		storage: storage,
		remote:  remote,
	}
}

// HandleMessage dispatches a single sync message. Unknown operations are
// dropped so a bad producer cannot wedge the queue.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.SyncMessage) error {
	switch msg.Op {
	case amqp.OpTransactionSync:
		return w.handleTransactionSync(ctx, msg.ID)
	case amqp.OpTransactionDelete:
		return w.handleTransactionDelete(ctx, msg.ID)
	case amqp.OpBudgetSync:
		return w.handleBudgetSync(ctx, msg.Key)
	default:
		slog.WarnContext(ctx, "Dropping sync message with unknown op", "op", msg.Op)
		return nil
	}
}

func (w *SyncWorker) handleTransactionSync(ctx context.Context, id string) error {
	slog.InfoContext(ctx, "Processing transaction sync", "id", id)

	tx, err := w.storage.GetTransaction(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted locally before the sync ran, converge by removing the mirror.
		slog.InfoContext(ctx, "Transaction gone locally, removing cloud copy", "id", id)
		return w.handleTransactionDelete(ctx, id)
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	if err := w.remote.SetTransaction(ctx, *tx); err != nil {
		return fmt.Errorf("write transaction to cloud: %w", err)
	}

	slog.InfoContext(ctx, "Successfully synced transaction",
		"id", id,
		"category", tx.Category,
		"amount", tx.Amount)
	return nil
}

func (w *SyncWorker) handleTransactionDelete(ctx context.Context, id string) error {
	slog.InfoContext(ctx, "Processing transaction delete", "id", id)

	if err := w.remote.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, cloud.ErrNotFound) {
			slog.InfoContext(ctx, "Transaction already absent in cloud", "id", id)
			return nil
		}
		return fmt.Errorf("delete transaction from cloud: %w", err)
	}

	slog.InfoContext(ctx, "Successfully deleted transaction from cloud", "id", id)
	return nil
}

func (w *SyncWorker) handleBudgetSync(ctx context.Context, key string) error {
	slog.InfoContext(ctx, "Processing budget sync", "key", key)

	setting, err := w.storage.GetBudget(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Budget setting gone locally, skipping", "key", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get budget from storage: %w", err)
	}

	if err := w.remote.SetBudget(ctx, *setting); err != nil {
		return fmt.Errorf("write budget to cloud: %w", err)
	}

	slog.InfoContext(ctx, "Successfully synced budget", "key", key)
	return nil
}

// StartupSyncCheck pushes every local budget setting and transaction to the
// cloud store. It runs once at worker startup to recover from lost messages
// or worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	budgets, err := w.storage.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets for startup check: %w", err)
	}

	txs, err := w.storage.ListAllTransactions(ctx)
	if err != nil {
		return fmt.Errorf("list transactions for startup check: %w", err)
	}

	if len(budgets) == 0 && len(txs) == 0 {
		slog.InfoContext(ctx, "Nothing to push on startup")
		return nil
	}

	successCount := 0
	errorCount := 0

	for key, b := range budgets {
		if err := w.remote.SetBudget(ctx, b); err != nil {
			slog.ErrorContext(ctx, "Failed to push budget during startup",
				"key", key, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	for _, tx := range txs {
		if err := w.remote.SetTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to push transaction during startup",
				"id", tx.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(budgets)+len(txs),
		"synced", successCount,
		"errors", errorCount)

	return nil
}
