package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/cloud"
	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// MaxFileSize bounds a single uploaded file. Oversized files are rejected
// before any store is touched.
const MaxFileSize = 10 << 20

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

var (
	allowedImageTypes = map[string]bool{
		"image/jpeg": true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	allowedDocumentTypes = map[string]bool{
		"application/pdf": true,
		"text/plain":      true,
		"image/jpeg":      true,
		"image/png":       true,
	}
)

type (
	// TransactionLocalStore is the slice of the local repository the
	// transaction service uses.
	TransactionLocalStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) error
		GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id string) error
		ListTransactionsByMonth(ctx context.Context, year, month int) ([]core.Transaction, error)
		ListTransactionsByDate(ctx context.Context, date core.Date) ([]core.Transaction, error)
		DeleteAttachment(ctx context.Context, ownerID, id string) error
		DeleteAttachmentsByOwner(ctx context.Context, ownerID string) error
	}

	// TransactionSyncPublisher queues cloud mirror work for the worker.
	TransactionSyncPublisher interface {
		PublishTransactionSync(ctx context.Context, id string) error
		PublishTransactionDelete(ctx context.Context, id string) error
	}

	// CreateInput carries a new transaction's fields plus the files to
	// attach once the record exists.
	CreateInput struct {
		Type      core.TxType
		Amount    core.Money
		Category  string
		Content   string
		Date      core.Date
		Images    []core.FileUpload
		Documents []core.FileUpload
	}

	// UpdatePatch is a partial field merge; nil fields keep their stored
	// value. Replacing an attachment list prunes the local entries the
	// new list no longer references. AddImages and AddDocuments run new
	// files through the hybrid save path and append the results.
	UpdatePatch struct {
		Type      *core.TxType
		Amount    *core.Money
		Category  *string
		Content   *string
		Date      *core.Date
		Images    *[]core.Attachment
		Documents *[]core.Attachment

		AddImages    []core.FileUpload
		AddDocuments []core.FileUpload
	}

	// CreateResult is a created transaction together with the per-file
	// save reports for its attachments.
	CreateResult struct {
		Transaction *core.Transaction
		Images      *SaveReport
		Documents   *SaveReport
	}

	// TransactionService orchestrates transaction CRUD across the local
	// store, the hybrid attachment save path and the cloud mirror queue.
	TransactionService struct {
		store     TransactionLocalStore
		saver     *HybridSaver
		remote    cloud.ObjectStore        // nil when running offline
		publisher TransactionSyncPublisher // nil when AMQP is not configured
	}
)

func NewTransactionService(store TransactionLocalStore, saver *HybridSaver, remote cloud.ObjectStore, publisher TransactionSyncPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		saver:     saver,
		remote:    remote,
		publisher: publisher,
	}
}

// Create persists the core fields first, then saves the attachments under
// the freshly assigned id and appends the resulting references. A totally
// failed attachment batch is reported as an error alongside the persisted
// record, so the caller never claims full success over lost files.
func (s *TransactionService) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if err := validateFiles(storage.KindImage, in.Images); err != nil {
		return nil, err
	}
	if err := validateFiles(storage.KindDocument, in.Documents); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx := core.Transaction{
		ID:        uuid.NewString(),
		Type:      in.Type,
		Amount:    in.Amount,
		Category:  in.Category,
		Content:   in.Content,
		Date:      in.Date,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	result := &CreateResult{Transaction: &tx}
	var saveErr error

	if len(in.Images) > 0 {
		report, err := s.saver.SaveBatch(ctx, tx.ID, storage.KindImage, in.Images)
		result.Images = report
		tx.Images = report.Attachments()
		saveErr = errors.Join(saveErr, err)
	}
	if len(in.Documents) > 0 {
		report, err := s.saver.SaveBatch(ctx, tx.ID, storage.KindDocument, in.Documents)
		result.Documents = report
		tx.Documents = report.Attachments()
		saveErr = errors.Join(saveErr, err)
	}

	if len(tx.Images) > 0 || len(tx.Documents) > 0 {
		tx.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, fmt.Errorf("attach files to transaction: %w", err)
		}
	}
	result.Transaction = &tx

	s.queueSync(ctx, tx.ID)
	return result, saveErr
}

func (s *TransactionService) Get(ctx context.Context, id string) (*core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) ListByMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	return s.store.ListTransactionsByMonth(ctx, year, month)
}

func (s *TransactionService) ListByDate(ctx context.Context, date core.Date) ([]core.Transaction, error) {
	return s.store.ListTransactionsByDate(ctx, date)
}

// Update merges the patch over the stored record. Local attachments the
// patch drops are pruned from the local store; dropped remote attachments
// are deleted from object storage best-effort.
func (s *TransactionService) Update(ctx context.Context, id string, patch UpdatePatch) (*core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Type != nil {
		tx.Type = *patch.Type
	}
	if patch.Amount != nil {
		tx.Amount = *patch.Amount
	}
	if patch.Category != nil {
		tx.Category = *patch.Category
	}
	if patch.Content != nil {
		tx.Content = *patch.Content
	}
	if patch.Date != nil {
		tx.Date = *patch.Date
	}

	var dropped []core.Attachment
	if patch.Images != nil {
		dropped = append(dropped, removedAttachments(tx.Images, *patch.Images)...)
		tx.Images = *patch.Images
	}
	if patch.Documents != nil {
		dropped = append(dropped, removedAttachments(tx.Documents, *patch.Documents)...)
		tx.Documents = *patch.Documents
	}

	// New files count against the limit together with what the record keeps.
	if len(tx.Images)+len(patch.AddImages) > core.MaxAttachmentsPerKind ||
		len(tx.Documents)+len(patch.AddDocuments) > core.MaxAttachmentsPerKind {
		return nil, core.ErrTooManyFiles
	}
	if err := validateFiles(storage.KindImage, patch.AddImages); err != nil {
		return nil, err
	}
	if err := validateFiles(storage.KindDocument, patch.AddDocuments); err != nil {
		return nil, err
	}

	// Field validation happens before any file is stored, so a rejected
	// patch leaves no half-saved attachments behind.
	if err := tx.Validate(); err != nil {
		return nil, err
	}

	var saveErr error
	if len(patch.AddImages) > 0 {
		report, err := s.saver.SaveBatch(ctx, id, storage.KindImage, patch.AddImages)
		tx.Images = append(tx.Images, report.Attachments()...)
		saveErr = errors.Join(saveErr, err)
	}
	if len(patch.AddDocuments) > 0 {
		report, err := s.saver.SaveBatch(ctx, id, storage.KindDocument, patch.AddDocuments)
		tx.Documents = append(tx.Documents, report.Attachments()...)
		saveErr = errors.Join(saveErr, err)
	}

	tx.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateTransaction(ctx, *tx); err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}

	s.pruneAttachments(ctx, id, dropped)
	s.queueSync(ctx, id)
	return tx, saveErr
}

// Delete removes a transaction and cascades to its attachments: local
// payloads are deleted with it, remote objects best-effort. Orphaned
// attachment accumulation is not accepted behavior here.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if err := s.store.DeleteAttachmentsByOwner(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to cascade-delete local attachments",
			"transaction_id", id,
			"error", err)
	}
	s.deleteRemote(ctx, id, append(core.RemoteURLs(tx.Images), core.RemoteURLs(tx.Documents)...))

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionDelete(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to queue transaction delete sync",
				"transaction_id", id,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id)
	return nil
}

func (s *TransactionService) queueSync(ctx context.Context, id string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionSync(ctx, id); err != nil {
		// The local write already succeeded; the mirror just lags.
		slog.ErrorContext(ctx, "Failed to queue transaction sync",
			"transaction_id", id,
			"error", err)
	}
}

func (s *TransactionService) pruneAttachments(ctx context.Context, ownerID string, dropped []core.Attachment) {
	var urls []string
	for _, a := range dropped {
		if a.Kind == core.AttachmentLocal {
			if err := s.store.DeleteAttachment(ctx, ownerID, a.ID); err != nil {
				slog.WarnContext(ctx, "Failed to prune local attachment",
					"owner_id", ownerID,
					"attachment_id", a.ID,
					"error", err)
			}
		} else {
			urls = append(urls, a.URL)
		}
	}
	s.deleteRemote(ctx, ownerID, urls)
}

func (s *TransactionService) deleteRemote(ctx context.Context, ownerID string, urls []string) {
	if s.remote == nil {
		return
	}
	for _, url := range urls {
		if err := s.remote.Delete(ctx, url); err != nil {
			slog.WarnContext(ctx, "Failed to delete remote attachment",
				"owner_id", ownerID,
				"url", url,
				"error", err)
		}
	}
}

// removedAttachments returns the entries of before that after no longer
// references.
func removedAttachments(before, after []core.Attachment) []core.Attachment {
	kept := make(map[core.Attachment]bool, len(after))
	for _, a := range after {
		kept[a] = true
	}
	var removed []core.Attachment
	for _, a := range before {
		if !kept[a] {
			removed = append(removed, a)
		}
	}
	return removed
}

func validateFiles(kind storage.AttachmentKind, files []core.FileUpload) error {
	if len(files) > core.MaxAttachmentsPerKind {
		return core.ErrTooManyFiles
	}
	allowed := allowedImageTypes
	if kind == storage.KindDocument {
		allowed = allowedDocumentTypes
	}
	for _, f := range files {
		if err := f.Validate(); err != nil {
			return err
		}
		if len(f.Data) > MaxFileSize {
			return fmt.Errorf("%s: %w", f.Name, ErrFileTooLarge)
		}
		if !allowed[f.ContentType] {
			return fmt.Errorf("%s (%s): %w", f.Name, f.ContentType, ErrUnsupportedFileType)
		}
	}
	return nil
}
