package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/core"
)

// AttachmentRecord is one locally stored attachment payload. Source is
// always "local": entries in this store are, by definition, the files the
// cloud never accepted.
type AttachmentRecord struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"ownerId"`
	Kind       AttachmentKind `json:"kind"`
	FileName   string         `json:"fileName"`
	FileType   string         `json:"fileType"`
	Size       int64          `json:"size"`
	Payload    []byte         `json:"payload"`
	UploadedAt time.Time      `json:"uploadedAt"`
	Source     string         `json:"source"`
}

// AttachmentKind separates image payloads from document payloads.
type AttachmentKind string

const (
	KindImage    AttachmentKind = "image"
	KindDocument AttachmentKind = "document"
)

// PutAttachment stores a file payload under the owner's namespace and
// returns the generated attachment id. Ids are unique per owner, not
// globally. A write that would exceed the configured quota fails with
// ErrQuotaExceeded and stores nothing.
func (r *SQLiteRepository) PutAttachment(ctx context.Context, ownerID string, kind AttachmentKind, file core.FileUpload) (string, error) {
	if ownerID == "" {
		return "", errors.New("owner id is required")
	}
	if err := file.Validate(); err != nil {
		return "", err
	}

	if r.attachmentQuota > 0 {
		var used sql.NullInt64
		err := r.db.QueryRowContext(ctx, `SELECT SUM(size) FROM attachments`).Scan(&used)
		if err != nil {
			return "", fmt.Errorf("check attachment quota: %w", err)
		}
		if used.Int64+int64(len(file.Data)) > r.attachmentQuota {
			return "", fmt.Errorf("store %d bytes for %s: %w", len(file.Data), ownerID, ErrQuotaExceeded)
		}
	}

	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attachments (id, owner_id, kind, file_name, file_type, size, payload, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerID, string(kind), file.Name, file.ContentType, int64(len(file.Data)), file.Data,
		formatTime(time.Now()))
	if err != nil {
		return "", fmt.Errorf("insert attachment: %w", err)
	}

	slog.InfoContext(ctx, "Attachment saved locally",
		"owner_id", ownerID,
		"attachment_id", id,
		"kind", kind,
		"file_name", file.Name,
		"size", len(file.Data))

	return id, nil
}

// GetAttachment returns the stored attachment, or ErrNotFound. Absence is a
// normal condition: the payload may live in the remote store instead.
func (r *SQLiteRepository) GetAttachment(ctx context.Context, ownerID, id string) (*AttachmentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, file_name, file_type, size, payload, uploaded_at
		FROM attachments WHERE owner_id = ? AND id = ?`, ownerID, id)
	rec, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return rec, nil
}

// DeleteAttachment removes an entry. Deleting an id that does not exist is
// a no-op, not an error.
func (r *SQLiteRepository) DeleteAttachment(ctx context.Context, ownerID, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

// ListAttachments returns the owner's attachments in insertion order, which
// is the order they appear in UI lists.
func (r *SQLiteRepository) ListAttachments(ctx context.Context, ownerID string) ([]AttachmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, file_name, file_type, size, payload, uploaded_at
		FROM attachments WHERE owner_id = ? ORDER BY seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []AttachmentRecord
	for rows.Next() {
		rec, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return out, nil
}

// DeleteAttachmentsByOwner removes every attachment an owner holds. Used by
// the transaction delete cascade.
func (r *SQLiteRepository) DeleteAttachmentsByOwner(ctx context.Context, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE owner_id = ?`, ownerID)
	if err != nil {
		return fmt.Errorf("delete attachments for owner: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		slog.InfoContext(ctx, "Cascade-deleted local attachments", "owner_id", ownerID, "count", n)
	}
	return nil
}

func scanAttachment(row rowScanner) (*AttachmentRecord, error) {
	var (
		rec      AttachmentRecord
		kind     string
		uploaded string
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &kind, &rec.FileName, &rec.FileType, &rec.Size, &rec.Payload, &uploaded); err != nil {
		return nil, err
	}
	rec.Kind = AttachmentKind(kind)
	rec.UploadedAt = parseTime(uploaded)
	rec.Source = "local"
	return &rec, nil
}
