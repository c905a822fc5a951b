// Package storage is the local durable store: transactions, attachment
// payloads and budget settings in a single SQLite database on the device.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kakeibo/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is a normal condition for lookups: the record was never
	// stored locally, or was removed.
	ErrNotFound = errors.New("not found")

	// ErrQuotaExceeded signals that a write would push the attachment
	// store past its configured byte capacity.
	ErrQuotaExceeded = errors.New("attachment storage quota exceeded")
)

type SQLiteRepository struct {
	db *sql.DB

	// attachmentQuota caps the total payload bytes held by the local
	// attachment store. Zero means unlimited.
	attachmentQuota int64
}

func NewSQLiteRepository(dbPath string, attachmentQuota int64) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Serialized access keeps rapid writes to one key applied in call
	// order; the app has no use for write parallelism on-device.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, attachmentQuota: attachmentQuota}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateTransaction persists the core fields of a new transaction. The id
// must already be assigned; attachments are appended afterwards via
// UpdateTransaction once the save path has resolved them.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	images, documents, err := marshalAttachments(tx)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, type, amount, category, content, date, images, documents, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Type), int64(tx.Amount), tx.Category, tx.Content, string(tx.Date),
		images, documents, formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", tx.ID,
		"type", tx.Type,
		"amount", tx.Amount,
		"date", tx.Date)

	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, type, amount, category, content, date, images, documents, created_at, updated_at
		FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// UpdateTransaction replaces the mutable fields of an existing record.
// Partial-merge semantics live in the service layer; by the time a
// transaction reaches here it is complete.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	images, documents, err := marshalAttachments(tx)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, amount = ?, category = ?, content = ?, date = ?, images = ?, documents = ?, updated_at = ?
		WHERE id = ?`,
		string(tx.Type), int64(tx.Amount), tx.Category, tx.Content, string(tx.Date),
		images, documents, formatTime(tx.UpdatedAt), tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTransactionsByMonth returns the month's records in chronological
// order. The date column holds fixed-width YYYY-MM-DD strings, so a plain
// BETWEEN over the month bounds is a correct chronological filter.
func (r *SQLiteRepository) ListTransactionsByMonth(ctx context.Context, year, month int) ([]core.Transaction, error) {
	first, last := core.MonthRange(year, month)
	return r.listTransactions(ctx, `
		SELECT id, type, amount, category, content, date, images, documents, created_at, updated_at
		FROM transactions WHERE date BETWEEN ? AND ?
		ORDER BY date, created_at`, string(first), string(last))
}

func (r *SQLiteRepository) ListTransactionsByDate(ctx context.Context, date core.Date) ([]core.Transaction, error) {
	return r.listTransactions(ctx, `
		SELECT id, type, amount, category, content, date, images, documents, created_at, updated_at
		FROM transactions WHERE date = ?
		ORDER BY created_at`, string(date))
}

func (r *SQLiteRepository) ListAllTransactions(ctx context.Context) ([]core.Transaction, error) {
	return r.listTransactions(ctx, `
		SELECT id, type, amount, category, content, date, images, documents, created_at, updated_at
		FROM transactions ORDER BY date, created_at`)
}

func (r *SQLiteRepository) listTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		tx               core.Transaction
		ty, date         string
		amount           int64
		images, docs     string
		created, updated string
	)
	if err := row.Scan(&tx.ID, &ty, &amount, &tx.Category, &tx.Content, &date, &images, &docs, &created, &updated); err != nil {
		return nil, err
	}
	tx.Type = core.TxType(ty)
	tx.Amount = core.Money(amount)
	tx.Date = core.Date(date)
	if err := json.Unmarshal([]byte(images), &tx.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal([]byte(docs), &tx.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	tx.CreatedAt = parseTime(created)
	tx.UpdatedAt = parseTime(updated)
	return &tx, nil
}

func marshalAttachments(tx core.Transaction) (images, documents string, err error) {
	ib, err := json.Marshal(emptyIfNil(tx.Images))
	if err != nil {
		return "", "", fmt.Errorf("encode images: %w", err)
	}
	db, err := json.Marshal(emptyIfNil(tx.Documents))
	if err != nil {
		return "", "", fmt.Errorf("encode documents: %w", err)
	}
	return string(ib), string(db), nil
}

func emptyIfNil(atts []core.Attachment) []core.Attachment {
	if atts == nil {
		return []core.Attachment{}
	}
	return atts
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
