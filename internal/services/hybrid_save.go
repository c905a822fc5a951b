package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kakeibo/internal/cloud"
	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// SaveMethod records which store accepted a file. The "firebase" value is
// the wire form the existing cloud data already uses for cloud-resident
// attachments, so it is kept as-is.
type SaveMethod string

const (
	SaveMethodCloud  SaveMethod = "firebase"
	SaveMethodLocal  SaveMethod = "local"
	SaveMethodFailed SaveMethod = "failed"
)

var (
	// ErrNoOwner means attachments were submitted for a record that has
	// no id yet. The owning record must be persisted first.
	ErrNoOwner = errors.New("owner id is required before saving attachments")

	// ErrAllSavesFailed means every file in a batch exhausted both
	// stores. Partial failure is not an error; total failure is, because
	// it is real data loss the caller must surface.
	ErrAllSavesFailed = errors.New("all file saves failed")
)

type (
	// FileOutcome is the per-file result of a hybrid save. Exactly one of
	// AttachmentID and URL is set on success; Err is set when Method is
	// SaveMethodFailed.
	FileOutcome struct {
		FileName     string     `json:"fileName"`
		Method       SaveMethod `json:"saveMethod"`
		AttachmentID string     `json:"id,omitempty"`
		URL          string     `json:"url,omitempty"`
		Err          error      `json:"-"`
	}

	// SaveReport is the outcome of one save batch. Outcomes[i] always
	// corresponds to the i-th input file, whatever order the saves
	// completed in.
	SaveReport struct {
		Outcomes    []FileOutcome `json:"outcomes"`
		CloudCount  int           `json:"cloudCount"`
		LocalCount  int           `json:"localCount"`
		FailedCount int           `json:"failedCount"`
	}

	// LocalAttachmentStore is the slice of the local repository the saver
	// needs: the fallback write.
	LocalAttachmentStore interface {
		PutAttachment(ctx context.Context, ownerID string, kind storage.AttachmentKind, file core.FileUpload) (string, error)
	}

	// HybridSaver persists a batch of files, cloud first with a local
	// fallback per file, and reports which store took each one.
	HybridSaver struct {
		local       LocalAttachmentStore
		remote      cloud.ObjectStore
		concurrency int
	}
)

const defaultSaveConcurrency = 4

func NewHybridSaver(local LocalAttachmentStore, remote cloud.ObjectStore) *HybridSaver {
	return &HybridSaver{
		local:       local,
		remote:      remote,
		concurrency: defaultSaveConcurrency,
	}
}

// SaveBatch persists each file independently: cloud first, local on any
// cloud failure. One file failing both stores does not stop the rest. The
// returned error is ErrAllSavesFailed only when every file failed; partial
// success returns a nil error and a report the caller must inspect.
func (s *HybridSaver) SaveBatch(ctx context.Context, ownerID string, kind storage.AttachmentKind, files []core.FileUpload) (*SaveReport, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}

	report := &SaveReport{Outcomes: make([]FileOutcome, len(files))}
	if len(files) == 0 {
		return report, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, file := range files {
		g.Go(func() error {
			report.Outcomes[i] = s.saveOne(ctx, ownerID, kind, file)
			return nil
		})
	}
	// Workers never return errors; failures live in the outcomes.
	_ = g.Wait()

	for _, out := range report.Outcomes {
		switch out.Method {
		case SaveMethodCloud:
			report.CloudCount++
		case SaveMethodLocal:
			report.LocalCount++
		default:
			report.FailedCount++
		}
	}

	slog.InfoContext(ctx, "Attachment batch saved",
		"owner_id", ownerID,
		"kind", kind,
		"cloud", report.CloudCount,
		"local", report.LocalCount,
		"failed", report.FailedCount)

	if report.FailedCount == len(files) {
		return report, ErrAllSavesFailed
	}
	return report, nil
}

func (s *HybridSaver) saveOne(ctx context.Context, ownerID string, kind storage.AttachmentKind, file core.FileUpload) FileOutcome {
	out := FileOutcome{FileName: file.Name}
	if err := file.Validate(); err != nil {
		out.Method = SaveMethodFailed
		out.Err = err
		return out
	}

	objectName := fmt.Sprintf("%s/%s_%s", ownerID, uuid.NewString(), file.Name)
	url, remoteErr := s.remote.Upload(ctx, objectName, file.ContentType, file.Data)
	if remoteErr == nil {
		out.Method = SaveMethodCloud
		out.URL = url
		return out
	}

	slog.WarnContext(ctx, "Cloud save failed, falling back to local store",
		"owner_id", ownerID,
		"file_name", file.Name,
		"error", remoteErr)

	id, localErr := s.local.PutAttachment(ctx, ownerID, kind, file)
	if localErr == nil {
		out.Method = SaveMethodLocal
		out.AttachmentID = id
		return out
	}

	slog.ErrorContext(ctx, "File save exhausted both stores",
		"owner_id", ownerID,
		"file_name", file.Name,
		"remote_error", remoteErr,
		"local_error", localErr)

	out.Method = SaveMethodFailed
	out.Err = errors.Join(remoteErr, localErr)
	return out
}

// Attachments converts the successful outcomes, in input order, into the
// tagged references the transaction record stores. Failed files yield
// nothing here; they are already reflected in the counts.
func (r *SaveReport) Attachments() []core.Attachment {
	var atts []core.Attachment
	for _, out := range r.Outcomes {
		switch out.Method {
		case SaveMethodCloud:
			atts = append(atts, core.Attachment{Kind: core.AttachmentRemote, URL: out.URL})
		case SaveMethodLocal:
			atts = append(atts, core.Attachment{Kind: core.AttachmentLocal, ID: out.AttachmentID})
		}
	}
	return atts
}

// Summary renders the user-facing count line. The three states must stay
// distinguishable: saved to cloud, saved locally (cloud pending), failed.
func (r *SaveReport) Summary() string {
	return fmt.Sprintf("クラウド保存: %d件 / ローカル保存: %d件 / 保存失敗: %d件",
		r.CloudCount, r.LocalCount, r.FailedCount)
}

// Merge folds another report into this one. Used when images and documents
// are saved as separate batches but reported as one result.
func (r *SaveReport) Merge(other *SaveReport) {
	if other == nil {
		return
	}
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
	r.CloudCount += other.CloudCount
	r.LocalCount += other.LocalCount
	r.FailedCount += other.FailedCount
}
