package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"kakeibo/internal/cloud/memory"
	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// fakeLocalStore is an in-memory LocalAttachmentStore with an error switch
// to simulate quota exhaustion.
type fakeLocalStore struct {
	mu     sync.Mutex
	next   int
	err    error
	stored []string // file names in put order
}

func (f *fakeLocalStore) PutAttachment(_ context.Context, ownerID string, _ storage.AttachmentKind, file core.FileUpload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.next++
	f.stored = append(f.stored, file.Name)
	return fmt.Sprintf("local-%s-%d", ownerID, f.next), nil
}

func uploads(names ...string) []core.FileUpload {
	var files []core.FileUpload
	for _, n := range names {
		files = append(files, core.FileUpload{Name: n, ContentType: "image/jpeg", Data: []byte("payload-" + n)})
	}
	return files
}

func TestSaveBatchRequiresOwner(t *testing.T) {
	saver := NewHybridSaver(&fakeLocalStore{}, memory.NewObjectStore())
	if _, err := saver.SaveBatch(context.Background(), "", storage.KindImage, uploads("a.jpg")); !errors.Is(err, ErrNoOwner) {
		t.Fatalf("expected ErrNoOwner, got %v", err)
	}
}

func TestSaveBatchEmpty(t *testing.T) {
	saver := NewHybridSaver(&fakeLocalStore{}, memory.NewObjectStore())
	report, err := saver.SaveBatch(context.Background(), "t1", storage.KindImage, nil)
	if err != nil || len(report.Outcomes) != 0 {
		t.Fatalf("empty batch: %+v, %v", report, err)
	}
}

func TestSaveBatchOrderAndFallback(t *testing.T) {
	remote := memory.NewObjectStore()
	remote.FailUploads("b.jpg", "d.jpg")
	saver := NewHybridSaver(&fakeLocalStore{}, remote)

	files := uploads("a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")
	report, err := saver.SaveBatch(context.Background(), "t1", storage.KindImage, files)
	if err != nil {
		t.Fatalf("partial fallback must not be an error: %v", err)
	}
	if len(report.Outcomes) != len(files) {
		t.Fatalf("outcome count = %d, want %d", len(report.Outcomes), len(files))
	}
	for i, out := range report.Outcomes {
		if out.FileName != files[i].Name {
			t.Fatalf("outcome %d is %q, want %q: order must match input", i, out.FileName, files[i].Name)
		}
	}
	wantLocal := map[int]bool{1: true, 3: true}
	for i, out := range report.Outcomes {
		if wantLocal[i] {
			if out.Method != SaveMethodLocal || out.AttachmentID == "" || out.URL != "" {
				t.Fatalf("outcome %d should be local: %+v", i, out)
			}
		} else {
			if out.Method != SaveMethodCloud || out.URL == "" || out.AttachmentID != "" {
				t.Fatalf("outcome %d should be cloud: %+v", i, out)
			}
		}
	}
	if report.CloudCount != 3 || report.LocalCount != 2 || report.FailedCount != 0 {
		t.Fatalf("counts: %+v", report)
	}
}

func TestSaveBatchFailureIsolation(t *testing.T) {
	remote := memory.NewObjectStore()
	remote.FailUploads("b.jpg")
	local := &fakeLocalStore{err: storage.ErrQuotaExceeded}
	saver := NewHybridSaver(local, remote)

	report, err := saver.SaveBatch(context.Background(), "t1", storage.KindImage, uploads("a.jpg", "b.jpg", "c.jpg"))
	if err != nil {
		t.Fatalf("one failed file must not fail the batch: %v", err)
	}
	if report.CloudCount != 2 || report.FailedCount != 1 {
		t.Fatalf("counts: %+v", report)
	}
	out := report.Outcomes[1]
	if out.Method != SaveMethodFailed || !errors.Is(out.Err, storage.ErrQuotaExceeded) {
		t.Fatalf("quota failure must be visible in the outcome: %+v", out)
	}
}

func TestSaveBatchTotalFailure(t *testing.T) {
	remote := memory.NewObjectStore()
	remote.SetUnavailable(true)
	saver := NewHybridSaver(&fakeLocalStore{err: storage.ErrQuotaExceeded}, remote)

	report, err := saver.SaveBatch(context.Background(), "t1", storage.KindImage, uploads("a.jpg", "b.jpg"))
	if !errors.Is(err, ErrAllSavesFailed) {
		t.Fatalf("expected ErrAllSavesFailed, got %v", err)
	}
	if report == nil || report.FailedCount != 2 {
		t.Fatalf("report: %+v", report)
	}
}

func TestSaveReportSummary(t *testing.T) {
	remote := memory.NewObjectStore()
	remote.FailUploads("b.jpg")
	saver := NewHybridSaver(&fakeLocalStore{}, remote)

	report, err := saver.SaveBatch(context.Background(), "t1", storage.KindImage, uploads("a.jpg", "b.jpg"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	summary := report.Summary()
	if !strings.Contains(summary, "クラウド保存: 1件") || !strings.Contains(summary, "ローカル保存: 1件") {
		t.Fatalf("summary must report cloud and local counts: %q", summary)
	}
}

func TestSaveReportAttachments(t *testing.T) {
	report := &SaveReport{Outcomes: []FileOutcome{
		{FileName: "a.jpg", Method: SaveMethodCloud, URL: "https://x/a"},
		{FileName: "b.jpg", Method: SaveMethodFailed, Err: errors.New("gone")},
		{FileName: "c.jpg", Method: SaveMethodLocal, AttachmentID: "l1"},
	}}
	atts := report.Attachments()
	if len(atts) != 2 {
		t.Fatalf("failed files must not produce references: %v", atts)
	}
	if atts[0] != (core.Attachment{Kind: core.AttachmentRemote, URL: "https://x/a"}) {
		t.Fatalf("first attachment: %+v", atts[0])
	}
	if atts[1] != (core.Attachment{Kind: core.AttachmentLocal, ID: "l1"}) {
		t.Fatalf("second attachment: %+v", atts[1])
	}
}
