package http

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"kakeibo/internal/storage"
)

// attachmentMeta is the list view of a stored attachment: everything but
// the payload.
type attachmentMeta struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
	Source     string    `json:"source"`
}

type attachmentPayload struct {
	attachmentMeta
	// Data is base64; the payload only takes this shape at the HTTP
	// boundary, storage keeps raw bytes.
	Data string `json:"data"`
}

func toMeta(rec storage.AttachmentRecord) attachmentMeta {
	return attachmentMeta{
		ID:         rec.ID,
		Kind:       string(rec.Kind),
		FileName:   rec.FileName,
		FileType:   rec.FileType,
		Size:       rec.Size,
		UploadedAt: rec.UploadedAt,
		Source:     rec.Source,
	}
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	records, err := s.attachments.ListAttachments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	metas := make([]attachmentMeta, 0, len(records))
	for _, rec := range records {
		metas = append(metas, toMeta(rec))
	}
	writeJSON(w, http.StatusOK, metas)
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	rec, err := s.attachments.GetAttachment(r.Context(), r.PathValue("id"), r.PathValue("attachmentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// ?raw=1 streams the original bytes instead of the JSON envelope.
	if r.URL.Query().Get("raw") == "1" {
		w.Header().Set("Content-Type", rec.FileType)
		w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rec.Payload)
		return
	}

	writeJSON(w, http.StatusOK, attachmentPayload{
		attachmentMeta: toMeta(*rec),
		Data:           base64.StdEncoding.EncodeToString(rec.Payload),
	})
}
