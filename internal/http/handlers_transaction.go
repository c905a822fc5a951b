package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"kakeibo/internal/core"
	"kakeibo/internal/services"
)

const maxMultipartMemory = 32 << 20

type createTransactionResponse struct {
	Transaction *core.Transaction    `json:"transaction"`
	Images      *services.SaveReport `json:"images,omitempty"`
	Documents   *services.SaveReport `json:"documents,omitempty"`
	Summary     string               `json:"summary"`
	SaveError   string               `json:"saveError,omitempty"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	amount, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("amount")), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	in := services.CreateInput{
		Type:     core.TxType(sanitizeInput(r.FormValue("type"))),
		Amount:   core.Money(amount),
		Category: sanitizeInput(r.FormValue("category")),
		Content:  sanitizeInput(r.FormValue("content")),
		Date:     core.Date(strings.TrimSpace(r.FormValue("date"))),
	}

	if in.Images, err = readUploads(r, "images"); err != nil {
		writeError(w, http.StatusBadRequest, "could not read image upload")
		return
	}
	if in.Documents, err = readUploads(r, "documents"); err != nil {
		writeError(w, http.StatusBadRequest, "could not read document upload")
		return
	}

	result, err := s.transactions.Create(r.Context(), in)
	if result == nil {
		writeServiceError(w, r, err)
		return
	}

	s.invalidateReports(result.Transaction.Date)

	resp := createTransactionResponse{
		Transaction: result.Transaction,
		Images:      result.Images,
		Documents:   result.Documents,
	}

	// One combined count line across both attachment kinds.
	combined := &services.SaveReport{}
	combined.Merge(result.Images)
	combined.Merge(result.Documents)
	resp.Summary = combined.Summary()

	if err != nil {
		// The record is persisted; a failed attachment batch rides along
		// in the response instead of failing the request.
		if errors.Is(err, services.ErrAllSavesFailed) {
			resp.SaveError = services.ErrAllSavesFailed.Error()
		} else {
			resp.SaveError = err.Error()
		}
		slog.WarnContext(r.Context(), "Attachment save incomplete",
			"transaction_id", result.Transaction.ID, "error", err)
	}

	tx := result.Transaction
	s.logs.LogTransactionSaved(r.Context(), tx.ID, string(tx.Type), tx.Category, int64(tx.Amount),
		combined.CloudCount, combined.LocalCount, combined.FailedCount)

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if v := strings.TrimSpace(r.URL.Query().Get("date")); v != "" {
		date := core.Date(v)
		if err := date.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		txs, err := s.transactions.ListByDate(r.Context(), date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, txs)
		return
	}

	year, month := parseYearMonth(r)
	txs, err := s.transactions.ListByMonth(r.Context(), year, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.transactions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type updateTransactionRequest struct {
	Type      *string            `json:"type"`
	Amount    *int64             `json:"amount"`
	Category  *string            `json:"category"`
	Content   *string            `json:"content"`
	Date      *string            `json:"date"`
	Images    *[]core.Attachment `json:"images"`
	Documents *[]core.Attachment `json:"documents"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	patch, ok := s.readUpdatePatch(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")

	// The months of the old and new date both need cache invalidation.
	before, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	tx, err := s.transactions.Update(r.Context(), id, patch)
	if tx == nil {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		// The patch applied; only newly added attachments were lost.
		slog.WarnContext(r.Context(), "Attachment save incomplete on update",
			"transaction_id", id, "error", err)
	}

	s.invalidateReports(before.Date)
	if tx.Date != before.Date {
		s.invalidateReports(tx.Date)
	}

	writeJSON(w, http.StatusOK, tx)
}

// readUpdatePatch builds an UpdatePatch from either a JSON body or a
// multipart form. Multipart is what the upload form sends when an edit
// attaches new files; JSON covers everything else.
func (s *Server) readUpdatePatch(w http.ResponseWriter, r *http.Request) (services.UpdatePatch, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		return s.readMultipartPatch(w, r)
	}

	var req updateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return services.UpdatePatch{}, false
	}

	patch := services.UpdatePatch{
		Images:    req.Images,
		Documents: req.Documents,
	}
	if req.Type != nil {
		ty := core.TxType(*req.Type)
		patch.Type = &ty
	}
	if req.Amount != nil {
		amount := core.Money(*req.Amount)
		patch.Amount = &amount
	}
	if req.Category != nil {
		category := sanitizeInput(*req.Category)
		patch.Category = &category
	}
	if req.Content != nil {
		content := sanitizeInput(*req.Content)
		patch.Content = &content
	}
	if req.Date != nil {
		date := core.Date(strings.TrimSpace(*req.Date))
		patch.Date = &date
	}
	return patch, true
}

func (s *Server) readMultipartPatch(w http.ResponseWriter, r *http.Request) (services.UpdatePatch, bool) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return services.UpdatePatch{}, false
	}

	var patch services.UpdatePatch
	field := func(name string) (string, bool) {
		vs, ok := r.MultipartForm.Value[name]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}

	if v, ok := field("type"); ok {
		ty := core.TxType(sanitizeInput(v))
		patch.Type = &ty
	}
	if v, ok := field("amount"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid amount")
			return services.UpdatePatch{}, false
		}
		amount := core.Money(n)
		patch.Amount = &amount
	}
	if v, ok := field("category"); ok {
		category := sanitizeInput(v)
		patch.Category = &category
	}
	if v, ok := field("content"); ok {
		content := sanitizeInput(v)
		patch.Content = &content
	}
	if v, ok := field("date"); ok {
		date := core.Date(strings.TrimSpace(v))
		patch.Date = &date
	}

	var err error
	if patch.AddImages, err = readUploads(r, "images"); err != nil {
		writeError(w, http.StatusBadRequest, "could not read image upload")
		return services.UpdatePatch{}, false
	}
	if patch.AddDocuments, err = readUploads(r, "documents"); err != nil {
		writeError(w, http.StatusBadRequest, "could not read document upload")
		return services.UpdatePatch{}, false
	}
	return patch, true
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	tx, err := s.transactions.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := s.transactions.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.invalidateReports(tx.Date)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ty := core.TxType(strings.TrimSpace(r.URL.Query().Get("type")))
	if ty != core.Income && ty != core.Expense {
		writeError(w, http.StatusBadRequest, "type must be income or expense")
		return
	}
	writeJSON(w, http.StatusOK, core.Categories(ty))
}

// readUploads reads every file under the given multipart field into memory.
func readUploads(r *http.Request, field string) ([]core.FileUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	var uploads []core.FileUpload
	for _, header := range r.MultipartForm.File[field] {
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, core.FileUpload{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}
