package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kakeibo/internal/core"
	applog "kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps the service layer's sentinel errors to HTTP status
// codes. Anything unrecognized is a 500 with a generic body.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidSite),
		errors.Is(err, core.ErrContentTooLong),
		errors.Is(err, core.ErrTooManyFiles),
		errors.Is(err, core.ErrEmptyFile),
		errors.Is(err, services.ErrUnsupportedFileType),
		errors.Is(err, services.ErrFileTooLarge):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrCloudUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Handler error", "error", err, "url", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseYearMonth extracts year and month from query parameters.
// Returns current year/month as defaults if not provided or invalid.
func parseYearMonth(r *http.Request) (year, month int) {
	now := time.Now()
	year = now.Year()
	month = int(now.Month())

	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 1 && m <= 12 {
			month = m
		}
	}

	return year, month
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// round1 rounds a percentage to one decimal for presentation.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func reportCacheKey(year, month int, name string) string {
	return fmt.Sprintf("report:%04d-%02d:%s", year, month, name)
}

// invalidateReports drops every cached report for the month the given date
// falls in.
func (s *Server) invalidateReports(date core.Date) {
	prefix := fmt.Sprintf("report:%04d-%02d", date.Year(), date.Month())
	if n := s.reportCache.DeletePrefix(prefix); n > 0 {
		slog.Debug("Report cache invalidated", "prefix", prefix, "entries", n)
	}
}
