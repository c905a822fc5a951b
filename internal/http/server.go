package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kakeibo/internal/cache"
	applog "kakeibo/internal/log"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

// AttachmentStore is the slice of the local repository the attachment
// endpoints read from.
type AttachmentStore interface {
	GetAttachment(ctx context.Context, ownerID, id string) (*storage.AttachmentRecord, error)
	ListAttachments(ctx context.Context, ownerID string) ([]storage.AttachmentRecord, error)
}

type Server struct {
	http.Server

	transactions *services.TransactionService
	budgets      *services.BudgetService
	attachments  AttachmentStore

	rateLimiter *rateLimiter
	logs        *applog.StructuredLogger

	// Cached serialized report responses, invalidated whenever a
	// transaction write touches the report's month.
	reportCache *cache.LRUCache[[]byte]
	sweeper     *cache.Sweeper

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run http.Server.
func NewServer(addr string, tx *services.TransactionService, budgets *services.BudgetService, attachments AttachmentStore, cacheSize int, cacheTTL time.Duration) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		transactions: tx,
		budgets:      budgets,
		attachments:  attachments,
		rateLimiter:  newRateLimiter(),
		logs:         applog.NewStructuredLogger(applog.New(applog.Config{Component: applog.ComponentHTTP})),
		reportCache:  cache.NewLRUCache[[]byte](cacheSize, cacheTTL),
		sweeper:      cache.NewSweeper(cacheTTL),
	}
	s.sweeper.Register(s.reportCache)
	s.sweeper.Start()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/transactions", s.withMiddleware(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.withMiddleware(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/{id}", s.withMiddleware(s.handleGetTransaction))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.withMiddleware(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withMiddleware(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/transactions/{id}/attachments", s.withMiddleware(s.handleListAttachments))
	mux.HandleFunc("GET /api/transactions/{id}/attachments/{attachmentID}", s.withMiddleware(s.handleGetAttachment))

	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.handleListCategories))

	mux.HandleFunc("GET /api/budgets", s.withMiddleware(s.handleGetBudget))
	mux.HandleFunc("PUT /api/budgets", s.withMiddleware(s.handleUpdateBudget))
	mux.HandleFunc("GET /api/budgets/all", s.withMiddleware(s.handleLoadAllBudgets))
	mux.HandleFunc("GET /api/budgets/site/{siteID}", s.withMiddleware(s.handleListBudgetsBySite))
	mux.HandleFunc("POST /api/budgets/resync", s.withMiddleware(s.handleResyncBudgets))

	mux.HandleFunc("GET /api/reports/daily", s.withMiddleware(s.handleDailyReport))
	mux.HandleFunc("GET /api/reports/monthly", s.withMiddleware(s.handleMonthlyReport))
	mux.HandleFunc("GET /api/reports/categories", s.withMiddleware(s.handleCategoryReport))
	mux.HandleFunc("GET /api/reports/daily-series", s.withMiddleware(s.handleDailySeries))
	mux.HandleFunc("POST /api/reports/budget-comparison", s.withMiddleware(s.handleBudgetComparison))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		s.sweeper.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withMiddleware adds security headers, rate limiting and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, applog.LoggerContextKey,
			applog.New(applog.Config{Component: applog.ComponentHTTP}).With(applog.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		s.logs.LogHTTPStart(ctx, r, clientIP)

		if isWrite(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logs.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
