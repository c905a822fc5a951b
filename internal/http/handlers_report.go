package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"kakeibo/internal/core"
	"kakeibo/internal/report"
)

// cachedReport serves a serialized report from the LRU cache, building and
// caching it on a miss.
func (s *Server) cachedReport(w http.ResponseWriter, r *http.Request, key string, build func() (any, error)) {
	if data, ok := s.reportCache.Get(key); ok {
		slog.DebugContext(r.Context(), "Report cache hit", "key", key)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	v, err := build()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.reportCache.Set(key, data)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type dailyReportResponse struct {
	Date   core.Date     `json:"date"`
	Totals report.Totals `json:"totals"`
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	date := core.Date(strings.TrimSpace(r.URL.Query().Get("date")))
	if err := date.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	txs, err := s.transactions.ListByDate(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dailyReportResponse{
		Date:   date,
		Totals: report.DailyTotals(txs, date),
	})
}

type monthlyReportResponse struct {
	Year   int           `json:"year"`
	Month  int           `json:"month"`
	Totals report.Totals `json:"totals"`
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	s.cachedReport(w, r, reportCacheKey(year, month, "monthly"), func() (any, error) {
		txs, err := s.transactions.ListByMonth(r.Context(), year, month)
		if err != nil {
			return nil, err
		}
		return monthlyReportResponse{
			Year:   year,
			Month:  month,
			Totals: report.MonthlyTotals(txs, year, month),
		}, nil
	})
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	ty := core.TxType(strings.TrimSpace(r.URL.Query().Get("type")))
	if ty != core.Income && ty != core.Expense {
		writeError(w, http.StatusBadRequest, "type must be income or expense")
		return
	}

	s.cachedReport(w, r, reportCacheKey(year, month, "categories:"+string(ty)), func() (any, error) {
		txs, err := s.transactions.ListByMonth(r.Context(), year, month)
		if err != nil {
			return nil, err
		}
		return report.CategoryBreakdown(txs, ty), nil
	})
}

func (s *Server) handleDailySeries(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)

	s.cachedReport(w, r, reportCacheKey(year, month, "series"), func() (any, error) {
		txs, err := s.transactions.ListByMonth(r.Context(), year, month)
		if err != nil {
			return nil, err
		}
		return report.DailySeries(txs, year, month), nil
	})
}

type budgetComparisonRequest struct {
	Year    int                   `json:"year"`
	Month   int                   `json:"month"`
	Type    string                `json:"type"`
	Budgets map[string]core.Money `json:"budgets"`
}

func (s *Server) handleBudgetComparison(w http.ResponseWriter, r *http.Request) {
	var req budgetComparisonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "month must be between 1 and 12")
		return
	}

	ty := core.TxType(req.Type)
	if req.Type == "" {
		ty = core.Expense
	}
	if ty != core.Income && ty != core.Expense {
		writeError(w, http.StatusBadRequest, "type must be income or expense")
		return
	}

	txs, err := s.transactions.ListByMonth(r.Context(), req.Year, req.Month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	comparisons := report.BudgetComparison(report.CategoryBreakdown(txs, ty), req.Budgets)

	// Usage rates leave the engine unrounded; one decimal is presentation
	// policy and applies only here.
	for category, c := range comparisons {
		c.UsageRate = round1(c.UsageRate)
		comparisons[category] = c
	}

	writeJSON(w, http.StatusOK, comparisons)
}
