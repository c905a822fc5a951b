package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"kakeibo/internal/core"
)

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	siteID := sanitizeInput(r.URL.Query().Get("site"))
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "site is required")
		return
	}

	setting, err := s.budgets.Get(r.Context(), year, month, siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if setting == nil {
		writeError(w, http.StatusNotFound, "no budget setting for that month and site")
		return
	}
	writeJSON(w, http.StatusOK, setting)
}

type updateBudgetResponse struct {
	Budget core.BudgetSetting `json:"budget"`
	Sync   core.SyncResult    `json:"sync"`
}

func (s *Server) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	var setting core.BudgetSetting
	if err := json.NewDecoder(r.Body).Decode(&setting); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	setting.SiteID = sanitizeInput(setting.SiteID)

	sync, err := s.budgets.Update(r.Context(), setting)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updateBudgetResponse{Budget: setting, Sync: sync})
}

type allBudgetsResponse struct {
	Budgets map[string]core.BudgetSetting `json:"budgets"`
	Sync    core.SyncResult               `json:"sync"`
}

func (s *Server) handleLoadAllBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, sync, err := s.budgets.LoadAll(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allBudgetsResponse{Budgets: budgets, Sync: sync})
}

func (s *Server) handleListBudgetsBySite(w http.ResponseWriter, r *http.Request) {
	siteID := strings.TrimSpace(r.PathValue("siteID"))
	if siteID == "" {
		writeError(w, http.StatusBadRequest, "site is required")
		return
	}

	budgets, err := s.budgets.ListBySite(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleResyncBudgets(w http.ResponseWriter, r *http.Request) {
	sync, err := s.budgets.ForceResync(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]core.SyncResult{"sync": sync})
}
