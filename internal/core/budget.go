package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type (
	// BudgetSetting holds the monthly budget figures for one site in one
	// month. The zero value of MonthlyBudget means "unbudgeted".
	BudgetSetting struct {
		SiteID        string `json:"siteId"`
		Year          int    `json:"year"`
		Month         int    `json:"month"`
		MonthlyBudget Money  `json:"monthlyBudget"`
		SavingsGoal   Money  `json:"savingsGoal"`
	}

	// SyncState reports the fate of one half of a hybrid write.
	SyncState string

	// SyncResult reports both halves of a store-mutating call, so callers
	// can decide policy (warn, retry) instead of the store swallowing the
	// remote outcome silently.
	SyncResult struct {
		Local  SyncState `json:"local"`
		Remote SyncState `json:"remote"`
	}
)

const (
	SyncOK      SyncState = "ok"
	SyncError   SyncState = "error"
	SyncSkipped SyncState = "skipped"
)

var (
	ErrInvalidSite      = errors.New("invalid site id")
	ErrInvalidBudgetKey = errors.New("invalid budget key")
)

// BudgetKey builds the composite "YYYY-MM_siteId" key a setting is stored
// under, locally and in the cloud collection alike.
func BudgetKey(year, month int, siteID string) string {
	return fmt.Sprintf("%04d-%02d_%s", year, month, siteID)
}

// Key returns the setting's own composite key.
func (b BudgetSetting) Key() string {
	return BudgetKey(b.Year, b.Month, b.SiteID)
}

func (b BudgetSetting) Validate() error {
	if strings.TrimSpace(b.SiteID) == "" {
		return ErrInvalidSite
	}
	if b.Year < 1 || b.Month < 1 || b.Month > 12 {
		return ErrInvalidDate
	}
	if b.MonthlyBudget < 0 || b.SavingsGoal < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ParseBudgetKey splits a "YYYY-MM_siteId" key back into its components.
// Site ids may themselves contain underscores, so only the first underscore
// after the month separates key parts.
func ParseBudgetKey(key string) (year, month int, siteID string, err error) {
	prefix, site, found := strings.Cut(key, "_")
	if !found || site == "" {
		return 0, 0, "", ErrInvalidBudgetKey
	}
	ys, ms, found := strings.Cut(prefix, "-")
	if !found {
		return 0, 0, "", ErrInvalidBudgetKey
	}
	y, yerr := strconv.Atoi(ys)
	m, merr := strconv.Atoi(ms)
	if yerr != nil || merr != nil || y < 1 || m < 1 || m > 12 {
		return 0, 0, "", ErrInvalidBudgetKey
	}
	return y, m, site, nil
}
