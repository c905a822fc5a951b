package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kakeibo/internal/core"
)

func (r *SQLiteRepository) GetBudget(ctx context.Context, key string) (*core.BudgetSetting, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT site_id, year, month, monthly_budget, savings_goal
		FROM budget_settings WHERE key = ?`, key)
	b, err := scanBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// UpsertBudget creates or overwrites the setting under its composite key.
// Last write wins; there is no versioning.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.BudgetSetting) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_settings (key, site_id, year, month, monthly_budget, savings_goal, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			monthly_budget = excluded.monthly_budget,
			savings_goal = excluded.savings_goal,
			updated_at = excluded.updated_at`,
		b.Key(), b.SiteID, b.Year, b.Month, int64(b.MonthlyBudget), int64(b.SavingsGoal),
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context) (map[string]core.BudgetSetting, error) {
	return r.listBudgets(ctx, `
		SELECT site_id, year, month, monthly_budget, savings_goal
		FROM budget_settings`)
}

func (r *SQLiteRepository) ListBudgetsBySite(ctx context.Context, siteID string) (map[string]core.BudgetSetting, error) {
	return r.listBudgets(ctx, `
		SELECT site_id, year, month, monthly_budget, savings_goal
		FROM budget_settings WHERE site_id = ?`, siteID)
}

func (r *SQLiteRepository) listBudgets(ctx context.Context, query string, args ...any) (map[string]core.BudgetSetting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]core.BudgetSetting)
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out[b.Key()] = *b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return out, nil
}

// ReplaceAllBudgets swaps the entire local map for the given one in a single
// transaction, so a concurrent reader never observes a half-applied swap.
// Used by the merge write-back and by force-resync.
func (r *SQLiteRepository) ReplaceAllBudgets(ctx context.Context, budgets map[string]core.BudgetSetting) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace budgets: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_settings`); err != nil {
		return fmt.Errorf("clear budgets: %w", err)
	}

	now := formatTime(time.Now())
	for key, b := range budgets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO budget_settings (key, site_id, year, month, monthly_budget, savings_goal, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			key, b.SiteID, b.Year, b.Month, int64(b.MonthlyBudget), int64(b.SavingsGoal), now)
		if err != nil {
			return fmt.Errorf("insert budget %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace budgets: %w", err)
	}
	return nil
}

func scanBudget(row rowScanner) (*core.BudgetSetting, error) {
	var (
		b               core.BudgetSetting
		budget, savings int64
	)
	if err := row.Scan(&b.SiteID, &b.Year, &b.Month, &budget, &savings); err != nil {
		return nil, err
	}
	b.MonthlyBudget = core.Money(budget)
	b.SavingsGoal = core.Money(savings)
	return &b, nil
}
