// Package report computes the derived figures the views display: daily and
// monthly totals, category breakdowns, budget comparisons and dense daily
// series. Every function is a pure fold over its inputs; nothing here does
// I/O or mutates the transaction slice it is given.
package report

import (
	"kakeibo/internal/core"
)

type (
	// Totals is the income/expense/balance triple for one day or month.
	Totals struct {
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
		Balance core.Money `json:"balance"`
	}

	// DayPoint is one chart point in a daily series.
	DayPoint struct {
		Day     int        `json:"day"`
		Income  core.Money `json:"income"`
		Expense core.Money `json:"expense"`
	}

	// Comparison sets a category's actual spend against its budget.
	// Unbudgeted (budget exactly 0) is a distinct state from a budget
	// that is fully used; UsageRate is only meaningful when Unbudgeted
	// is false.
	Comparison struct {
		Budget    core.Money `json:"budgetAmount"`
		Actual    core.Money `json:"actualAmount"`
		Remaining core.Money `json:"remaining"`
		// UsageRate is actual/budget in percent, unrounded. Rounding to
		// one decimal happens at the presentation layer only.
		UsageRate  float64 `json:"usageRate"`
		Unbudgeted bool    `json:"unbudgeted"`
	}
)

// DailyTotals sums the transactions that fall on the given date.
// A day with no activity yields all zeros.
func DailyTotals(txs []core.Transaction, date core.Date) Totals {
	var t Totals
	for _, tx := range txs {
		if tx.Date != date {
			continue
		}
		switch tx.Type {
		case core.Income:
			t.Income += tx.Amount
		case core.Expense:
			t.Expense += tx.Amount
		}
	}
	t.Balance = t.Income - t.Expense
	return t
}

// MonthlyTotals sums the transactions whose date falls within the given
// month, bounds inclusive.
func MonthlyTotals(txs []core.Transaction, year, month int) Totals {
	first, last := core.MonthRange(year, month)
	var t Totals
	for _, tx := range txs {
		if tx.Date < first || tx.Date > last {
			continue
		}
		switch tx.Type {
		case core.Income:
			t.Income += tx.Amount
		case core.Expense:
			t.Expense += tx.Amount
		}
	}
	t.Balance = t.Income - t.Expense
	return t
}

// CategoryBreakdown sums amounts per category for one transaction type.
// The caller is expected to have filtered txs to the period of interest
// already. Categories with no matching transactions are absent from the
// result, never present with a zero value.
func CategoryBreakdown(txs []core.Transaction, ty core.TxType) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, tx := range txs {
		if tx.Type != ty {
			continue
		}
		out[tx.Category] += tx.Amount
	}
	return out
}

// BudgetComparison sets each category's actual spend against the budget
// map. Categories appearing in either input appear in the result, so a
// budgeted category with no spend still shows up with Actual 0.
func BudgetComparison(breakdown map[string]core.Money, budgets map[string]core.Money) map[string]Comparison {
	out := make(map[string]Comparison, len(breakdown))
	for category, actual := range breakdown {
		out[category] = compare(budgets[category], actual)
	}
	for category, budget := range budgets {
		if _, seen := out[category]; !seen {
			out[category] = compare(budget, 0)
		}
	}
	return out
}

func compare(budget, actual core.Money) Comparison {
	c := Comparison{
		Budget:    budget,
		Actual:    actual,
		Remaining: budget - actual,
	}
	if budget == 0 {
		c.Unbudgeted = true
		return c
	}
	c.UsageRate = float64(actual) / float64(budget) * 100
	return c
}

// DailySeries produces one point per calendar day of the month, zero-activity
// days included. Charts need a dense series, one point per day.
func DailySeries(txs []core.Transaction, year, month int) []DayPoint {
	days := core.DaysInMonth(year, month)
	series := make([]DayPoint, days)
	for i := range series {
		series[i].Day = i + 1
	}
	first, last := core.MonthRange(year, month)
	for _, tx := range txs {
		if tx.Date < first || tx.Date > last {
			continue
		}
		day := tx.Date.Day()
		if day < 1 || day > days {
			continue
		}
		switch tx.Type {
		case core.Income:
			series[day-1].Income += tx.Amount
		case core.Expense:
			series[day-1].Expense += tx.Amount
		}
	}
	return series
}
