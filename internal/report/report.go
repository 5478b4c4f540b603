// Package report derives read-only views from ledger snapshots: monthly
// filtering, per-category totals, budget progress and the month option lists
// offered by the overview, budget and breakdown screens.
//
// Every function here is pure. Callers pass the expenses (newest first, as the
// ledger keeps them) and budgets they want to aggregate.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"jizhang/internal/core"
)

// CategoryTotal is the sum of one category's expenses with its display color.
type CategoryTotal struct {
	Category core.Category `json:"category"`
	Total    float64       `json:"total"`
	Color    string        `json:"color"`
}

// BudgetStatus compares a month's spending with its budget.
//
// Progress is capped at 100, so Overspend carries the signed difference
// total-budget that is lost once spending exceeds the budget.
type BudgetStatus struct {
	Month      core.Month `json:"month"`
	HasBudget  bool       `json:"has_budget"`
	Budget     float64    `json:"budget"`
	Total      float64    `json:"total"`
	Progress   float64    `json:"progress"`
	Overspend  float64    `json:"overspend"`
	OverBudget bool       `json:"over_budget"`
	Remaining  float64    `json:"remaining"`
}

// MonthlyExpenses returns the expenses dated within the given calendar month, in source order.
func MonthlyExpenses(expenses []core.Expense, year int, month time.Month) []core.Expense {
	period := core.Month{Year: year, Month: month}
	out := make([]core.Expense, 0)
	for _, e := range expenses {
		if period.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

// CategoryTotals groups expenses by their category label and sums the amounts.
// Entries appear in order of first appearance; categories without expenses are omitted.
// Unrecognized labels keep their own entry and get the Other color.
func CategoryTotals(expenses []core.Expense) []CategoryTotal {
	sums := make(map[core.Category]decimal.Decimal)
	order := make([]core.Category, 0)
	for _, e := range expenses {
		sum, seen := sums[e.Category]
		if !seen {
			order = append(order, e.Category)
		}
		sums[e.Category] = sum.Add(decimal.NewFromFloat(e.Amount))
	}

	out := make([]CategoryTotal, 0, len(order))
	for _, c := range order {
		out = append(out, CategoryTotal{
			Category: c,
			Total:    sums[c].InexactFloat64(),
			Color:    c.Color(),
		})
	}
	return out
}

// Total sums the amounts of all given expenses.
func Total(expenses []core.Expense) float64 {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(decimal.NewFromFloat(e.Amount))
	}
	return sum.InexactFloat64()
}

// Progress is the share of the budget spent, as a percentage in [0, 100].
// A zero budget yields 0.
func Progress(total, budget float64) float64 {
	if budget == 0 {
		return 0
	}
	p := total / budget * 100
	switch {
	case p > 100:
		return 100
	case p < 0:
		return 0
	default:
		return p
	}
}

// BudgetProgress computes the budget status of month over the given expenses.
func BudgetProgress(expenses []core.Expense, budgets core.Budgets, month core.Month) BudgetStatus {
	total := Total(MonthlyExpenses(expenses, month.Year, month.Month))
	status := BudgetStatus{Month: month, Total: total}

	budget, ok := budgets[month]
	if !ok {
		return status
	}

	diff := decimal.NewFromFloat(total).Sub(decimal.NewFromFloat(budget))
	status.HasBudget = true
	status.Budget = budget
	status.Progress = Progress(total, budget)
	status.Overspend = diff.InexactFloat64()
	status.OverBudget = diff.IsPositive()
	status.Remaining = diff.Neg().InexactFloat64()
	return status
}
