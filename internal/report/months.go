package report

import (
	"fmt"
	"slices"
	"time"

	"jizhang/internal/core"
)

// AllTime is the breakdown selection covering every expense.
const AllTime = "all"

const budgetWindow = 12

// MonthOption is one entry of a month picker.
type MonthOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// MonthLabel renders a month as 2024年3月.
func MonthLabel(m core.Month) string {
	return fmt.Sprintf("%d年%d月", m.Year, int(m.Month))
}

// OverviewMonths lists every month from the earliest to the latest expense, most recent first.
// Without expenses it offers only the current month.
func OverviewMonths(expenses []core.Expense, now time.Time) []core.Month {
	if len(expenses) == 0 {
		return []core.Month{core.MonthOf(now)}
	}

	first, last := expenses[0].Date.Period(), expenses[0].Date.Period()
	for _, e := range expenses[1:] {
		p := e.Date.Period()
		if p.Before(first) {
			first = p
		}
		if last.Before(p) {
			last = p
		}
	}

	var months []core.Month
	for m := last; !m.Before(first); m = m.AddMonths(-1) {
		months = append(months, m)
	}
	return months
}

// BudgetMonths lists the months from a year before to a year after now, plus every month
// holding an expense, without duplicates and most recent first.
func BudgetMonths(expenses []core.Expense, now time.Time) []core.Month {
	current := core.MonthOf(now)
	set := make(map[core.Month]struct{}, 2*budgetWindow+1)
	for i := -budgetWindow; i <= budgetWindow; i++ {
		set[current.AddMonths(i)] = struct{}{}
	}
	for _, e := range expenses {
		set[e.Date.Period()] = struct{}{}
	}
	return sortedDesc(set)
}

// BreakdownOptions is the all-time option followed by the overview months.
func BreakdownOptions(expenses []core.Expense, now time.Time) []MonthOption {
	opts := []MonthOption{{Value: AllTime, Label: "所有时间"}}
	return append(opts, Options(OverviewMonths(expenses, now))...)
}

// Options converts months to picker entries.
func Options(months []core.Month) []MonthOption {
	out := make([]MonthOption, 0, len(months))
	for _, m := range months {
		out = append(out, MonthOption{Value: m.String(), Label: MonthLabel(m)})
	}
	return out
}

func sortedDesc(set map[core.Month]struct{}) []core.Month {
	months := make([]core.Month, 0, len(set))
	for m := range set {
		months = append(months, m)
	}
	slices.SortFunc(months, func(a, b core.Month) int {
		switch {
		case a == b:
			return 0
		case b.Before(a):
			return -1
		default:
			return 1
		}
	})
	return months
}
