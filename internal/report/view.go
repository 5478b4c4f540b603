package report

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"jizhang/internal/core"
)

var printer = message.NewPrinter(language.SimplifiedChinese)

// OverviewView is everything the monthly overview screen shows.
type OverviewView struct {
	Month      core.Month      `json:"month"`
	Label      string          `json:"label"`
	Expenses   []core.Expense  `json:"expenses"`
	Total      float64         `json:"total"`
	Categories []CategoryTotal `json:"categories"`
	Budget     BudgetStatus    `json:"budget"`
	Message    string          `json:"message"`
}

// BreakdownView is the category distribution for a month or for all time.
type BreakdownView struct {
	Selection  string          `json:"selection"`
	Label      string          `json:"label"`
	Total      float64         `json:"total"`
	Categories []CategoryTotal `json:"categories"`
}

// Overview builds the overview of month.
func Overview(expenses []core.Expense, budgets core.Budgets, month core.Month) OverviewView {
	monthly := MonthlyExpenses(expenses, month.Year, month.Month)
	status := BudgetProgress(expenses, budgets, month)
	return OverviewView{
		Month:      month,
		Label:      MonthLabel(month),
		Expenses:   monthly,
		Total:      status.Total,
		Categories: CategoryTotals(monthly),
		Budget:     status,
		Message:    BudgetMessage(status),
	}
}

// Breakdown builds the category distribution for selection, either AllTime or a YYYY-MM month.
func Breakdown(expenses []core.Expense, selection string) (BreakdownView, error) {
	if selection == "" || selection == AllTime {
		return BreakdownView{
			Selection:  AllTime,
			Label:      "所有时间",
			Total:      Total(expenses),
			Categories: CategoryTotals(expenses),
		}, nil
	}

	month, err := core.ParseMonth(selection)
	if err != nil {
		return BreakdownView{}, err
	}
	monthly := MonthlyExpenses(expenses, month.Year, month.Month)
	return BreakdownView{
		Selection:  month.String(),
		Label:      MonthLabel(month),
		Total:      Total(monthly),
		Categories: CategoryTotals(monthly),
	}, nil
}

// BudgetMessage is the over/under budget line shown under the progress bar.
func BudgetMessage(s BudgetStatus) string {
	if !s.HasBudget {
		return "本月未设置预算。"
	}
	amount := decimal.NewFromFloat(math.Abs(s.Overspend)).StringFixed(2)
	if s.OverBudget {
		return fmt.Sprintf("超出预算: ¥%s", amount)
	}
	return fmt.Sprintf("剩余预算: ¥%s", amount)
}

// FormatCNY renders an amount as yuan for human-readable output.
func FormatCNY(amount float64) string {
	return printer.Sprint(currency.Symbol(currency.CNY.Amount(amount)))
}
