package http

import (
	"fmt"
	"net/http"
	"strings"

	"jizhang/internal/core"
	"jizhang/internal/report"
)

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	month, err := s.monthParam(r)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report.Overview(s.ledger.Expenses(), s.ledger.Budgets(), month))
}

// handleBreakdown shows category totals for ?month=all (default) or ?month=YYYY-MM.
func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	view, err := report.Breakdown(s.ledger.Expenses(), strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleMonths returns the month picker options of a screen: ?view=overview|budget|breakdown.
func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	expenses := s.ledger.Expenses()
	now := s.now()

	var opts []report.MonthOption
	switch view := r.URL.Query().Get("view"); view {
	case "", "overview":
		opts = report.Options(report.OverviewMonths(expenses, now))
	case "budget":
		opts = report.Options(report.BudgetMonths(expenses, now))
	case "breakdown":
		opts = report.BreakdownOptions(expenses, now)
	default:
		writeProblem(w, r, fmt.Errorf("%w: view must be overview, budget or breakdown", errInvalidParameter))
		return
	}
	writeJSON(w, r, http.StatusOK, opts)
}

type categoryInfo struct {
	Label   core.Category `json:"label"`
	English string        `json:"english"`
	Color   string        `json:"color"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	out := make([]categoryInfo, 0, len(core.Categories))
	for _, c := range core.Categories {
		out = append(out, categoryInfo{Label: c, English: c.English(), Color: c.Color()})
	}
	writeJSON(w, r, http.StatusOK, out)
}
