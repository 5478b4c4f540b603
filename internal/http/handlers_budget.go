package http

import (
	"net/http"

	"jizhang/internal/core"
	"jizhang/internal/log"
)

// budgetBody describes one month's budget. Budget is omitted when none is set.
type budgetBody struct {
	Month     core.Month `json:"month"`
	HasBudget bool       `json:"has_budget"`
	Budget    *float64   `json:"budget,omitempty"`
}

func newBudgetBody(month core.Month, amount float64, ok bool) budgetBody {
	b := budgetBody{Month: month, HasBudget: ok}
	if ok {
		b.Budget = &amount
	}
	return b
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.ledger.Budgets())
}

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonth(r.PathValue("month"))
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	amount, ok := s.ledger.Budget(month)
	writeJSON(w, r, http.StatusOK, newBudgetBody(month, amount, ok))
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	month, err := core.ParseMonth(r.PathValue("month"))
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, r, err)
		return
	}
	amount, err := core.ParseBudgetAmount(string(req.Amount))
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	s.ledger.SetBudget(r.Context(), month, amount)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Budget set",
		log.FieldOperation, log.OpSetBudget, log.FieldMonth, month.String(), log.FieldBudget, amount)

	writeJSON(w, r, http.StatusOK, newBudgetBody(month, amount, true))
}
