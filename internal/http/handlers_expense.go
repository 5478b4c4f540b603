package http

import (
	"net/http"

	"jizhang/internal/core"
	"jizhang/internal/log"
)

// expenseList is the body of GET /api/expenses.
type expenseList struct {
	Expenses []core.Expense `json:"expenses"`
	Count    int            `json:"count"`
}

// handleListExpenses lists expenses newest first, optionally limited to ?month=YYYY-MM and ?limit=N.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	expenses := s.ledger.Expenses()
	if r.URL.Query().Get("month") != "" {
		month, err := s.monthParam(r)
		if err != nil {
			writeProblem(w, r, err)
			return
		}
		filtered := expenses[:0:0]
		for _, e := range expenses {
			if month.Contains(e.Date) {
				filtered = append(filtered, e)
			}
		}
		expenses = filtered
	}
	if limit > 0 && len(expenses) > limit {
		expenses = expenses[:limit]
	}

	writeJSON(w, r, http.StatusOK, expenseList{Expenses: expenses, Count: len(expenses)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	exp := s.ledger.AddExpense(r.Context(), in)

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		log.NewFields().
			WithOperation(log.OpCreate).
			WithExpense(exp.ID, exp.Date.String(), exp.Amount, string(exp.Category), len([]rune(exp.Description))).
			ToSlice()...)

	w.Header().Set("Location", "/api/expenses/"+exp.ID)
	writeJSON(w, r, http.StatusCreated, exp)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	exp, ok := s.ledger.Expense(r.PathValue("id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "expense not found")
		return
	}
	writeJSON(w, r, http.StatusOK, exp)
}

// handleUpdateExpense replaces every mutable field of the expense; the id is kept.
func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, r, err)
		return
	}
	in, err := req.input()
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	if !s.ledger.EditExpense(r.Context(), id, in) {
		writeError(w, r, http.StatusNotFound, "expense not found")
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense updated",
		log.FieldOperation, log.OpUpdate, log.FieldExpenseID, id)

	writeJSON(w, r, http.StatusOK, in.WithID(id))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.ledger.DeleteExpense(r.Context(), id) {
		writeError(w, r, http.StatusNotFound, "expense not found")
		return
	}

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted",
		log.FieldOperation, log.OpDelete, log.FieldExpenseID, id)

	w.WriteHeader(http.StatusNoContent)
}
