package http

import (
	"net/http"

	"jizhang/internal/core"
)

type suggestResponse struct {
	Category core.Category `json:"category"`
}

// handleSuggestCategory answers with a known category. Without a suggester, or on any
// provider failure, the answer is the Other category.
func (s *Server) handleSuggestCategory(w http.ResponseWriter, r *http.Request) {
	var req suggestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeProblem(w, r, err)
		return
	}

	category := core.CategoryOther
	if s.suggester != nil {
		category = s.suggester.SuggestCategory(r.Context(), sanitizeInput(req.Description))
	}
	writeJSON(w, r, http.StatusOK, suggestResponse{Category: category})
}
