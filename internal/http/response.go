package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"jizhang/internal/core"
	"jizhang/internal/log"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write response", log.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorBody{Error: message})
}

// writeProblem maps err to a status: validation failures are 422, malformed bodies 400.
func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errMalformedBody), errors.Is(err, errBodyTooLarge):
		status = http.StatusBadRequest
	case isValidationError(err):
		status = http.StatusUnprocessableEntity
	default:
		log.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, r.Method, nil)
		writeError(w, r, status, "internal server error")
		return
	}
	writeError(w, r, status, err.Error())
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidDate,
		core.ErrInvalidMonth,
		core.ErrInvalidAmount,
		core.ErrInvalidBudget,
		core.ErrUnknownCategory,
		core.ErrDescriptionTooLong,
		errInvalidParameter,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
