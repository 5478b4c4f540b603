package http

import (
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady reports ready once the ledger finished loading from storage.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status, code := "ready", http.StatusOK
	ledger := "ok"
	if s.ledger == nil || !s.ledger.Loaded() {
		status, code = "not_ready", http.StatusServiceUnavailable
		ledger = "loading"
	}

	writeJSON(w, r, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks": map[string]any{
			"ledger":    ledger,
			"suggester": s.suggester != nil,
		},
	})
}

// handleStats exposes request, rate limit and security counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"requests":   s.tracer.GetMetrics(),
		"rate_limit": s.rateLimiter.GetMetrics(),
		"security":   s.detector.GetMetrics(),
		"expenses":   len(s.ledger.Expenses()),
	})
}
