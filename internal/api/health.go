package api

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// handleHealth responds 200 unconditionally (spec §6 "GET /health").
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady checks DB reachability (spec §6 "GET /ready": 200 if DB
// reachable, 503 otherwise).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.deps.DB.HealthCheck(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err.Error())
		writeJSON(w, s.logger, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})

		return
	}

	writeJSON(w, s.logger, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
