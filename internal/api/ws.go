package api

import (
	"net/http"

	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/store"
)

// handleWebSocket handles GET /api/v1/ws: any accepted credential upgrades
// the connection (spec §6), then event forwarding is entirely
// eventbus.Handler's concern.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleViewer); !ok {
		return
	}

	eventbus.NewHandler(s.deps.Bus, s.logger).ServeHTTP(w, r)
}
