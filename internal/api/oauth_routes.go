package api

import (
	"net/http"

	"github.com/tsio/tsio/internal/store"
)

// handleMe handles GET /api/v1/auth/me: the session-resolved caller's own
// profile (spec §6). Only meaningful for session-cookie callers, so it
// requires an OAuthUser to be present on the resolved Caller.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireRole(w, r, store.RoleViewer)
	if !ok {
		return
	}

	if caller.OAuthUser == nil {
		writeError(w, r, s.logger, unauthorizedInvalid("caller is not a browser session"))

		return
	}

	writeJSON(w, s.logger, http.StatusOK, newMeResponse(caller.OAuthUser))
}
