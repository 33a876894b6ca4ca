package api

import (
	"net/http"

	"github.com/tsio/tsio/internal/api/middleware"
	"github.com/tsio/tsio/internal/auth"
	"github.com/tsio/tsio/internal/store"
)

// requireRole resolves the request's Caller and checks it meets min,
// writing the appropriate 401 and returning false if not (spec §4.5).
// Missing credentials and insufficient role both surface as UNAUTHORIZED
// per the taxonomy (spec §7 has no distinct "Forbidden" kind).
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, min store.Role) (*auth.Caller, bool) {
	caller := middleware.GetCaller(r.Context())
	if caller == nil {
		if err := middleware.GetAuthError(r.Context()); err != nil {
			writeError(w, r, s.logger, unauthorizedInvalid(err.Error()))
		} else {
			writeError(w, r, s.logger, unauthorizedMissing())
		}

		return nil, false
	}

	if !caller.AtLeast(min) {
		writeError(w, r, s.logger, forbidden("caller role "+string(caller.Role)+" below required "+string(min)))

		return nil, false
	}

	return caller, true
}
