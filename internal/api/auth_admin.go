package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tsio/tsio/internal/store"
)

// handleCreateAPIKey handles POST /api/v1/auth/keys (spec §6, admin only;
// OIDC callers are denied admin automatically by Caller.AtLeast).
func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	var req createAPIKeyRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeError(w, r, s.logger, apiErr)

		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, r, s.logger, invalidInput("name is required"))

		return
	}

	role := store.Role(req.Role)
	if !role.IsValid() {
		writeError(w, r, s.logger, invalidInput("role must be one of viewer, contributor, admin"))

		return
	}

	rawKey, key, err := s.deps.APIKeys.Create(r.Context(), req.Name, role, req.ExpiresAt)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "api key", ""))

		return
	}

	writeJSON(w, s.logger, http.StatusCreated, newAPIKeyResponse(key, rawKey))
}

// handleListAPIKeys handles GET /api/v1/auth/keys.
func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	keys, err := s.deps.APIKeys.List(r.Context())
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "api key", ""))

		return
	}

	resp := apiKeyListResponse{Keys: make([]apiKeyResponse, len(keys))}
	for i, k := range keys {
		resp.Keys[i] = newAPIKeyResponse(k, "")
	}

	writeJSON(w, s.logger, http.StatusOK, resp)
}

// handleGetAPIKey handles GET /api/v1/auth/keys/{id}.
func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	id := r.PathValue("id")

	key, err := s.deps.APIKeys.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "api key", id))

		return
	}

	writeJSON(w, s.logger, http.StatusOK, newAPIKeyResponse(key, ""))
}

// handleRevokeAPIKey handles DELETE /api/v1/auth/keys/{id} (soft revoke).
func (s *Server) handleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	id := r.PathValue("id")

	if err := s.deps.APIKeys.Revoke(r.Context(), id); err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "api key", id))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleRestoreAPIKey handles POST /api/v1/auth/keys/{id}/restore.
func (s *Server) handleRestoreAPIKey(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	id := r.PathValue("id")

	if err := s.deps.APIKeys.Restore(r.Context(), id); err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "api key", id))

		return
	}

	key, err := s.deps.APIKeys.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "api key", id))

		return
	}

	writeJSON(w, s.logger, http.StatusOK, newAPIKeyResponse(key, ""))
}

// handleCreateOidcPolicy handles POST /api/v1/auth/oidc-policies (spec §4.3,
// admin only). Pattern grammar and the viewer/contributor-only role
// restriction are enforced inside store.PolicyStore.Create.
func (s *Server) handleCreateOidcPolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	var req createOidcPolicyRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeError(w, r, s.logger, apiErr)

		return
	}

	policy, err := s.deps.Policies.Create(r.Context(), req.Pattern, store.Role(req.Role), req.Description)
	if err != nil {
		writeError(w, r, s.logger, classifyPolicyError(err))

		return
	}

	writeJSON(w, s.logger, http.StatusCreated, newOidcPolicyResponse(policy))
}

// handleListOidcPolicies handles GET /api/v1/auth/oidc-policies.
func (s *Server) handleListOidcPolicies(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	policies, err := s.deps.Policies.List(r.Context())
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "oidc policy", ""))

		return
	}

	resp := oidcPolicyListResponse{Policies: make([]oidcPolicyResponse, len(policies))}
	for i, p := range policies {
		resp.Policies[i] = newOidcPolicyResponse(p)
	}

	writeJSON(w, s.logger, http.StatusOK, resp)
}

// handleGetOidcPolicy handles GET /api/v1/auth/oidc-policies/{id}.
func (s *Server) handleGetOidcPolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	id := r.PathValue("id")

	policy, err := s.deps.Policies.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "oidc policy", id))

		return
	}

	writeJSON(w, s.logger, http.StatusOK, newOidcPolicyResponse(policy))
}

// handleUpdateOidcPolicy handles PUT /api/v1/auth/oidc-policies/{id}.
func (s *Server) handleUpdateOidcPolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	id := r.PathValue("id")

	var req updateOidcPolicyRequest
	if apiErr := decodeJSON(r, &req); apiErr != nil {
		writeError(w, r, s.logger, apiErr)

		return
	}

	policy, err := s.deps.Policies.Update(r.Context(), id, req.Pattern, store.Role(req.Role), req.Enabled, req.Description)
	if err != nil {
		writeError(w, r, s.logger, classifyPolicyError(err))

		return
	}

	writeJSON(w, s.logger, http.StatusOK, newOidcPolicyResponse(policy))
}

// handleDeleteOidcPolicy handles DELETE /api/v1/auth/oidc-policies/{id}.
func (s *Server) handleDeleteOidcPolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, store.RoleAdmin); !ok {
		return
	}

	id := r.PathValue("id")

	if err := s.deps.Policies.Delete(r.Context(), id); err != nil {
		writeError(w, r, s.logger, classifyStoreError(err, "oidc policy", id))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// classifyPolicyError maps the policy store's dedicated validation errors
// onto the api taxonomy before falling back to the general classifier.
func classifyPolicyError(err error) *apiError {
	if errors.Is(err, store.ErrPolicyPatternInvalid) || errors.Is(err, store.ErrPolicyRoleForbidden) {
		return invalidInput(err.Error())
	}

	return classifyStoreError(err, "oidc policy", "")
}
