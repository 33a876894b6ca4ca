package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// parseLimitOffset reads limit/offset query params, applying spec §6's
// default-20/max-100 pagination rule.
func parseLimitOffset(r *http.Request) (limit, offset int) {
	limit = defaultLimit

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

// decodeJSON decodes r's body into dst, returning an apiError on failure.
func decodeJSON(r *http.Request, dst interface{}) *apiError {
	if r.Body == nil {
		return invalidInput("request body is required")
	}

	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return invalidInput("invalid JSON body: " + err.Error())
	}

	return nil
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger interface {
	Error(msg string, args ...any)
}, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err.Error())
	}
}
