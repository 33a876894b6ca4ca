package auth

import (
	"net/http"

	"github.com/tsio/tsio/internal/store"
)

const (
	apiKeyHeader  = "X-API-Key"
	apiKeyPrefix  = "tsio_"
)

// APIKeyStrategy returns a Strategy for opaque database-backed API keys
// (spec §4.2 class 2). Revoked or expired keys are rejected generically.
func APIKeyStrategy(keys store.ApiKeyStore) Strategy {
	return func(r *http.Request) (*Caller, error) {
		raw := r.Header.Get(apiKeyHeader)
		if raw == "" {
			return nil, ErrNoCredential
		}

		if len(raw) <= len(apiKeyPrefix) || raw[:len(apiKeyPrefix)] != apiKeyPrefix {
			return nil, ErrAuthenticationFailed
		}

		key, err := keys.VerifyAndTouch(r.Context(), raw)
		if err != nil {
			return nil, ErrAuthenticationFailed
		}

		return &Caller{ID: key.ID, Role: key.Role, Kind: CallerKindAPIKey}, nil
	}
}
