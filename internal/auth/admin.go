package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/tsio/tsio/internal/store"
)

const adminKeyHeader = "X-Admin-Key"

// DevDefaultAdminKey is the checked-in development secret. Production startup
// refuses to boot if TSIO_AUTH_ADMIN_KEY still equals this (spec §6).
const DevDefaultAdminKey = "tsio-dev-admin-key-change-me"

// AdminKeyStrategy returns a Strategy for the admin bootstrap key (spec §4.2
// class 1). If secret is empty, the class is disabled and every request falls
// through with ErrNoCredential.
func AdminKeyStrategy(secret string) Strategy {
	return func(r *http.Request) (*Caller, error) {
		if secret == "" {
			return nil, ErrNoCredential
		}

		supplied := r.Header.Get(adminKeyHeader)
		if supplied == "" {
			return nil, ErrNoCredential
		}

		// Compare full byte ranges regardless of length so the comparison does
		// not leak a length oracle (spec §4.2).
		if !constantTimeEqual(secret, supplied) {
			return nil, ErrAuthenticationFailed
		}

		return &Caller{ID: "admin", Role: store.RoleAdmin, Kind: CallerKindAdmin}, nil
	}
}

// constantTimeEqual compares a and b in time independent of where they first
// differ. A length mismatch still runs a full-length comparison against a
// padded buffer before reporting inequality, so the outcome does not depend
// on an early length short-circuit (spec §8 property 7).
func constantTimeEqual(a, b string) bool {
	padded := make([]byte, len(a))
	copy(padded, b)

	equal := subtle.ConstantTimeCompare([]byte(a), padded) == 1

	return equal && len(a) == len(b)
}
