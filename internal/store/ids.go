package store

import "github.com/google/uuid"

// NewID returns a new time-ordered 128-bit identifier (UUIDv7), so default creation
// order already equals insertion time without a secondary sort column (spec §3).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if crypto/rand is broken; fall back rather than panic
		// in a request path.
		return uuid.NewString()
	}

	return id.String()
}
