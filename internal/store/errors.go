package store

import "errors"

// Sentinel errors shared across the relational store. Callers use errors.Is to
// distinguish "not found" (→ 404) and conflict or invalid argument (→ 400
// INVALID_INPUT) from anything else (→ 500 DATABASE_ERROR), per
// the taxonomy in spec §7.
var (
	// ErrNotFound is returned when a lookup by id finds no active row.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness invariant would be violated.
	ErrConflict = errors.New("conflict")

	// ErrInvalidArgument is returned for caller-supplied values that fail basic
	// shape validation before ever reaching SQL.
	ErrInvalidArgument = errors.New("invalid argument")
)
