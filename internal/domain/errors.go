package domain

import "errors"

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks well-formedness failures rejected at the
	// call boundary before any mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict marks well-formed requests the current state
	// disallows, e.g. requesting an address assigned to someone else.
	ErrConflict = errors.New("conflict")

	// ErrConsistency marks a broken storage invariant, e.g. two open
	// history intervals for one address. Surfaced, never repaired.
	ErrConsistency = errors.New("consistency violation")
)
