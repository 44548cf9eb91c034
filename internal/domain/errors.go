package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation rules.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks state transitions the current status does not permit.
	ErrConflict = errors.New("conflict")
)
