package domain

import "errors"

var (
	// ErrValidation marks errors caused by invalid caller input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks operations rejected because of current entity state.
	ErrConflict = errors.New("conflict")
)
