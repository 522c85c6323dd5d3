package shared

import "errors"

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a uniqueness violation, typically a document number.
	ErrDuplicate = errors.New("duplicate entry")
)
