package services

import "errors"

var (
	// ErrForbidden is returned when the actor lacks the role for an operation.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when the entity is in the wrong state for an operation.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput is returned for malformed or incomplete requests.
	ErrInvalidInput = errors.New("invalid input")
)
