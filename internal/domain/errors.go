package domain

import "errors"

var (
	// ErrInvalidInput marks a profile or request that cannot be processed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a stored record does not exist.
	ErrNotFound = errors.New("record not found")
)
