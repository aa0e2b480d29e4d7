package repository

import "errors"

// Sentinels shared by every persistence backend. Domain packages wrap them
// with their own errors so callers can match either.
var (
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert collides with an existing key,
	// such as a mutation id replayed into the queue.
	ErrConflict = errors.New("conflict: key already stored")

	ErrInvalidInput = errors.New("invalid input")
)
