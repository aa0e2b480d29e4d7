package session

import "errors"

var (
	// ErrInvalidInput indicates an invalid tenant scope.
	ErrInvalidInput = errors.New("invalid session input")
	// ErrNotStarted indicates no engine runs for the tenant.
	ErrNotStarted = errors.New("session not started")
	// ErrClosed indicates the manager has shut down.
	ErrClosed = errors.New("session manager closed")
)
