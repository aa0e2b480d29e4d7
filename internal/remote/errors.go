package remote

import "errors"

var (
	// ErrNetwork marks transient failures: timeouts, refused connections, 5xx.
	ErrNetwork = errors.New("remote unreachable")

	// ErrAuth means the remote rejected our credentials.
	ErrAuth = errors.New("remote rejected credentials")

	ErrInvalidInput = errors.New("invalid input")
)
