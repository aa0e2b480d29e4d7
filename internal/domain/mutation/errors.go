package mutation

import "errors"

var (
	// ErrMutationNotFound indicates the mutation is not queued (already acked).
	ErrMutationNotFound = errors.New("mutation not found")
	// ErrInvalidInput indicates an invalid mutation.
	ErrInvalidInput = errors.New("invalid mutation input")
)
