package record

import "errors"

var (
	// ErrRecordNotFound indicates the record doesn't exist in the replica.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidInput indicates invalid input for record operations.
	ErrInvalidInput = errors.New("invalid record input")
	// ErrStorageUnavailable indicates local persistence cannot be reached.
	ErrStorageUnavailable = errors.New("local storage unavailable")
	// ErrStorageCorrupt indicates a single stored record failed to decode.
	ErrStorageCorrupt = errors.New("stored record is corrupt")
)
