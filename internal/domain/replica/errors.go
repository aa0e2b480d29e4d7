package replica

import "errors"

var (
	// ErrReadOnly is returned for writes while local storage is unavailable.
	ErrReadOnly = errors.New("replica is read-only: local storage unavailable")

	ErrRecordExists = errors.New("record already exists")
)
