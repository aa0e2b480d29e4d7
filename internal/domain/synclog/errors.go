package synclog

import "errors"

var ErrInvalidInput = errors.New("invalid input")
