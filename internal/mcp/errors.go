package mcp

import (
	"errors"
	"fmt"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/replica"
	"github.com/tillpoint/possync/internal/domain/session"
	"github.com/tillpoint/possync/internal/domain/synclog"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, record.ErrRecordNotFound):
		return &APIError{Code: "RECORD_NOT_FOUND", Message: "record not found", RecoveryHint: "Check table and id"}
	case errors.Is(err, replica.ErrRecordExists):
		return &APIError{Code: "RECORD_EXISTS", Message: "record already exists", RecoveryHint: "Update the record instead"}
	case errors.Is(err, replica.ErrReadOnly), errors.Is(err, record.ErrStorageUnavailable):
		return &APIError{Code: "STORAGE_UNAVAILABLE", Message: "local storage unavailable", RecoveryHint: "Writes are blocked until storage recovers"}
	case errors.Is(err, record.ErrInvalidInput), errors.Is(err, mutation.ErrInvalidInput),
		errors.Is(err, synclog.ErrInvalidInput), errors.Is(err, session.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error()}
	case errors.Is(err, session.ErrClosed):
		return &APIError{Code: "SHUTTING_DOWN", Message: "sync engine is shutting down"}
	default:
		return nil
	}
}

func mapError(err error) error {
	if apiErr := MapError(err); apiErr != nil {
		return apiErr
	}
	return err
}

func invalidParams(err error) error {
	return &APIError{Code: "INVALID_PARAMS", Message: err.Error()}
}
