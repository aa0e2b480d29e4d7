package sqlite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/repository"
)

var unavailableMarkers = []string{
	"unable to open database",
	"disk I/O error",
	"database or disk is full",
	"attempt to write a readonly database",
	"database is closed",
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range unavailableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// storageErr tags persistence failures so callers can degrade to read-only.
func storageErr(err error) error {
	if err == nil || errors.Is(err, record.ErrStorageUnavailable) || !isUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", record.ErrStorageUnavailable, err)
}

func notFound(domainErr error) error {
	return fmt.Errorf("%w: %w", domainErr, repository.ErrNotFound)
}
