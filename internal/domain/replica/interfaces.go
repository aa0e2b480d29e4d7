package replica

import (
	"context"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
)

// LocalWriter stores a record and appends its mutation atomically, so a
// write is only visible once the queue entry is durable.
type LocalWriter interface {
	ApplyLocalWrite(ctx context.Context, tenantID string, rec *record.Record, m *mutation.Mutation) error
}

// AvailabilityListener is told when local storage becomes unavailable or
// recovers.
type AvailabilityListener func(available bool)
