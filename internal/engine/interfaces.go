package engine

import (
	"context"
	"time"

	"github.com/tillpoint/possync/internal/domain/record"
)

// Checkpoints persists pull watermarks and the last completed cycle.
type Checkpoints interface {
	Watermark(ctx context.Context, tenantID string, table record.Table) (int64, error)
	SetWatermark(ctx context.Context, tenantID string, table record.Table, watermark int64) error
	LastSync(ctx context.Context, tenantID string) (*time.Time, error)
	MarkSynced(ctx context.Context, tenantID string, at time.Time) error
}

// Lease elects a single sync driver per tenant.
type Lease interface {
	Acquire(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, tenantID, holder string) error
}

// StorageChecker reports whether local persistence is usable.
type StorageChecker interface {
	Check(ctx context.Context) error
}

// WriteGuard serializes engine writes to a record with UI writes.
type WriteGuard interface {
	Exclusive(fn func() error) error
}
