package record

import (
	"context"
	"time"
)

// Repository provides persistence for replica records.
type Repository interface {
	Get(ctx context.Context, tenantID string, table Table, id string) (*Record, error)
	List(ctx context.Context, tenantID string, table Table, opts ListOptions) ([]Record, error)
	Put(ctx context.Context, tenantID string, rec *Record) error
	MarkDeleted(ctx context.Context, tenantID string, table Table, id string, at time.Time) error
	SetRemoteVersion(ctx context.Context, tenantID string, table Table, id string, version int64) error
}
