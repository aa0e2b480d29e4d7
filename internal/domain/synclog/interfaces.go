package synclog

import "context"

// Repository provides persistence operations for sync log entries.
type Repository interface {
	// Append stores the entry and evicts the oldest entries of the tenant
	// beyond limit in the same transaction.
	Append(ctx context.Context, tenantID string, entry *Entry, limit int) error
	List(ctx context.Context, tenantID string, opts ListOptions) ([]Entry, error)
	Clear(ctx context.Context, tenantID string) (int64, error)
}
