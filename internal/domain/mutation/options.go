package mutation

import "github.com/tillpoint/possync/internal/domain/record"

// ListOptions provides filtering options for listing queued mutations.
type ListOptions struct {
	Table    record.Table
	RecordID string
	Statuses []Status
	Limit    int
}
