package mutation

import (
	"context"

	"github.com/tillpoint/possync/internal/domain/record"
)

// Repository provides durable, ordered storage for queued mutations.
type Repository interface {
	// Append assigns the next client sequence of (tenant, table) and
	// persists the mutation before returning.
	Append(ctx context.Context, m *Mutation) error
	Get(ctx context.Context, tenantID, id string) (*Mutation, error)
	// OldestAfter returns the lowest client sequence mutation of the table
	// above afterSeq.
	OldestAfter(ctx context.Context, tenantID string, table record.Table, afterSeq int64) (*Mutation, error)
	List(ctx context.Context, tenantID string, opts ListOptions) ([]Mutation, error)
	Update(ctx context.Context, m *Mutation) error
	Delete(ctx context.Context, tenantID, id string) (bool, error)
	DeleteForRecord(ctx context.Context, tenantID string, table record.Table, recordID string) (int64, error)
	Count(ctx context.Context, tenantID string) (int, error)
	ResetInflight(ctx context.Context, tenantID string) (int64, error)
}
