package remote

import (
	"context"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
)

// PushStatus is the per-item outcome of a push.
type PushStatus string

const (
	StatusAccepted PushStatus = "accepted"
	StatusRejected PushStatus = "rejected"
)

// RejectReason explains a rejected push.
type RejectReason string

const (
	ReasonVersionConflict RejectReason = "version_conflict"
	ReasonTombstoned      RejectReason = "tombstoned"
	ReasonInvalid         RejectReason = "invalid"
)

// PushResult is the remote verdict on one mutation.
type PushResult struct {
	MutationID string         `json:"mutation_id"`
	Status     PushStatus     `json:"status"`
	Version    int64          `json:"version,omitempty"`
	Reason     RejectReason   `json:"reason,omitempty"`
	Message    string         `json:"message,omitempty"`
	Latest     *record.Record `json:"latest,omitempty"`
}

// PullResult is one page of remote changes after a watermark.
type PullResult struct {
	Records   []record.Record `json:"records"`
	Watermark int64           `json:"watermark"`
	HasMore   bool            `json:"has_more"`
}

// Store is the authenticated, tenant-scoped remote API.
type Store interface {
	PushBatch(ctx context.Context, tenantID string, table record.Table, batch []mutation.Mutation) ([]PushResult, error)
	PullSince(ctx context.Context, tenantID string, table record.Table, watermark int64, limit int) (*PullResult, error)
	Health(ctx context.Context) error
}

type pushRequest struct {
	Mutations []mutation.Mutation `json:"mutations"`
}

type pushResponse struct {
	Results []PushResult `json:"results"`
}
