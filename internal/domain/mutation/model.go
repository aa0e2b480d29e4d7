package mutation

import (
	"time"

	"github.com/tillpoint/possync/internal/domain/record"
)

// Op is the kind of change a mutation carries.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Status tracks a mutation through the push pipeline.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInflight Status = "inflight"
	StatusFailed   Status = "failed"
)

// Mutation is a locally made change that the remote store has not acknowledged.
type Mutation struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	Table         record.Table   `json:"table"`
	RecordID      string         `json:"record_id"`
	Op            Op             `json:"op"`
	Payload       record.Payload `json:"payload"`
	BasePayload   record.Payload `json:"base_payload,omitempty"`
	BaseVersion   int64          `json:"base_version"`
	ClientSeq     int64          `json:"client_seq"`
	AttemptCount  int            `json:"attempt_count"`
	Status        Status         `json:"status"`
	LastError     string         `json:"last_error,omitempty"`
	NextAttemptAt time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Ready reports whether the mutation may be pushed at now. Exhausted
// mutations are only retried when force is set (manual sync).
func (m *Mutation) Ready(now time.Time, force bool) bool {
	switch m.Status {
	case StatusFailed:
		return force
	case StatusPending, StatusInflight:
		if force || m.NextAttemptAt.IsZero() {
			return true
		}
		return !now.Before(m.NextAttemptAt)
	default:
		return false
	}
}

// Exhausted reports whether the retry budget is spent.
func (m *Mutation) Exhausted() bool {
	return m.AttemptCount >= MaxAttempts
}
