package synclog

import "time"

// EntryType classifies a sync log entry.
type EntryType string

const (
	TypeDownload EntryType = "download"
	TypeUpload   EntryType = "upload"
	TypeConflict EntryType = "conflict"
	TypeError    EntryType = "error"
)

// Status is the outcome recorded for a table in one cycle.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// DefaultCap is the number of entries kept per tenant.
const DefaultCap = 200

// Entry is one immutable line of sync history.
type Entry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EntryType `json:"type"`
	Table     string    `json:"table"`
	ItemCount int       `json:"item_count"`
	Attempted int       `json:"attempted"`
	Status    Status    `json:"status"`
	Details   string    `json:"details,omitempty"`
}

func (t EntryType) valid() bool {
	switch t {
	case TypeDownload, TypeUpload, TypeConflict, TypeError:
		return true
	}
	return false
}

func (s Status) valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed:
		return true
	}
	return false
}
