package mcp

import (
	"encoding/json"

	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/status"
)

type ListSyncLogParams struct {
	Type   string `json:"type,omitempty"`
	Table  string `json:"table,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type PutRecordParams struct {
	Table   string         `json:"table"`
	ID      string         `json:"id,omitempty"`
	// Payload stays raw so numbers decode as exact decimals.
	Payload json.RawMessage `json:"payload"`
}

type RecordParams struct {
	Table string `json:"table"`
	ID    string `json:"id"`
}

type ListRecordsParams struct {
	Table             string `json:"table"`
	IDPrefix          string `json:"id_prefix,omitempty"`
	IncludeTombstones bool   `json:"include_tombstones,omitempty"`
	Limit             int    `json:"limit,omitempty"`
	Offset            int    `json:"offset,omitempty"`
}

type ListPendingParams struct {
	Table    string `json:"table,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	Failed   bool   `json:"failed,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// SyncNowResponse pairs the finished cycle with the state it left behind.
type SyncNowResponse struct {
	Result *engine.Result   `json:"result"`
	Status status.SyncState `json:"status"`
}

type ClearHistoryResponse struct {
	Cleared bool `json:"cleared"`
}

type DeleteRecordResponse struct {
	Table   record.Table `json:"table"`
	ID      string       `json:"id"`
	Deleted bool         `json:"deleted"`
}
