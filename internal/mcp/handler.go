package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
)

// Handler dispatches MCP commands.
type Handler struct {
	sync    SyncService
	records RecordService
}

// NewHandler creates a new MCP handler.
func NewHandler(services Services) *Handler {
	return &Handler{
		sync:    services.Sync,
		records: services.Records,
	}
}

// Handle dispatches MCP requests to domain services.
func (h *Handler) Handle(ctx context.Context, tenantID, method string, params json.RawMessage) (any, error) {
	switch method {
	case "sync_status":
		state, err := h.sync.Status(ctx, tenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return state, nil
	case "sync_now":
		res, err := h.sync.SyncNow(ctx, tenantID)
		if err != nil {
			return nil, mapError(err)
		}
		state, err := h.sync.Status(ctx, tenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return SyncNowResponse{Result: res, Status: state}, nil
	case "list_sync_log":
		var req ListSyncLogParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		entries, err := h.sync.ListLog(ctx, tenantID, synclog.ListOptions{
			Type:   synclog.EntryType(req.Type),
			Table:  req.Table,
			Limit:  req.Limit,
			Offset: req.Offset,
		})
		if err != nil {
			return nil, mapError(err)
		}
		if entries == nil {
			entries = []synclog.Entry{}
		}
		return entries, nil
	case "clear_sync_history":
		if err := h.sync.ClearLog(ctx, tenantID); err != nil {
			return nil, mapError(err)
		}
		return ClearHistoryResponse{Cleared: true}, nil
	case "put_record":
		var req PutRecordParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		table, err := parseTable(req.Table)
		if err != nil {
			return nil, err
		}
		if len(req.Payload) == 0 {
			return nil, invalidParams(fmt.Errorf("payload is required"))
		}
		payload, err := record.DecodePayload(req.Payload)
		if err != nil {
			return nil, invalidParams(err)
		}
		rec, err := h.records.Put(ctx, tenantID, table, req.ID, payload)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil
	case "get_record":
		var req RecordParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		table, err := parseTable(req.Table)
		if err != nil {
			return nil, err
		}
		rec, err := h.records.Get(ctx, tenantID, table, req.ID)
		if err != nil {
			return nil, mapError(err)
		}
		return rec, nil
	case "list_records":
		var req ListRecordsParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		table, err := parseTable(req.Table)
		if err != nil {
			return nil, err
		}
		recs, err := h.records.List(ctx, tenantID, table, record.ListOptions{
			IncludeTombstones: req.IncludeTombstones,
			IDPrefix:          req.IDPrefix,
			Limit:             req.Limit,
			Offset:            req.Offset,
		})
		if err != nil {
			return nil, mapError(err)
		}
		if recs == nil {
			recs = []record.Record{}
		}
		return recs, nil
	case "delete_record":
		var req RecordParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		table, err := parseTable(req.Table)
		if err != nil {
			return nil, err
		}
		if err := h.records.Delete(ctx, tenantID, table, req.ID); err != nil {
			return nil, mapError(err)
		}
		return DeleteRecordResponse{Table: table, ID: req.ID, Deleted: true}, nil
	case "list_pending":
		var req ListPendingParams
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		opts := mutation.ListOptions{RecordID: req.RecordID, Limit: req.Limit}
		if req.Table != "" {
			table, err := parseTable(req.Table)
			if err != nil {
				return nil, err
			}
			opts.Table = table
		}
		if req.Failed {
			opts.Statuses = []mutation.Status{mutation.StatusFailed}
		}
		pending, err := h.sync.ListPending(ctx, tenantID, opts)
		if err != nil {
			return nil, mapError(err)
		}
		if pending == nil {
			pending = []mutation.Mutation{}
		}
		return pending, nil
	default:
		return nil, fmt.Errorf("unknown method: %s", method)
	}
}

func decodeParams(params json.RawMessage, out any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, out); err != nil {
		return invalidParams(err)
	}
	return nil
}

func parseTable(name string) (record.Table, error) {
	table, err := record.ParseTable(name)
	if err != nil {
		return "", mapError(err)
	}
	return table, nil
}
