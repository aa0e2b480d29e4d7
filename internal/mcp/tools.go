package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tillpoint/possync/internal/domain/record"
)

// ToolDefinition describes a callable tool
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func tableNames() []string {
	tables := record.Tables()
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		out = append(out, string(t))
	}
	return out
}

func tableProperty(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        tableNames(),
		"description": description,
	}
}

func emptySchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

// buildToolCatalog returns all available MCP tools
func buildToolCatalog() []ToolDefinition {
	return []ToolDefinition{
		// Sync
		{
			Name:        "sync_status",
			Description: "Get the current sync state: online, syncing, pending changes and last sync time",
			InputSchema: emptySchema(),
		},
		{
			Name:        "sync_now",
			Description: "Run a manual sync cycle, or join the one already running, and return its outcome",
			InputSchema: emptySchema(),
		},
		{
			Name:        "list_sync_log",
			Description: "List sync history entries, newest first",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{
						"type":        "string",
						"enum":        []string{"download", "upload", "conflict", "error"},
						"description": "Only entries of this type",
					},
					"table": tableProperty("Only entries for this table"),
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum entries to return",
					},
					"offset": map[string]any{
						"type":        "integer",
						"description": "Entries to skip",
					},
				},
			},
		},
		{
			Name:        "clear_sync_history",
			Description: "Delete all sync history entries for the tenant",
			InputSchema: emptySchema(),
		},
		{
			Name:        "list_pending",
			Description: "List local changes waiting to be pushed, oldest first",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table": tableProperty("Only changes for this table"),
					"record_id": map[string]any{
						"type":        "string",
						"description": "Only changes for this record",
					},
					"failed": map[string]any{
						"type":        "boolean",
						"description": "Only changes that exhausted their retries",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum changes to return",
					},
				},
			},
		},

		// Records
		{
			Name:        "put_record",
			Description: "Create a record, or merge fields into an existing one. The change is queued for sync",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table": tableProperty("Record table"),
					"id": map[string]any{
						"type":        "string",
						"description": "Record ID (generated when omitted)",
					},
					"payload": map[string]any{
						"type":        "object",
						"description": "Record fields; on update only the given fields change",
					},
				},
				"required": []string{"table", "payload"},
			},
		},
		{
			Name:        "get_record",
			Description: "Get a record from the local replica",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table": tableProperty("Record table"),
					"id": map[string]any{
						"type":        "string",
						"description": "Record ID",
					},
				},
				"required": []string{"table", "id"},
			},
		},
		{
			Name:        "list_records",
			Description: "List records of a table from the local replica",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table": tableProperty("Record table"),
					"id_prefix": map[string]any{
						"type":        "string",
						"description": "Only IDs starting with this prefix",
					},
					"include_tombstones": map[string]any{
						"type":        "boolean",
						"description": "Include deleted records",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum records to return",
					},
					"offset": map[string]any{
						"type":        "integer",
						"description": "Records to skip",
					},
				},
				"required": []string{"table"},
			},
		},
		{
			Name:        "delete_record",
			Description: "Delete a record. The deletion is queued for sync",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"table": tableProperty("Record table"),
					"id": map[string]any{
						"type":        "string",
						"description": "Record ID",
					},
				},
				"required": []string{"table", "id"},
			},
		},
	}
}

// registerTools exposes every catalog entry through the handler.
func registerTools(server *sdkmcp.Server, handler *Handler, logger *slog.Logger) {
	for _, def := range buildToolCatalog() {
		name := def.Name
		server.AddTool(&sdkmcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
			var args json.RawMessage
			if req != nil && req.Params != nil {
				args = req.Params.Arguments
			}
			tenantID := getTenantID(ctx)
			result, err := handler.Handle(ctx, tenantID, name, args)
			if err != nil {
				logger.Warn("tool call failed", "tool", name, "tenant_id", tenantID, "error", err)
				return toolError(err), nil
			}
			return toolResult(result)
		})
	}
}

func toolResult(v any) (*sdkmcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil
}

func toolError(err error) *sdkmcp.CallToolResult {
	payload := any(map[string]string{"code": "INTERNAL", "message": err.Error()})
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		payload = apiErr
	}
	data, _ := json.Marshal(payload)
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}
