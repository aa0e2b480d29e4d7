package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `possync keeps a local replica of point-of-sale records and syncs it with the shared remote store.

Core concepts:
- Record: one row of a table (products, customers, sales, sales_items, categories, suppliers) with a JSON payload.
- Pending change: a local write not yet acknowledged by the remote. Writes always succeed locally, online or not.
- Sync cycle: pushes pending changes table by table, then pulls remote changes. Only one runs per tenant.
- Conflict: the remote changed a record you also changed. Resolved automatically and logged for review.

Workflow:
1) Check state with sync_status (online, syncing, pending_changes, last_sync).
2) Read with get_record / list_records; write with put_record / delete_record.
3) Call sync_now to push immediately; otherwise sync runs on reconnect and periodically.
4) Review list_sync_log for conflict and error entries; list_pending for stuck changes.

Docs:
- possync://docs/conflicts
- possync://docs/sync-log
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "possync://docs/conflicts",
		Name:        "docs_conflicts",
		Title:       "Conflict resolution",
		Description: "How concurrent edits from several terminals are merged.",
		Content: `# Conflict resolution

A conflict happens when a pushed change was made against an older version of the record than the remote holds.

## Descriptive fields
Names, prices, notes and other scalar fields use last writer wins: the later of the local edit time and the remote modification time keeps its value.

## Quantity and balance fields
products.stock_quantity, customers.loyalty_points and customers.outstanding_balance are merged additively. The local delta (new value minus the value it was edited from) is reapplied on top of the remote value with exact decimal arithmetic.

Example: stock 10 sold down to 7 here while another till sold down to 8. The merged stock is 8 + (7 - 10) = 5.

Quantity merges are logged with status partial so they can be checked.

## Deletes
A delete always wins over an edit. The discarded edit is logged as a partial conflict entry.
`,
	},
	{
		URI:         "possync://docs/sync-log",
		Name:        "docs_sync_log",
		Title:       "Sync log",
		Description: "What the sync history entries mean.",
		Content: `# Sync log

Each cycle writes one entry per table:
- upload: changes were pushed (item_count = pushed + pulled)
- download: nothing to push, remote rows were pulled
- error: the table failed; its pending changes stay queued and are retried

Tables with resolved conflicts get an extra conflict entry whose item_count is the number of conflicted records.

Status is success, partial (something needs review) or failed.

The log keeps the newest 200 entries per tenant. clear_sync_history removes them all.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
