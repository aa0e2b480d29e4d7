package engine

import (
	"context"
	"fmt"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/remote"
)

// TableHandler pushes and pulls one synced table.
type TableHandler interface {
	Table() record.Table
	Push(ctx context.Context, tenantID string, m mutation.Mutation) (remote.PushResult, error)
	Pull(ctx context.Context, tenantID string, watermark int64, limit int) (*remote.PullResult, error)
}

// Handlers binds every synced table to its handler. Adding a table means
// adding a field here and to ordered.
type Handlers struct {
	Products   TableHandler
	Customers  TableHandler
	Sales      TableHandler
	SalesItems TableHandler

	// Catch-all pass, after the priority tables.
	Categories TableHandler
	Suppliers  TableHandler
}

// NewHandlers binds every table to the same remote store.
func NewHandlers(store remote.Store) Handlers {
	return Handlers{
		Products:   NewStoreHandler(record.TableProducts, store),
		Customers:  NewStoreHandler(record.TableCustomers, store),
		Sales:      NewStoreHandler(record.TableSales, store),
		SalesItems: NewStoreHandler(record.TableSalesItems, store),
		Categories: NewStoreHandler(record.TableCategories, store),
		Suppliers:  NewStoreHandler(record.TableSuppliers, store),
	}
}

// ordered returns the handlers in sync priority order.
func (h Handlers) ordered() ([]TableHandler, error) {
	slots := []struct {
		table   record.Table
		handler TableHandler
	}{
		{record.TableProducts, h.Products},
		{record.TableCustomers, h.Customers},
		{record.TableSales, h.Sales},
		{record.TableSalesItems, h.SalesItems},
		{record.TableCategories, h.Categories},
		{record.TableSuppliers, h.Suppliers},
	}

	out := make([]TableHandler, 0, len(slots))
	for _, slot := range slots {
		if slot.handler == nil {
			return nil, fmt.Errorf("%w: no handler for %s", ErrInvalidHandlers, slot.table)
		}
		if slot.handler.Table() != slot.table {
			return nil, fmt.Errorf("%w: %s slot holds %s handler", ErrInvalidHandlers, slot.table, slot.handler.Table())
		}
		out = append(out, slot.handler)
	}
	return out, nil
}

// StoreHandler syncs one table against a remote.Store, one mutation per push.
type StoreHandler struct {
	table record.Table
	store remote.Store
}

// NewStoreHandler creates a handler for table.
func NewStoreHandler(table record.Table, store remote.Store) *StoreHandler {
	return &StoreHandler{table: table, store: store}
}

// Table returns the table the handler syncs.
func (h *StoreHandler) Table() record.Table {
	return h.table
}

// Push sends a single mutation so at most one push per table is in flight.
func (h *StoreHandler) Push(ctx context.Context, tenantID string, m mutation.Mutation) (remote.PushResult, error) {
	results, err := h.store.PushBatch(ctx, tenantID, h.table, []mutation.Mutation{m})
	if err != nil {
		return remote.PushResult{}, err
	}
	if len(results) != 1 || results[0].MutationID != m.ID {
		return remote.PushResult{}, fmt.Errorf("%w: unexpected push result for %s", remote.ErrNetwork, m.ID)
	}
	return results[0], nil
}

// Pull fetches remote rows of the table changed after watermark.
func (h *StoreHandler) Pull(ctx context.Context, tenantID string, watermark int64, limit int) (*remote.PullResult, error) {
	return h.store.PullSince(ctx, tenantID, h.table, watermark, limit)
}
