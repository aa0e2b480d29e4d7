package engine_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/engine"
)

func TestResolver_ReappliesQuantityDelta(t *testing.T) {
	m := &mutation.Mutation{
		Table:       record.TableProducts,
		Op:          mutation.OpUpdate,
		Payload:     record.Payload{"name": "Widget", "stock_quantity": json.Number("7")},
		BasePayload: record.Payload{"name": "Widget", "stock_quantity": json.Number("10")},
		CreatedAt:   time.Now(),
	}
	latest := &record.Record{
		Payload:       record.Payload{"name": "Widget", "stock_quantity": json.Number("8")},
		RemoteVersion: 2,
		ModifiedAt:    time.Now(),
	}

	res := engine.Resolver{}.Resolve(m, latest)
	require.False(t, res.Tombstone)
	require.True(t, res.Quantity)
	require.Equal(t, synclog.StatusPartial, res.Status)
	require.Equal(t, json.Number("5"), res.Payload["stock_quantity"])
	require.Equal(t, []string{"stock_quantity"}, res.Fields)
}

func TestResolver_DecimalBalance(t *testing.T) {
	m := &mutation.Mutation{
		Table:       record.TableCustomers,
		Op:          mutation.OpUpdate,
		Payload:     record.Payload{"outstanding_balance": json.Number("10.30")},
		BasePayload: record.Payload{"outstanding_balance": json.Number("10.10")},
	}
	latest := &record.Record{Payload: record.Payload{"outstanding_balance": json.Number("0.20")}}

	res := engine.Resolver{}.Resolve(m, latest)
	require.Equal(t, json.Number("0.4"), res.Payload["outstanding_balance"])
}

func TestResolver_ScalarLastWriterWins(t *testing.T) {
	remoteAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	latest := &record.Record{
		Payload:    record.Payload{"name": "Remote", "price": json.Number("3")},
		ModifiedAt: remoteAt,
	}

	t.Run("local newer", func(t *testing.T) {
		m := &mutation.Mutation{
			Table:       record.TableProducts,
			Op:          mutation.OpUpdate,
			Payload:     record.Payload{"name": "Local", "price": json.Number("2")},
			BasePayload: record.Payload{"name": "Base", "price": json.Number("2")},
			CreatedAt:   remoteAt.Add(time.Minute),
		}
		res := engine.Resolver{}.Resolve(m, latest)
		require.Equal(t, synclog.StatusSuccess, res.Status)
		require.Equal(t, "Local", res.Payload["name"])
		// untouched keys take the remote value
		require.Equal(t, json.Number("3"), res.Payload["price"])
	})

	t.Run("remote newer", func(t *testing.T) {
		m := &mutation.Mutation{
			Table:       record.TableProducts,
			Op:          mutation.OpUpdate,
			Payload:     record.Payload{"name": "Local", "price": json.Number("2")},
			BasePayload: record.Payload{"name": "Base", "price": json.Number("2")},
			CreatedAt:   remoteAt.Add(-time.Minute),
		}
		res := engine.Resolver{}.Resolve(m, latest)
		require.Equal(t, synclog.StatusSuccess, res.Status)
		require.Equal(t, "Remote", res.Payload["name"])
	})
}

func TestResolver_TombstonesAreFlagged(t *testing.T) {
	update := &mutation.Mutation{
		Table:       record.TableProducts,
		Op:          mutation.OpUpdate,
		Payload:     record.Payload{"name": "Local"},
		BasePayload: record.Payload{"name": "Base"},
	}
	res := engine.Resolver{}.Resolve(update, &record.Record{Tombstone: true, Payload: record.Payload{"name": "Base"}})
	require.True(t, res.Tombstone)
	require.Equal(t, synclog.StatusPartial, res.Status)

	del := &mutation.Mutation{Table: record.TableProducts, Op: mutation.OpDelete, Payload: record.Payload{"name": "Base"}}
	res = engine.Resolver{}.Resolve(del, &record.Record{Payload: record.Payload{"name": "Remote"}})
	require.True(t, res.Tombstone)
	require.Equal(t, synclog.StatusPartial, res.Status)
}

func TestResolver_NoLatestKeepsLocal(t *testing.T) {
	m := &mutation.Mutation{Table: record.TableSales, Op: mutation.OpCreate, Payload: record.Payload{"total": json.Number("9.99")}}
	res := engine.Resolver{}.Resolve(m, nil)
	require.Equal(t, synclog.StatusSuccess, res.Status)
	require.True(t, m.Payload.Equal(res.Payload))
}

func TestResolver_Rebase(t *testing.T) {
	m := &mutation.Mutation{
		Table:       record.TableProducts,
		Op:          mutation.OpUpdate,
		Payload:     record.Payload{"name": "B", "stock_quantity": json.Number("6")},
		BasePayload: record.Payload{"name": "A", "stock_quantity": json.Number("7")},
	}
	onto := record.Payload{"name": "A", "stock_quantity": json.Number("5"), "price": json.Number("3")}

	out := engine.Resolver{}.Rebase(m, onto)
	require.Equal(t, "B", out["name"])
	require.Equal(t, json.Number("4"), out["stock_quantity"])
	require.Equal(t, json.Number("3"), out["price"])
}
