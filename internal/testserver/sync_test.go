package testserver_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/remote"
	"github.com/tillpoint/possync/internal/testserver"
)

const (
	token    = "secret"
	tenantID = "shop1"
)

// syncNow runs a cycle that starts after the call, not one already in flight.
func syncNow(t *testing.T, term *testserver.Terminal) *engine.Result {
	t.Helper()
	for {
		res, err := term.Engine.SyncNow(context.Background())
		require.NoError(t, err)
		if !res.Joined {
			return res
		}
	}
}

func TestSync_TwoTerminalsConvergeOverHTTP(t *testing.T) {
	ctx := context.Background()
	ts := testserver.New(t, token, tenantID)
	a := ts.NewTerminal(t, "till-a")
	b := ts.NewTerminal(t, "till-b")

	_, err := a.Engine.Replica().Create(ctx, tenantID, record.TableProducts, "p1", record.Payload{"name": "Tea", "stock_quantity": 10})
	require.NoError(t, err)
	res := syncNow(t, a)
	require.Equal(t, engine.StateIdle, res.State)
	require.Equal(t, 0, a.Engine.Status().PendingChanges)

	syncNow(t, b)
	got, err := b.Engine.Replica().Get(ctx, tenantID, record.TableProducts, "p1")
	require.NoError(t, err)
	require.Equal(t, "10", fmt.Sprint(got.Payload["stock_quantity"]))
	require.Equal(t, "Tea", got.Payload["name"])
}

func TestSync_ConcurrentStockSalesMerge(t *testing.T) {
	ctx := context.Background()
	ts := testserver.New(t, token, tenantID)
	a := ts.NewTerminal(t, "till-a")
	b := ts.NewTerminal(t, "till-b")

	_, err := a.Engine.Replica().Create(ctx, tenantID, record.TableProducts, "p1", record.Payload{"name": "Tea", "stock_quantity": 10})
	require.NoError(t, err)
	syncNow(t, a)
	syncNow(t, b)

	// Both tills sell offline from the same stock of 10.
	_, err = a.Engine.Replica().Update(ctx, tenantID, record.TableProducts, "p1", record.Payload{"stock_quantity": 7})
	require.NoError(t, err)
	_, err = b.Engine.Replica().Update(ctx, tenantID, record.TableProducts, "p1", record.Payload{"stock_quantity": 8})
	require.NoError(t, err)

	syncNow(t, a)
	syncNow(t, b)

	remoteRow, ok := ts.Store.Get(tenantID, record.TableProducts, "p1")
	require.True(t, ok)
	require.Equal(t, "5", fmt.Sprint(remoteRow.Payload["stock_quantity"]))

	local, err := b.Engine.Replica().Get(ctx, tenantID, record.TableProducts, "p1")
	require.NoError(t, err)
	require.Equal(t, "5", fmt.Sprint(local.Payload["stock_quantity"]))

	conflicts, err := b.Engine.Log().List(ctx, tenantID, synclog.ListOptions{Type: synclog.TypeConflict, Table: string(record.TableProducts)})
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, 1, conflicts[0].ItemCount)
	require.Equal(t, synclog.StatusPartial, conflicts[0].Status)

	syncNow(t, a)
	local, err = a.Engine.Replica().Get(ctx, tenantID, record.TableProducts, "p1")
	require.NoError(t, err)
	require.Equal(t, "5", fmt.Sprint(local.Payload["stock_quantity"]))
}

func TestSync_RejectedTokenEntersError(t *testing.T) {
	ctx := context.Background()
	ts := testserver.New(t, token, tenantID)
	ts.Token = "wrong"
	term := ts.NewTerminal(t, "till-a")

	_, err := term.Engine.Replica().Create(ctx, tenantID, record.TableCustomers, "c1", record.Payload{"name": "Ann"})
	require.NoError(t, err)

	res := syncNow(t, term)
	require.Equal(t, engine.StateError, res.State)
	require.Equal(t, 1, term.Engine.Status().PendingChanges)

	_, ok := ts.Store.Get(tenantID, record.TableCustomers, "c1")
	require.False(t, ok)
}

func TestClient_HealthReflectsStore(t *testing.T) {
	ts := testserver.New(t, token, tenantID)
	client := ts.Client()

	require.NoError(t, client.Health(context.Background()))
	ts.Store.SetReachable(false)
	require.ErrorIs(t, client.Health(context.Background()), remote.ErrNetwork)
}
