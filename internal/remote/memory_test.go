package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/stretchr/testify/require"
)

func push(t *testing.T, s *Memory, m mutation.Mutation) PushResult {
	t.Helper()
	results, err := s.PushBatch(context.Background(), "tenant1", m.Table, []mutation.Mutation{m})
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestMemory_ReplayIsIdempotent(t *testing.T) {
	s := NewMemory()
	m := mutation.Mutation{ID: "m1", Table: record.TableProducts, RecordID: "p1", Op: mutation.OpCreate, Payload: record.Payload{"name": "a"}}

	first := push(t, s, m)
	require.Equal(t, StatusAccepted, first.Status)

	second := push(t, s, m)
	require.Equal(t, StatusAccepted, second.Status)
	require.Equal(t, first.Version, second.Version)
	require.Len(t, s.History("tenant1"), 1)
}

func TestMemory_StaleBaseVersionIsRejected(t *testing.T) {
	s := NewMemory()
	created := push(t, s, mutation.Mutation{ID: "m1", Table: record.TableProducts, RecordID: "p1", Op: mutation.OpCreate, Payload: record.Payload{"stock_quantity": 10}})
	s.Write("tenant1", record.TableProducts, "p1", record.Payload{"stock_quantity": 8})

	res := push(t, s, mutation.Mutation{ID: "m2", Table: record.TableProducts, RecordID: "p1", Op: mutation.OpUpdate, BaseVersion: created.Version, Payload: record.Payload{"stock_quantity": 7}})
	require.Equal(t, StatusRejected, res.Status)
	require.Equal(t, ReasonVersionConflict, res.Reason)
	require.NotNil(t, res.Latest)
	require.Equal(t, int64(2), res.Latest.RemoteVersion)
}

func TestMemory_UpdateAfterRemoteDeleteIsTombstoned(t *testing.T) {
	s := NewMemory()
	created := push(t, s, mutation.Mutation{ID: "m1", Table: record.TableCustomers, RecordID: "c1", Op: mutation.OpCreate, Payload: record.Payload{"name": "a"}})
	s.Delete("tenant1", record.TableCustomers, "c1")

	res := push(t, s, mutation.Mutation{ID: "m2", Table: record.TableCustomers, RecordID: "c1", Op: mutation.OpUpdate, BaseVersion: created.Version, Payload: record.Payload{"name": "b"}})
	require.Equal(t, StatusRejected, res.Status)
	require.Equal(t, ReasonTombstoned, res.Reason)

	res = push(t, s, mutation.Mutation{ID: "m3", Table: record.TableCustomers, RecordID: "c1", Op: mutation.OpDelete, BaseVersion: created.Version})
	require.Equal(t, StatusAccepted, res.Status)
}

func TestMemory_PullPages(t *testing.T) {
	s := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		s.Write("tenant1", record.TableSales, id, record.Payload{"total": 1})
	}
	s.Write("tenant2", record.TableSales, "x", record.Payload{})

	page, err := s.PullSince(context.Background(), "tenant1", record.TableSales, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.True(t, page.HasMore)
	require.Equal(t, int64(2), page.Watermark)

	page, err = s.PullSince(context.Background(), "tenant1", record.TableSales, page.Watermark, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	require.False(t, page.HasMore)
	require.Equal(t, "c", page.Records[0].ID)
}

func TestMemory_HooksAndReachability(t *testing.T) {
	s := NewMemory()
	boom := errors.New("boom")
	s.SetHooks(Hooks{AfterPush: func(context.Context, string, record.Table, []PushResult) error { return boom }})

	m := mutation.Mutation{ID: "m1", Table: record.TableProducts, RecordID: "p1", Op: mutation.OpCreate}
	_, err := s.PushBatch(context.Background(), "tenant1", record.TableProducts, []mutation.Mutation{m})
	require.ErrorIs(t, err, boom)
	_, ok := s.Get("tenant1", record.TableProducts, "p1")
	require.True(t, ok, "write survives a lost response")

	s.SetReachable(false)
	require.ErrorIs(t, s.Health(context.Background()), ErrNetwork)
	_, err = s.PushBatch(context.Background(), "tenant1", record.TableProducts, []mutation.Mutation{m})
	require.ErrorIs(t, err, ErrNetwork)
	require.Equal(t, 2, s.PushCalls())
}
