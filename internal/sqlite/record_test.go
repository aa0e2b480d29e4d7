package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestRecordRepository_PutGet(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewRecordRepository(db, nil)
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec := &record.Record{
		Table:         record.TableProducts,
		ID:            "p1",
		Payload:       record.Payload{"name": "Soap", "stock_quantity": json.Number("10.50")},
		RemoteVersion: 3,
		ModifiedAt:    now,
	}

	require.NoError(t, repo.Put(ctx, "tenant1", rec))

	loaded, err := repo.Get(ctx, "tenant1", record.TableProducts, "p1")
	require.NoError(t, err)
	require.Equal(t, "tenant1", loaded.TenantID)
	require.Equal(t, int64(3), loaded.RemoteVersion)
	require.Equal(t, json.Number("10.50"), loaded.Payload["stock_quantity"])
	require.True(t, now.Equal(loaded.ModifiedAt))
	require.True(t, rec.Payload.Equal(loaded.Payload))
}

func TestRecordRepository_TenantIsolation(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	repo := NewRecordRepository(db, nil)
	rec := &record.Record{Table: record.TableCustomers, ID: "c1", Payload: record.Payload{"name": "Ana"}}
	require.NoError(t, repo.Put(ctx, "tenant1", rec))

	_, err := repo.Get(ctx, "tenant2", record.TableCustomers, "c1")
	require.ErrorIs(t, err, record.ErrRecordNotFound)
	require.ErrorIs(t, err, repository.ErrNotFound)

	list, err := repo.List(ctx, "tenant2", record.TableCustomers, record.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRecordRepository_MarkDeletedAndFilters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db, nil)

	for _, id := range []string{"a-1", "a-2", "b-1"} {
		require.NoError(t, repo.Put(ctx, "tenant1", &record.Record{
			Table:   record.TableProducts,
			ID:      id,
			Payload: record.Payload{"name": id},
		}))
	}
	require.NoError(t, repo.MarkDeleted(ctx, "tenant1", record.TableProducts, "a-2", time.Now()))

	live, err := repo.List(ctx, "tenant1", record.TableProducts, record.ListOptions{})
	require.NoError(t, err)
	require.Len(t, live, 2)

	all, err := repo.List(ctx, "tenant1", record.TableProducts, record.ListOptions{IncludeTombstones: true, IDPrefix: "a-"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a-1", all[0].ID)
	require.True(t, all[1].Tombstone)

	page, err := repo.List(ctx, "tenant1", record.TableProducts, record.ListOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "b-1", page[0].ID)

	err = repo.MarkDeleted(ctx, "tenant1", record.TableProducts, "missing", time.Now())
	require.ErrorIs(t, err, record.ErrRecordNotFound)
}

func TestRecordRepository_SetRemoteVersion(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db, nil)

	require.NoError(t, repo.Put(ctx, "tenant1", &record.Record{Table: record.TableSales, ID: "s1", Payload: record.Payload{}}))
	require.NoError(t, repo.SetRemoteVersion(ctx, "tenant1", record.TableSales, "s1", 9))

	loaded, err := repo.Get(ctx, "tenant1", record.TableSales, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(9), loaded.RemoteVersion)
}

func TestRecordRepository_QuarantinesCorruptRows(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db, nil)

	require.NoError(t, repo.Put(ctx, "tenant1", &record.Record{Table: record.TableProducts, ID: "good", Payload: record.Payload{"name": "ok"}}))
	_, err := db.ExecContext(ctx,
		`INSERT INTO records (tenant_id, tbl, id, payload, modified_at) VALUES (?, ?, ?, ?, ?)`,
		"tenant1", "products", "bad", "{not json", 0)
	require.NoError(t, err)

	list, err := repo.List(ctx, "tenant1", record.TableProducts, record.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "good", list[0].ID)

	n, err := repo.QuarantineCount(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = repo.Get(ctx, "tenant1", record.TableProducts, "bad")
	require.True(t, errors.Is(err, record.ErrRecordNotFound))
}

func TestRecordRepository_GetQuarantinesCorruptRow(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewRecordRepository(db, nil)

	_, err := db.ExecContext(ctx,
		`INSERT INTO records (tenant_id, tbl, id, payload, modified_at) VALUES (?, ?, ?, ?, ?)`,
		"tenant1", "customers", "c9", "[1,2", 0)
	require.NoError(t, err)

	_, err = repo.Get(ctx, "tenant1", record.TableCustomers, "c9")
	require.ErrorIs(t, err, record.ErrStorageCorrupt)

	n, err := repo.QuarantineCount(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRecordRepository_ClosedDatabaseIsUnavailable(t *testing.T) {
	db, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	repo := NewRecordRepository(db, nil)
	require.NoError(t, db.Close())

	_, err = repo.List(context.Background(), "tenant1", record.TableProducts, record.ListOptions{})
	require.ErrorIs(t, err, record.ErrStorageUnavailable)
}
