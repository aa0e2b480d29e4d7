package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/repository"
	"github.com/stretchr/testify/require"
)

func newMutation(tenantID string, table record.Table, recordID string, op mutation.Op) *mutation.Mutation {
	return &mutation.Mutation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Table:     table,
		RecordID:  recordID,
		Op:        op,
		Payload:   record.Payload{"name": recordID},
		Status:    mutation.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMutationRepository_ClientSeqIsMonotonicPerTable(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewMutationRepository(db)

	first := newMutation("tenant1", record.TableProducts, "p1", mutation.OpCreate)
	second := newMutation("tenant1", record.TableProducts, "p2", mutation.OpCreate)
	other := newMutation("tenant1", record.TableSales, "s1", mutation.OpCreate)
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))
	require.NoError(t, repo.Append(ctx, other))

	require.Equal(t, int64(1), first.ClientSeq)
	require.Equal(t, int64(2), second.ClientSeq)
	require.Equal(t, int64(1), other.ClientSeq)

	// Acking the head must not let a later append reuse its sequence.
	removed, err := repo.Delete(ctx, "tenant1", second.ID)
	require.NoError(t, err)
	require.True(t, removed)
	third := newMutation("tenant1", record.TableProducts, "p3", mutation.OpCreate)
	require.NoError(t, repo.Append(ctx, third))
	require.Equal(t, int64(3), third.ClientSeq)
}

func TestMutationRepository_OldestAfterAndList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewMutationRepository(db)

	a := newMutation("tenant1", record.TableProducts, "p1", mutation.OpCreate)
	b := newMutation("tenant1", record.TableProducts, "p1", mutation.OpUpdate)
	b.BasePayload = record.Payload{"name": "before"}
	b.BaseVersion = 4
	require.NoError(t, repo.Append(ctx, a))
	require.NoError(t, repo.Append(ctx, b))

	oldest, err := repo.OldestAfter(ctx, "tenant1", record.TableProducts, 0)
	require.NoError(t, err)
	require.Equal(t, a.ID, oldest.ID)
	require.Nil(t, oldest.BasePayload)

	next, err := repo.OldestAfter(ctx, "tenant1", record.TableProducts, oldest.ClientSeq)
	require.NoError(t, err)
	require.Equal(t, b.ID, next.ID)

	_, err = repo.OldestAfter(ctx, "tenant1", record.TableProducts, next.ClientSeq)
	require.ErrorIs(t, err, mutation.ErrMutationNotFound)

	list, err := repo.List(ctx, "tenant1", mutation.ListOptions{Table: record.TableProducts, RecordID: "p1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, b.ID, list[1].ID)
	require.Equal(t, int64(4), list[1].BaseVersion)
	require.Equal(t, "before", list[1].BasePayload["name"])

	_, err = repo.OldestAfter(ctx, "tenant1", record.TableCustomers, 0)
	require.ErrorIs(t, err, mutation.ErrMutationNotFound)
}

func TestMutationRepository_UpdateAndResetInflight(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewMutationRepository(db)

	m := newMutation("tenant1", record.TableCustomers, "c1", mutation.OpUpdate)
	require.NoError(t, repo.Append(ctx, m))

	m.Status = mutation.StatusInflight
	m.AttemptCount = 2
	m.LastError = "timeout"
	m.NextAttemptAt = time.Now().Add(time.Minute).UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Update(ctx, m))

	loaded, err := repo.Get(ctx, "tenant1", m.ID)
	require.NoError(t, err)
	require.Equal(t, mutation.StatusInflight, loaded.Status)
	require.Equal(t, 2, loaded.AttemptCount)
	require.Equal(t, "timeout", loaded.LastError)
	require.True(t, m.NextAttemptAt.Equal(loaded.NextAttemptAt))

	n, err := repo.ResetInflight(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	loaded, err = repo.Get(ctx, "tenant1", m.ID)
	require.NoError(t, err)
	require.Equal(t, mutation.StatusPending, loaded.Status)

	missing := newMutation("tenant1", record.TableCustomers, "c2", mutation.OpUpdate)
	require.ErrorIs(t, repo.Update(ctx, missing), mutation.ErrMutationNotFound)
}

func TestMutationRepository_DeleteForRecordAndCount(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewMutationRepository(db)

	require.NoError(t, repo.Append(ctx, newMutation("tenant1", record.TableProducts, "p1", mutation.OpCreate)))
	require.NoError(t, repo.Append(ctx, newMutation("tenant1", record.TableProducts, "p1", mutation.OpUpdate)))
	require.NoError(t, repo.Append(ctx, newMutation("tenant1", record.TableProducts, "p2", mutation.OpCreate)))
	require.NoError(t, repo.Append(ctx, newMutation("tenant2", record.TableProducts, "p1", mutation.OpCreate)))

	count, err := repo.Count(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	n, err := repo.DeleteForRecord(ctx, "tenant1", record.TableProducts, "p1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	count, err = repo.Count(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	removed, err := repo.Delete(ctx, "tenant1", "unknown")
	require.NoError(t, err)
	require.False(t, removed)
}

func TestMutationRepository_ApplyLocalWriteIsAtomic(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewMutationRepository(db)
	records := NewRecordRepository(db, nil)

	rec := &record.Record{Table: record.TableProducts, ID: "p1", Payload: record.Payload{"name": "Soap"}}
	m := newMutation("tenant1", record.TableProducts, "p1", mutation.OpCreate)
	require.NoError(t, repo.ApplyLocalWrite(ctx, "tenant1", rec, m))
	require.Equal(t, int64(1), m.ClientSeq)

	_, err := records.Get(ctx, "tenant1", record.TableProducts, "p1")
	require.NoError(t, err)

	// A duplicate mutation id rolls back the record write too.
	rec2 := &record.Record{Table: record.TableProducts, ID: "p2", Payload: record.Payload{}}
	dup := *m
	dup.RecordID = "p2"
	err = repo.ApplyLocalWrite(ctx, "tenant1", rec2, &dup)
	require.ErrorIs(t, err, repository.ErrConflict)

	_, err = records.Get(ctx, "tenant1", record.TableProducts, "p2")
	require.ErrorIs(t, err, record.ErrRecordNotFound)

	err = repo.ApplyLocalWrite(ctx, "tenant1", rec2, newMutation("tenant1", record.TableProducts, "other", mutation.OpCreate))
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}
