package session_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/session"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/remote"
	"github.com/tillpoint/possync/internal/sqlite"
)

const tenantID = "tenant1"

func newManager(t *testing.T, rm *remote.Memory) (*session.Manager, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mutations := sqlite.NewMutationRepository(db)
	m := session.NewManager(session.Deps{
		Records:     sqlite.NewRecordRepository(db, logger),
		Mutations:   mutations,
		Writer:      mutations,
		SyncLog:     sqlite.NewSyncLogRepository(db),
		Checkpoints: sqlite.NewCheckpointRepository(db),
		Lease:       sqlite.NewLeaseRepository(db),
		Storage:     db,
		Remote:      rm,
		Logger:      logger,
	}, session.Config{
		HolderID:      "till-1",
		Debounce:      20 * time.Millisecond,
		ProbeInterval: time.Hour,
	})
	t.Cleanup(func() { _ = m.Close() })
	return m, db
}

func TestManager_StartValidatesTenant(t *testing.T) {
	m, _ := newManager(t, remote.NewMemory())

	_, err := m.Start(context.Background(), "")
	require.ErrorIs(t, err, session.ErrInvalidInput)

	_, err = m.Get(tenantID)
	require.ErrorIs(t, err, session.ErrNotStarted)
}

func TestManager_StartReturnsRunningEngine(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, remote.NewMemory())

	first, err := m.Start(ctx, tenantID)
	require.NoError(t, err)
	second, err := m.Start(ctx, tenantID)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, []string{tenantID}, m.Tenants())

	got, err := m.Get(tenantID)
	require.NoError(t, err)
	require.Same(t, first, got)
}

func TestManager_StartSyncsQueuedChanges(t *testing.T) {
	ctx := context.Background()
	rm := remote.NewMemory()
	m, _ := newManager(t, rm)

	e, err := m.Start(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, e.Status().IsOnline)

	_, err = e.Replica().Create(ctx, tenantID, record.TableProducts, "p1", record.Payload{"name": "Tea"})
	require.NoError(t, err)
	require.Equal(t, 1, e.Status().PendingChanges)

	// The start cycle may still be running; a manual sync joins it.
	var got *record.Record
	require.Eventually(t, func() bool {
		res, err := e.SyncNow(ctx)
		require.NoError(t, err)
		require.Equal(t, engine.StateIdle, res.State)
		var ok bool
		got, ok = rm.Get(tenantID, record.TableProducts, "p1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "Tea", got.Payload["name"])
	require.Equal(t, 0, e.Status().PendingChanges)
	require.NotNil(t, e.Status().LastSync)
}

func TestManager_RegainTriggersSync(t *testing.T) {
	ctx := context.Background()
	rm := remote.NewMemory()
	rm.SetReachable(false)
	m, _ := newManager(t, rm)

	e, err := m.Start(ctx, tenantID)
	require.NoError(t, err)
	require.False(t, e.Status().IsOnline)

	_, err = e.Replica().Create(ctx, tenantID, record.TableCustomers, "c1", record.Payload{"name": "Ann"})
	require.NoError(t, err)

	rm.SetReachable(true)
	require.NoError(t, e.CheckConnectivity(ctx))

	require.Eventually(t, func() bool {
		_, ok := rm.Get(tenantID, record.TableCustomers, "c1")
		return ok && e.Status().PendingChanges == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, e.Status().IsOnline)
}

func TestManager_StopKeepsQueue(t *testing.T) {
	ctx := context.Background()
	rm := remote.NewMemory()
	rm.SetReachable(false)
	m, _ := newManager(t, rm)

	e, err := m.Start(ctx, tenantID)
	require.NoError(t, err)
	_, err = e.Replica().Create(ctx, tenantID, record.TableProducts, "p1", record.Payload{"name": "Tea"})
	require.NoError(t, err)

	require.NoError(t, m.Stop(tenantID))
	_, err = m.Get(tenantID)
	require.ErrorIs(t, err, session.ErrNotStarted)
	require.ErrorIs(t, m.Stop(tenantID), session.ErrNotStarted)

	e, err = m.Start(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, e.Status().PendingChanges)
}

func TestManager_CloseRejectsStart(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, remote.NewMemory())

	_, err := m.Start(ctx, tenantID)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.Empty(t, m.Tenants())

	_, err = m.Start(ctx, tenantID)
	require.ErrorIs(t, err, session.ErrClosed)
}
