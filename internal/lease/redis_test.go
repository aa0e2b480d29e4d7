package lease_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tillpoint/possync/internal/lease"
)

func newRedisLease(t *testing.T) *lease.Redis {
	t.Helper()
	addr := os.Getenv("POSSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POSSYNC_TEST_REDIS_ADDR not set")
	}
	l, err := lease.NewRedis(lease.Config{Addr: addr, KeyPrefix: "possync:test:" + uuid.NewString() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRedisLease_SingleHolder(t *testing.T) {
	ctx := context.Background()
	l := newRedisLease(t)

	ok, err := l.Acquire(ctx, "tenant1", "till-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Acquire(ctx, "tenant1", "till-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	// Re-acquiring by the holder extends the lease.
	ok, err = l.Acquire(ctx, "tenant1", "till-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Another holder cannot renew or release it.
	ok, err = l.Renew(ctx, "tenant1", "till-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, l.Release(ctx, "tenant1", "till-2"))

	ok, err = l.Acquire(ctx, "tenant1", "till-2", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, l.Release(ctx, "tenant1", "till-1"))
	ok, err = l.Acquire(ctx, "tenant1", "till-2", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLease_Expiry(t *testing.T) {
	ctx := context.Background()
	l := newRedisLease(t)

	ok, err := l.Acquire(ctx, "tenant1", "till-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		ok, err := l.Acquire(ctx, "tenant1", "till-2", time.Minute)
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond)
}
