package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	up    atomic.Bool
	calls atomic.Int32
}

func (p *fakeProber) Health(context.Context) error {
	p.calls.Add(1)
	if p.up.Load() {
		return nil
	}
	return errors.New("unreachable")
}

func newTestMonitor(t *testing.T, debounce time.Duration) (*Monitor, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	m := NewMonitor(&fakeProber{}, Config{Debounce: debounce, ProbeInterval: time.Hour}, nil)
	var online, offline atomic.Int32
	m.OnOnline(func() { online.Add(1) })
	m.OnOffline(func() { offline.Add(1) })
	t.Cleanup(m.Stop)
	return m, &online, &offline
}

func TestMonitor_FirstSampleIsAdoptedSilently(t *testing.T) {
	m, online, offline := newTestMonitor(t, 20*time.Millisecond)

	m.Observe(true)
	require.True(t, m.Online())
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, online.Load())
	require.Zero(t, offline.Load())
}

func TestMonitor_TransitionAfterDebounce(t *testing.T) {
	m, online, offline := newTestMonitor(t, 30*time.Millisecond)
	m.Observe(false)

	m.Observe(true)
	require.False(t, m.Online(), "not declared before the window elapses")
	require.Eventually(t, func() bool { return online.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, m.Online())

	m.Observe(false)
	require.Eventually(t, func() bool { return offline.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.False(t, m.Online())
}

func TestMonitor_FlapWithinWindowIsIgnored(t *testing.T) {
	m, online, offline := newTestMonitor(t, 80*time.Millisecond)
	m.Observe(true)

	m.Observe(false)
	m.Observe(true)
	m.Observe(false)
	m.Observe(true)

	require.Never(t, func() bool { return offline.Load() > 0 || online.Load() > 0 }, 200*time.Millisecond, 10*time.Millisecond)
	require.True(t, m.Online())
}

func TestMonitor_RegainAfterFlapFiresOnce(t *testing.T) {
	m, online, _ := newTestMonitor(t, 50*time.Millisecond)
	m.Observe(false)

	m.Observe(true)
	m.Observe(false)
	m.Observe(true)

	require.Eventually(t, func() bool { return online.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return online.Load() > 1 }, 150*time.Millisecond, 10*time.Millisecond)
}

func TestMonitor_ProbeIsAuthoritative(t *testing.T) {
	prober := &fakeProber{}
	m := NewMonitor(prober, Config{Debounce: 20 * time.Millisecond, ProbeInterval: time.Hour}, nil)
	t.Cleanup(m.Stop)
	ctx := context.Background()

	m.Start(ctx)
	require.False(t, m.Online())

	// Link up with a dead backend stays offline.
	m.ReportLink(ctx, true)
	require.Never(t, m.Online, 100*time.Millisecond, 10*time.Millisecond)

	prober.up.Store(true)
	require.NoError(t, m.Check(ctx))
	require.Eventually(t, m.Online, time.Second, 5*time.Millisecond)

	m.ReportLink(ctx, false)
	require.Eventually(t, func() bool { return !m.Online() }, time.Second, 5*time.Millisecond)

	calls := prober.calls.Load()
	require.NoError(t, m.Check(ctx), "link down skips the probe")
	require.Equal(t, calls, prober.calls.Load())
}
