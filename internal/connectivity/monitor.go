// Package connectivity decides whether the remote store is reachable.
// Link-layer signals alone are not trusted: only a successful health probe
// counts as online, and a new state must hold for the debounce window
// before it is declared.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultDebounce      = 2 * time.Second
	DefaultProbeInterval = 15 * time.Second
	DefaultProbeTimeout  = 5 * time.Second
)

// Prober checks the remote health endpoint.
type Prober interface {
	Health(ctx context.Context) error
}

// Config tunes the monitor. Zero values use the defaults.
type Config struct {
	Debounce      time.Duration
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	return c
}

// Monitor tracks debounced online state.
type Monitor struct {
	prober  Prober
	cfg     Config
	logger  *slog.Logger
	limiter *rate.Limiter

	mu        sync.Mutex
	known     bool
	declared  bool
	candidate bool
	timer     *time.Timer
	gen       uint64
	linkDown  bool
	onOnline  []func()
	onOffline []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. It starts offline.
func NewMonitor(prober Prober, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Monitor{
		prober:  prober,
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(cfg.Debounce/2+time.Millisecond), 2),
	}
}

// OnOnline registers a callback for declared offline→online transitions.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// OnOffline registers a callback for declared online→offline transitions.
func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

// Online returns the declared state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.declared
}

// Start probes once and then periodically until ctx ends or Stop is called.
// The first probe result is adopted without debounce or callbacks.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	_ = m.Check(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.ProbeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = m.Check(ctx)
			}
		}
	}()
}

// Stop ends probing and drops any pending transition.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// ReportLink feeds a platform link signal. Link loss counts as offline at
// once; link regain only schedules a probe.
func (m *Monitor) ReportLink(ctx context.Context, up bool) {
	m.mu.Lock()
	m.linkDown = !up
	m.mu.Unlock()

	if !up {
		m.observe(false)
		return
	}
	if !m.limiter.Allow() {
		m.logger.Debug("link up probe throttled")
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_ = m.Check(ctx)
	}()
}

// Check runs one probe and feeds its result into the debouncer.
func (m *Monitor) Check(ctx context.Context) error {
	m.mu.Lock()
	linkDown := m.linkDown
	m.mu.Unlock()
	if linkDown {
		m.observe(false)
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	err := m.prober.Health(probeCtx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.observe(err == nil)
	return err
}

// Observe feeds a reachability sample into the debouncer.
func (m *Monitor) Observe(online bool) {
	m.observe(online)
}

func (m *Monitor) observe(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.known {
		m.known = true
		m.declared = online
		m.candidate = online
		m.logger.Info("initial connectivity", "online", online)
		return
	}
	if m.timer != nil && m.candidate == online {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.candidate = online
	if online == m.declared {
		return
	}
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(m.cfg.Debounce, func() { m.settle(online, gen) })
}

func (m *Monitor) settle(online bool, gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.candidate != online || m.declared == online {
		m.mu.Unlock()
		return
	}
	m.declared = online
	m.timer = nil
	callbacks := m.onOffline
	if online {
		callbacks = m.onOnline
	}
	callbacks = append([]func(){}, callbacks...)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range callbacks {
		fn()
	}
}
