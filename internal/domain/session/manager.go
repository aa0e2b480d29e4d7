package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Manager owns one Engine per signed-in tenant.
type Manager struct {
	deps Deps
	cfg  Config

	mu      sync.Mutex
	engines map[string]*Engine
	closed  bool
}

// NewManager creates a manager.
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		cfg:     cfg,
		engines: make(map[string]*Engine),
	}
}

// Start returns the tenant's engine, starting it on first use.
func (m *Manager) Start(ctx context.Context, tenantID string) (*Engine, error) {
	if tenantID == "" {
		return nil, ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if e, ok := m.engines[tenantID]; ok {
		return e, nil
	}

	e, err := newEngine(ctx, tenantID, m.deps, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("starting session for %s: %w", tenantID, err)
	}
	m.engines[tenantID] = e
	return e, nil
}

// Get returns a running engine.
func (m *Manager) Get(tenantID string) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[tenantID]
	if !ok {
		return nil, ErrNotStarted
	}
	return e, nil
}

// Tenants lists tenants with a running engine.
func (m *Manager) Tenants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.engines))
	for id := range m.engines {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Stop closes a tenant's engine, as on logout.
func (m *Manager) Stop(tenantID string) error {
	m.mu.Lock()
	e, ok := m.engines[tenantID]
	delete(m.engines, tenantID)
	m.mu.Unlock()
	if !ok {
		return ErrNotStarted
	}
	return e.Close()
}

// Close stops every engine.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	engines := m.engines
	m.engines = make(map[string]*Engine)
	m.mu.Unlock()

	var result *multierror.Error
	for id, e := range engines {
		if err := e.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing session %s: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}
