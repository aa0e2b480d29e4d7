// Package status holds the live sync state consumed by UI indicators.
package status

import (
	"sync"
	"time"
)

// Phase names what the engine is doing right now.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseSyncing Phase = "syncing"
	PhaseError   Phase = "error"
)

// SyncState is the derived, never persisted sync snapshot.
type SyncState struct {
	IsOnline           bool       `json:"is_online"`
	IsSyncing          bool       `json:"is_syncing"`
	PendingChanges     int        `json:"pending_changes"`
	LastSync           *time.Time `json:"last_sync"`
	Phase              Phase      `json:"phase"`
	LastError          string     `json:"last_error,omitempty"`
	StorageUnavailable bool       `json:"storage_unavailable"`
}

func (s SyncState) equal(o SyncState) bool {
	if s.IsOnline != o.IsOnline || s.IsSyncing != o.IsSyncing ||
		s.PendingChanges != o.PendingChanges || s.Phase != o.Phase ||
		s.LastError != o.LastError || s.StorageUnavailable != o.StorageUnavailable {
		return false
	}
	switch {
	case s.LastSync == nil && o.LastSync == nil:
		return true
	case s.LastSync == nil || o.LastSync == nil:
		return false
	default:
		return s.LastSync.Equal(*o.LastSync)
	}
}

// Publisher fans the current SyncState out to subscribers. Each subscriber
// channel holds at most one state; a slow reader sees only the latest.
type Publisher struct {
	mu     sync.Mutex
	state  SyncState
	subs   map[int]chan SyncState
	nextID int
	closed bool
}

// NewPublisher creates a publisher in the idle, offline state.
func NewPublisher() *Publisher {
	return &Publisher{
		state: SyncState{Phase: PhaseIdle},
		subs:  make(map[int]chan SyncState),
	}
}

// Snapshot returns the current state.
func (p *Publisher) Snapshot() SyncState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// Subscribe returns a channel that first receives the current state and
// then every change. Call cancel to unsubscribe.
func (p *Publisher) Subscribe() (<-chan SyncState, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan SyncState, 1)
	if p.closed {
		close(ch)
		return ch, func() {}
	}
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.state.clone()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if sub, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(sub)
			}
		})
	}
}

// Update applies fn to the state and notifies subscribers if it changed.
func (p *Publisher) Update(fn func(*SyncState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	next := p.state.clone()
	fn(&next)
	if next.equal(p.state) {
		return
	}
	p.state = next
	for _, ch := range p.subs {
		offer(ch, next.clone())
	}
}

// SetOnline records the connectivity monitor's verdict.
func (p *Publisher) SetOnline(online bool) {
	p.Update(func(s *SyncState) { s.IsOnline = online })
}

// SetPending records the number of unacked mutations.
func (p *Publisher) SetPending(n int) {
	p.Update(func(s *SyncState) { s.PendingChanges = n })
}

// SetLastSync records the end of the last clean cycle.
func (p *Publisher) SetLastSync(t time.Time) {
	p.Update(func(s *SyncState) { s.LastSync = &t })
}

// SetStorageAvailable raises or clears the storage banner.
func (p *Publisher) SetStorageAvailable(available bool) {
	p.Update(func(s *SyncState) { s.StorageUnavailable = !available })
}

// Close ends every subscription.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}

func (s SyncState) clone() SyncState {
	if s.LastSync != nil {
		t := *s.LastSync
		s.LastSync = &t
	}
	return s
}

// offer replaces a stale buffered state so the send never blocks.
func offer(ch chan SyncState, s SyncState) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
