package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
)

// Service is the UI write path over the local replica. Every write is paired
// with a queued mutation.
type Service struct {
	records record.Repository
	writer  LocalWriter
	queue   *mutation.Queue
	logger  *slog.Logger
	now     func() time.Time

	// writeMu serializes read-modify-write cycles of UI and sync writes.
	writeMu sync.Mutex

	mu        sync.RWMutex
	readOnly  bool
	listeners []AvailabilityListener
}

// NewService creates a new replica service.
func NewService(records record.Repository, writer LocalWriter, queue *mutation.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		records: records,
		writer:  writer,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// OnAvailability registers a storage availability listener.
func (s *Service) OnAvailability(fn AvailabilityListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// ReadOnly reports whether writes are currently refused.
func (s *Service) ReadOnly() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readOnly
}

// SetAvailable flips the read-only state and notifies listeners on change.
func (s *Service) SetAvailable(available bool) {
	s.mu.Lock()
	if s.readOnly == !available {
		s.mu.Unlock()
		return
	}
	s.readOnly = !available
	listeners := append([]AvailabilityListener(nil), s.listeners...)
	s.mu.Unlock()

	if available {
		s.logger.Info("local storage available again")
	} else {
		s.logger.Error("local storage unavailable, replica is read-only")
	}
	for _, fn := range listeners {
		fn(available)
	}
}

// Exclusive runs fn while no UI write is in progress. The sync engine
// applies acknowledged and pulled state through it.
func (s *Service) Exclusive(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// Get returns a live or tombstoned record.
func (s *Service) Get(ctx context.Context, tenantID string, table record.Table, id string) (*record.Record, error) {
	if !table.Valid() || id == "" {
		return nil, record.ErrInvalidInput
	}
	rec, err := s.records.Get(ctx, tenantID, table, id)
	if err != nil {
		return nil, s.observe(err)
	}
	return rec, nil
}

// List returns records of a table.
func (s *Service) List(ctx context.Context, tenantID string, table record.Table, opts record.ListOptions) ([]record.Record, error) {
	if !table.Valid() {
		return nil, record.ErrInvalidInput
	}
	recs, err := s.records.List(ctx, tenantID, table, opts)
	if err != nil {
		return nil, s.observe(err)
	}
	return recs, nil
}

// Create writes a new record. An empty id is replaced by a generated one.
// A tombstoned id may be recreated.
func (s *Service) Create(ctx context.Context, tenantID string, table record.Table, id string, payload record.Payload) (*record.Record, error) {
	if tenantID == "" || !table.Valid() {
		return nil, record.ErrInvalidInput
	}
	if id == "" {
		id = uuid.NewString()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var base *record.Record
	existing, err := s.records.Get(ctx, tenantID, table, id)
	switch {
	case err == nil && !existing.Tombstone:
		return nil, ErrRecordExists
	case err == nil:
		base = existing
	case !errors.Is(err, record.ErrRecordNotFound):
		return nil, s.observe(err)
	}

	now := s.now().UTC()
	rec := &record.Record{
		Table:      table,
		ID:         id,
		TenantID:   tenantID,
		Payload:    payload.Clone(),
		ModifiedAt: now,
	}
	if rec.Payload == nil {
		rec.Payload = record.Payload{}
	}
	m := &mutation.Mutation{
		TenantID:  tenantID,
		Table:     table,
		RecordID:  id,
		Op:        mutation.OpCreate,
		Payload:   rec.Payload.Clone(),
		CreatedAt: now,
	}
	if base != nil {
		rec.RemoteVersion = base.RemoteVersion
		m.BaseVersion = base.RemoteVersion
	}
	if err := s.write(ctx, tenantID, rec, m); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges patch into the current payload of a live record.
func (s *Service) Update(ctx context.Context, tenantID string, table record.Table, id string, patch record.Payload) (*record.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, err := s.live(ctx, tenantID, table, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := current.Clone()
	rec.Payload = current.Payload.Merge(patch)
	rec.ModifiedAt = now
	m := &mutation.Mutation{
		TenantID:    tenantID,
		Table:       table,
		RecordID:    id,
		Op:          mutation.OpUpdate,
		Payload:     rec.Payload.Clone(),
		BasePayload: current.Payload.Clone(),
		BaseVersion: current.RemoteVersion,
		CreatedAt:   now,
	}
	if err := s.write(ctx, tenantID, rec, m); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete tombstones a live record.
func (s *Service) Delete(ctx context.Context, tenantID string, table record.Table, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, err := s.live(ctx, tenantID, table, id)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	rec := current.Clone()
	rec.Tombstone = true
	rec.ModifiedAt = now
	m := &mutation.Mutation{
		TenantID:    tenantID,
		Table:       table,
		RecordID:    id,
		Op:          mutation.OpDelete,
		Payload:     current.Payload.Clone(),
		BasePayload: current.Payload.Clone(),
		BaseVersion: current.RemoteVersion,
		CreatedAt:   now,
	}
	return s.write(ctx, tenantID, rec, m)
}

func (s *Service) live(ctx context.Context, tenantID string, table record.Table, id string) (*record.Record, error) {
	if tenantID == "" || !table.Valid() || id == "" {
		return nil, record.ErrInvalidInput
	}
	rec, err := s.records.Get(ctx, tenantID, table, id)
	if err != nil {
		return nil, s.observe(err)
	}
	if rec.Tombstone {
		return nil, record.ErrRecordNotFound
	}
	return rec, nil
}

func (s *Service) write(ctx context.Context, tenantID string, rec *record.Record, m *mutation.Mutation) error {
	if s.ReadOnly() {
		return ErrReadOnly
	}
	if err := s.queue.Prepare(m); err != nil {
		return err
	}
	if err := s.writer.ApplyLocalWrite(ctx, tenantID, rec, m); err != nil {
		if errors.Is(err, record.ErrStorageUnavailable) {
			s.SetAvailable(false)
			return fmt.Errorf("%w: %v", ErrReadOnly, err)
		}
		return fmt.Errorf("writing %s/%s: %w", rec.Table, rec.ID, err)
	}
	s.logger.Debug("local write queued",
		"tenant_id", tenantID, "table", rec.Table, "record_id", rec.ID,
		"op", m.Op, "client_seq", m.ClientSeq)
	s.queue.Notify(ctx, tenantID)
	return nil
}

func (s *Service) observe(err error) error {
	if errors.Is(err, record.ErrStorageUnavailable) {
		s.SetAvailable(false)
	}
	return err
}
