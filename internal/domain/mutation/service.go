package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tillpoint/possync/internal/domain/record"
)

// PendingListener is told the live queue length after every change.
type PendingListener func(tenantID string, pending int)

// Queue is the change queue service.
type Queue struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners []PendingListener
}

// NewQueue creates a new change queue service.
func NewQueue(repo Repository, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{repo: repo, logger: logger, now: time.Now}
}

// OnChange registers a listener for queue length changes.
func (q *Queue) OnChange(fn PendingListener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// Append validates and durably queues a mutation, assigning its client sequence.
func (q *Queue) Append(ctx context.Context, m *Mutation) error {
	if err := q.prepare(m); err != nil {
		return err
	}
	if err := q.repo.Append(ctx, m); err != nil {
		return fmt.Errorf("appending mutation: %w", err)
	}
	q.Notify(ctx, m.TenantID)
	return nil
}

// Prepare fills defaults on a mutation that will be appended by another
// repository inside a combined transaction.
func (q *Queue) Prepare(m *Mutation) error {
	return q.prepare(m)
}

func (q *Queue) prepare(m *Mutation) error {
	if m == nil || m.TenantID == "" || m.RecordID == "" || !m.Table.Valid() {
		return ErrInvalidInput
	}
	switch m.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return ErrInvalidInput
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = q.now().UTC()
	}
	m.Status = StatusPending
	m.AttemptCount = 0
	m.NextAttemptAt = time.Time{}
	return nil
}

// PeekOldestUnacked returns the lowest-sequence mutation of the table that
// has not been acknowledged, or nil when the table is drained. The head is
// returned whether or not it is due; Ready decides if it may be pushed.
func (q *Queue) PeekOldestUnacked(ctx context.Context, tenantID string, table record.Table) (*Mutation, error) {
	return q.PeekAfter(ctx, tenantID, table, 0)
}

// PeekAfter is PeekOldestUnacked restricted to client sequences above
// afterSeq, so a drain can step past heads it has to leave queued.
func (q *Queue) PeekAfter(ctx context.Context, tenantID string, table record.Table, afterSeq int64) (*Mutation, error) {
	m, err := q.repo.OldestAfter(ctx, tenantID, table, afterSeq)
	if err != nil {
		if errors.Is(err, ErrMutationNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("peeking queue: %w", err)
	}
	return m, nil
}

// Pending lists every unacked mutation of the table in client sequence order.
func (q *Queue) Pending(ctx context.Context, tenantID string, table record.Table) ([]Mutation, error) {
	return q.repo.List(ctx, tenantID, ListOptions{Table: table})
}

// PendingFor lists unacked mutations of one record.
func (q *Queue) PendingFor(ctx context.Context, tenantID string, table record.Table, recordID string) ([]Mutation, error) {
	return q.repo.List(ctx, tenantID, ListOptions{Table: table, RecordID: recordID})
}

// List lists queued mutations with filtering.
func (q *Queue) List(ctx context.Context, tenantID string, opts ListOptions) ([]Mutation, error) {
	return q.repo.List(ctx, tenantID, opts)
}

// Get loads a queued mutation.
func (q *Queue) Get(ctx context.Context, tenantID, id string) (*Mutation, error) {
	return q.repo.Get(ctx, tenantID, id)
}

// MarkInflight flags the mutation as being pushed.
func (q *Queue) MarkInflight(ctx context.Context, m *Mutation) error {
	m.Status = StatusInflight
	if err := q.repo.Update(ctx, m); err != nil {
		return fmt.Errorf("marking inflight: %w", err)
	}
	return nil
}

// Ack removes an acknowledged mutation. Acking an unknown id is a no-op so a
// replayed acknowledgement never fails.
func (q *Queue) Ack(ctx context.Context, tenantID, id string) error {
	removed, err := q.repo.Delete(ctx, tenantID, id)
	if err != nil {
		return fmt.Errorf("acking mutation: %w", err)
	}
	if !removed {
		q.logger.Debug("ack for unknown mutation", "tenant_id", tenantID, "mutation_id", id)
		return nil
	}
	q.Notify(ctx, tenantID)
	return nil
}

// Requeue records a transient push failure and schedules the next attempt
// with exponential backoff. Once the budget is spent the mutation stays
// queued as failed.
func (q *Queue) Requeue(ctx context.Context, m *Mutation, cause error) error {
	m.AttemptCount++
	if cause != nil {
		m.LastError = cause.Error()
	}
	if m.Exhausted() {
		m.Status = StatusFailed
		m.NextAttemptAt = time.Time{}
		q.logger.Warn("mutation retries exhausted",
			"tenant_id", m.TenantID, "table", m.Table, "record_id", m.RecordID,
			"mutation_id", m.ID, "attempts", m.AttemptCount)
	} else {
		m.Status = StatusPending
		m.NextAttemptAt = q.now().UTC().Add(RetryDelay(m.AttemptCount))
	}
	if err := q.repo.Update(ctx, m); err != nil {
		return fmt.Errorf("requeueing mutation: %w", err)
	}
	return nil
}

// Release returns an inflight mutation to pending without charging an
// attempt, used when a push was cancelled or the session lost authorization.
func (q *Queue) Release(ctx context.Context, m *Mutation) error {
	if m.Status != StatusInflight {
		return nil
	}
	m.Status = StatusPending
	if err := q.repo.Update(ctx, m); err != nil {
		return fmt.Errorf("releasing mutation: %w", err)
	}
	return nil
}

// Reject marks a mutation the remote refused outright. It stays queued and
// visible as failed.
func (q *Queue) Reject(ctx context.Context, m *Mutation, reason string) error {
	m.AttemptCount = MaxAttempts
	m.Status = StatusFailed
	m.LastError = reason
	m.NextAttemptAt = time.Time{}
	if err := q.repo.Update(ctx, m); err != nil {
		return fmt.Errorf("rejecting mutation: %w", err)
	}
	return nil
}

// Replace persists a merged payload and new base for a mutation.
func (q *Queue) Replace(ctx context.Context, m *Mutation) error {
	if err := q.repo.Update(ctx, m); err != nil {
		return fmt.Errorf("replacing mutation: %w", err)
	}
	return nil
}

// Rebase re-targets every queued mutation of the record at the version the
// remote just acknowledged. adjust may rewrite each payload onto the
// acknowledged state before it is stored. The rebased mutations are returned
// in client sequence order.
func (q *Queue) Rebase(ctx context.Context, tenantID string, table record.Table, recordID string, version int64, adjust func(*Mutation)) ([]Mutation, error) {
	pending, err := q.repo.List(ctx, tenantID, ListOptions{Table: table, RecordID: recordID})
	if err != nil {
		return nil, fmt.Errorf("listing mutations to rebase: %w", err)
	}
	for i := range pending {
		m := &pending[i]
		m.BaseVersion = version
		if adjust != nil {
			adjust(m)
		}
		if err := q.repo.Update(ctx, m); err != nil {
			return nil, fmt.Errorf("rebasing mutation %s: %w", m.ID, err)
		}
	}
	return pending, nil
}

// Drop removes all queued mutations of a record that lost a delete-wins
// conflict. The caller logs them as conflicted.
func (q *Queue) Drop(ctx context.Context, tenantID string, table record.Table, recordID string) (int64, error) {
	n, err := q.repo.DeleteForRecord(ctx, tenantID, table, recordID)
	if err != nil {
		return 0, fmt.Errorf("dropping mutations: %w", err)
	}
	if n > 0 {
		q.Notify(ctx, tenantID)
	}
	return n, nil
}

// PendingChanges returns the number of unacked mutations of the tenant.
func (q *Queue) PendingChanges(ctx context.Context, tenantID string) (int, error) {
	n, err := q.repo.Count(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("counting mutations: %w", err)
	}
	return n, nil
}

// Recover returns mutations left inflight by a crashed process to pending.
func (q *Queue) Recover(ctx context.Context, tenantID string) error {
	n, err := q.repo.ResetInflight(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("recovering inflight mutations: %w", err)
	}
	if n > 0 {
		q.logger.Info("recovered inflight mutations", "tenant_id", tenantID, "count", n)
	}
	q.Notify(ctx, tenantID)
	return nil
}

// Notify recounts the queue and tells listeners.
func (q *Queue) Notify(ctx context.Context, tenantID string) {
	q.mu.RLock()
	listeners := append([]PendingListener(nil), q.listeners...)
	q.mu.RUnlock()
	if len(listeners) == 0 {
		return
	}
	n, err := q.repo.Count(ctx, tenantID)
	if err != nil {
		q.logger.Warn("failed to count queue", "tenant_id", tenantID, "error", err)
		return
	}
	for _, fn := range listeners {
		fn(tenantID, n)
	}
}
