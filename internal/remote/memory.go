package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
)

// DefaultPullLimit caps one pull page.
const DefaultPullLimit = 500

// Hooks let tests and the dev server interpose on pushes.
type Hooks struct {
	// BeforePush runs before a batch is applied. A returned error fails
	// the whole push without applying anything.
	BeforePush func(ctx context.Context, tenantID string, table record.Table, batch []mutation.Mutation) error
	// AfterPush runs after a batch was applied. A returned error is given
	// to the caller although the writes are kept, like a response lost in
	// transit.
	AfterPush func(ctx context.Context, tenantID string, table record.Table, results []PushResult) error
	// Validate runs for each mutation as it is applied. A non-empty message
	// rejects that mutation as invalid.
	Validate func(m mutation.Mutation) string
}

// Applied is one accepted mutation in remote apply order.
type Applied struct {
	MutationID string
	Table      record.Table
	RecordID   string
	Op         mutation.Op
	Version    int64
}

type tableState struct {
	seq  int64
	rows map[string]*record.Record
}

type tenantState struct {
	tables  map[record.Table]*tableState
	applied map[string]int64
	history []Applied
}

// Memory is an in-process remote store. Every accepted write gets a new
// per-table version, deletes leave tombstones, and replayed mutation ids are
// acknowledged without being applied again.
type Memory struct {
	mu        sync.Mutex
	tenants   map[string]*tenantState
	hooks     Hooks
	reachable bool
	pushCalls int
	now       func() time.Time
}

// NewMemory creates an empty, reachable in-memory remote.
func NewMemory() *Memory {
	return &Memory{
		tenants:   make(map[string]*tenantState),
		reachable: true,
		now:       time.Now,
	}
}

// SetHooks installs push hooks.
func (s *Memory) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// SetReachable simulates losing or regaining the backend.
func (s *Memory) SetReachable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reachable = ok
}

// PushCalls returns how many PushBatch calls reached the store.
func (s *Memory) PushCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushCalls
}

// History returns accepted mutations of a tenant in apply order.
func (s *Memory) History(tenantID string) []Applied {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenants[tenantID]
	if t == nil {
		return nil
	}
	return append([]Applied(nil), t.history...)
}

// Get returns a copy of a remote row.
func (s *Memory) Get(tenantID string, table record.Table, id string) (*record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.table(tenantID, table).rows[id]
	if rec == nil {
		return nil, false
	}
	return rec.Clone(), true
}

// Write stores a row as another device would, bumping its version.
func (s *Memory) Write(tenantID string, table record.Table, id string, payload record.Payload) record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(tenantID, table, id, payload, false)
}

// Delete tombstones a row as another device would.
func (s *Memory) Delete(tenantID string, table record.Table, id string) record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payload record.Payload
	if cur := s.table(tenantID, table).rows[id]; cur != nil {
		payload = cur.Payload
	}
	return s.write(tenantID, table, id, payload, true)
}

// Health fails while the store is unreachable.
func (s *Memory) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reachable {
		return ErrNetwork
	}
	return nil
}

// PushBatch applies mutations in order.
func (s *Memory) PushBatch(ctx context.Context, tenantID string, table record.Table, batch []mutation.Mutation) ([]PushResult, error) {
	s.mu.Lock()
	s.pushCalls++
	hooks := s.hooks
	reachable := s.reachable
	s.mu.Unlock()

	if !reachable {
		return nil, ErrNetwork
	}
	if hooks.BeforePush != nil {
		if err := hooks.BeforePush(ctx, tenantID, table, batch); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	results := make([]PushResult, len(batch))
	for i := range batch {
		results[i] = s.apply(tenantID, table, &batch[i], hooks.Validate)
	}
	s.mu.Unlock()

	if hooks.AfterPush != nil {
		if err := hooks.AfterPush(ctx, tenantID, table, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// PullSince returns rows changed after watermark in version order.
func (s *Memory) PullSince(ctx context.Context, tenantID string, table record.Table, watermark int64, limit int) (*PullResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !table.Valid() {
		return nil, ErrInvalidInput
	}
	if limit <= 0 || limit > DefaultPullLimit {
		limit = DefaultPullLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reachable {
		return nil, ErrNetwork
	}

	var changed []record.Record
	for _, rec := range s.table(tenantID, table).rows {
		if rec.RemoteVersion > watermark {
			changed = append(changed, *rec.Clone())
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].RemoteVersion < changed[j].RemoteVersion })

	result := &PullResult{Watermark: watermark}
	if len(changed) > limit {
		changed = changed[:limit]
		result.HasMore = true
	}
	result.Records = changed
	if len(changed) > 0 {
		result.Watermark = changed[len(changed)-1].RemoteVersion
	}
	return result, nil
}

func (s *Memory) apply(tenantID string, table record.Table, m *mutation.Mutation, validate func(mutation.Mutation) string) PushResult {
	res := PushResult{MutationID: m.ID}
	t := s.tenant(tenantID)

	if version, ok := t.applied[m.ID]; ok {
		res.Status = StatusAccepted
		res.Version = version
		return res
	}
	if m.ID == "" || m.RecordID == "" || !table.Valid() || m.Table != table {
		res.Status = StatusRejected
		res.Reason = ReasonInvalid
		res.Message = "mutation is missing id, record id or table"
		return res
	}
	if validate != nil {
		if msg := validate(*m); msg != "" {
			res.Status = StatusRejected
			res.Reason = ReasonInvalid
			res.Message = msg
			return res
		}
	}

	cur := s.table(tenantID, table).rows[m.RecordID]
	reject := func(reason RejectReason) PushResult {
		res.Status = StatusRejected
		res.Reason = reason
		res.Latest = cur.Clone()
		return res
	}

	switch m.Op {
	case mutation.OpCreate:
		if cur != nil && !cur.Tombstone && cur.RemoteVersion != m.BaseVersion {
			return reject(ReasonVersionConflict)
		}
	case mutation.OpUpdate:
		if cur != nil && cur.Tombstone {
			return reject(ReasonTombstoned)
		}
		if cur != nil && cur.RemoteVersion != m.BaseVersion {
			return reject(ReasonVersionConflict)
		}
	case mutation.OpDelete:
		if cur != nil && cur.Tombstone {
			t.applied[m.ID] = cur.RemoteVersion
			res.Status = StatusAccepted
			res.Version = cur.RemoteVersion
			return res
		}
	default:
		res.Status = StatusRejected
		res.Reason = ReasonInvalid
		res.Message = fmt.Sprintf("unknown op %q", m.Op)
		return res
	}

	rec := s.write(tenantID, table, m.RecordID, m.Payload, m.Op == mutation.OpDelete)
	t.applied[m.ID] = rec.RemoteVersion
	t.history = append(t.history, Applied{
		MutationID: m.ID,
		Table:      table,
		RecordID:   m.RecordID,
		Op:         m.Op,
		Version:    rec.RemoteVersion,
	})
	res.Status = StatusAccepted
	res.Version = rec.RemoteVersion
	return res
}

func (s *Memory) write(tenantID string, table record.Table, id string, payload record.Payload, tombstone bool) record.Record {
	ts := s.table(tenantID, table)
	ts.seq++
	rec := &record.Record{
		Table:         table,
		ID:            id,
		TenantID:      tenantID,
		Payload:       payload.Clone(),
		RemoteVersion: ts.seq,
		Tombstone:     tombstone,
		ModifiedAt:    s.now().UTC(),
	}
	if rec.Payload == nil {
		rec.Payload = record.Payload{}
	}
	ts.rows[id] = rec
	return *rec.Clone()
}

func (s *Memory) tenant(tenantID string) *tenantState {
	t := s.tenants[tenantID]
	if t == nil {
		t = &tenantState{
			tables:  make(map[record.Table]*tableState),
			applied: make(map[string]int64),
		}
		s.tenants[tenantID] = t
	}
	return t
}

func (s *Memory) table(tenantID string, table record.Table) *tableState {
	t := s.tenant(tenantID)
	ts := t.tables[table]
	if ts == nil {
		ts = &tableState{rows: make(map[string]*record.Record)}
		t.tables[table] = ts
	}
	return ts
}
