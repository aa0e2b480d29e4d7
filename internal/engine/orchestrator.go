package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/remote"
	"github.com/tillpoint/possync/internal/status"
	"golang.org/x/sync/singleflight"
)

// State is the orchestrator state machine.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerStart    Trigger = "start"
	TriggerRegain   Trigger = "regain"
	TriggerManual   Trigger = "manual"
	TriggerPeriodic Trigger = "periodic"
)

const (
	DefaultLeaseTTL  = 30 * time.Second
	DefaultPullLimit = 200
	DefaultInterval  = 5 * time.Minute

	// maxMergeRounds bounds re-pushes of one mutation inside a cycle.
	maxMergeRounds = 3
)

// Config tunes the orchestrator. Zero values use the defaults.
type Config struct {
	HolderID  string
	LeaseTTL  time.Duration
	PullLimit int
	Interval  time.Duration
}

// Deps are the collaborators of one tenant's orchestrator.
type Deps struct {
	TenantID    string
	Handlers    Handlers
	Queue       *mutation.Queue
	Records     record.Repository
	Log         *synclog.Recorder
	Checkpoints Checkpoints
	Lease       Lease
	Storage     StorageChecker
	Guard       WriteGuard
	Publisher   *status.Publisher
	Logger      *slog.Logger
	// OnStorage is told whether local storage passed the cycle start check.
	OnStorage func(available bool)
}

// TableOutcome summarizes one table in one cycle.
type TableOutcome struct {
	Table     record.Table   `json:"table"`
	Attempted int            `json:"attempted"`
	Pushed    int            `json:"pushed"`
	Pulled    int            `json:"pulled"`
	Conflicts int            `json:"conflicts"`
	Status    synclog.Status `json:"status"`
	Error     string         `json:"error,omitempty"`
}

// Result describes a finished cycle.
type Result struct {
	Trigger Trigger        `json:"trigger"`
	State   State          `json:"state"`
	Joined  bool           `json:"joined"`
	Skipped bool           `json:"skipped"`
	Reason  string         `json:"reason,omitempty"`
	Tables  []TableOutcome `json:"tables,omitempty"`
	Started time.Time      `json:"started"`
	Ended   time.Time      `json:"ended"`
}

// Orchestrator runs sync cycles for one tenant. Concurrent triggers join
// the cycle already in flight.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	handlers []TableHandler
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time

	group singleflight.Group

	mu          sync.Mutex
	state       State
	base        context.Context
	cancelCycle context.CancelCauseFunc
}

// New creates an orchestrator. base bounds every cycle; cancelling it
// aborts the cycle in flight.
func New(base context.Context, deps Deps, cfg Config) (*Orchestrator, error) {
	handlers, err := deps.Handlers.ordered()
	if err != nil {
		return nil, err
	}
	if deps.TenantID == "" || deps.Queue == nil || deps.Records == nil || deps.Log == nil ||
		deps.Checkpoints == nil || deps.Lease == nil || deps.Publisher == nil {
		return nil, fmt.Errorf("orchestrator: missing dependency")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.HolderID == "" {
		cfg.HolderID = uuid.NewString()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.PullLimit <= 0 {
		cfg.PullLimit = DefaultPullLimit
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		handlers: handlers,
		logger:   deps.Logger.With("tenant_id", deps.TenantID),
		now:      time.Now,
		state:    StateIdle,
		base:     base,
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// HolderID returns the lease holder identity of this process.
func (o *Orchestrator) HolderID() string {
	return o.cfg.HolderID
}

// SyncNow runs a manual cycle. Exhausted mutations are retried and
// backoff delays are ignored.
func (o *Orchestrator) SyncNow(ctx context.Context) (*Result, error) {
	return o.Trigger(ctx, TriggerManual)
}

// Trigger starts a cycle or joins the one in flight, and waits for it.
// Automatic triggers are ignored while in the Error state until a manual
// sync succeeds.
func (o *Orchestrator) Trigger(ctx context.Context, trigger Trigger) (*Result, error) {
	if trigger == TriggerRegain || trigger == TriggerPeriodic {
		if o.State() == StateError {
			return &Result{Trigger: trigger, State: StateError, Skipped: true, Reason: "awaiting re-authentication"}, nil
		}
	}

	led := false
	ch := o.group.DoChan(o.deps.TenantID, func() (any, error) {
		led = true
		return o.cycle(trigger), nil
	})

	select {
	case r := <-ch:
		res := *r.Val.(*Result)
		res.Joined = !led
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel aborts the cycle in flight, leaving unacked mutations queued.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancelCycle
	o.mu.Unlock()
	if cancel != nil {
		cancel(nil)
	}
}

// Run triggers periodic cycles while online() reports true.
func (o *Orchestrator) Run(ctx context.Context, online func() bool) {
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !online() {
				continue
			}
			if _, err := o.Trigger(ctx, TriggerPeriodic); err != nil && ctx.Err() == nil {
				o.logger.Warn("periodic sync failed", "error", err)
			}
		}
	}
}

func (o *Orchestrator) setState(s State, lastErr string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.deps.Publisher.Update(func(st *status.SyncState) {
		st.IsSyncing = s == StateSyncing
		switch s {
		case StateSyncing:
			st.Phase = status.PhaseSyncing
		case StateError:
			st.Phase = status.PhaseError
		default:
			st.Phase = status.PhaseIdle
		}
		if s != StateSyncing {
			st.LastError = lastErr
		}
	})
}

func (o *Orchestrator) cycle(trigger Trigger) *Result {
	ctx, cancel := context.WithCancelCause(o.base)
	o.mu.Lock()
	prev := o.state
	o.cancelCycle = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancelCycle = nil
		o.mu.Unlock()
		cancel(nil)
	}()

	res := &Result{Trigger: trigger, Started: o.now().UTC()}
	finish := func(s State, reason string) *Result {
		res.State = s
		res.Ended = o.now().UTC()
		if reason != "" && res.Reason == "" {
			res.Reason = reason
		}
		o.setState(s, reason)
		o.deps.Queue.Notify(context.WithoutCancel(ctx), o.deps.TenantID)
		return res
	}

	o.setState(StateSyncing, "")
	o.logger.Info("sync cycle started", "trigger", trigger)

	if o.deps.Storage != nil {
		if err := o.deps.Storage.Check(ctx); err != nil {
			o.logger.Error("local storage unavailable, sync suspended", "error", err)
			o.storage(false)
			res.Skipped = true
			return finish(StateIdle, "local storage unavailable")
		}
		o.storage(true)
	}

	ok, err := o.deps.Lease.Acquire(ctx, o.deps.TenantID, o.cfg.HolderID, o.cfg.LeaseTTL)
	if err != nil {
		o.logger.Warn("failed to acquire sync lease", "error", err)
		res.Skipped = true
		return finish(restState(prev), "lease unavailable")
	}
	if !ok {
		o.logger.Info("sync lease held elsewhere, observing")
		res.Skipped = true
		return finish(restState(prev), ErrLeaseHeld.Error())
	}
	stopRenewing := o.keepLease(ctx, cancel)
	defer func() {
		stopRenewing()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.deps.Lease.Release(releaseCtx, o.deps.TenantID, o.cfg.HolderID); err != nil {
			o.logger.Warn("failed to release sync lease", "error", err)
		}
	}()

	force := trigger == TriggerManual
	clean := true
	for _, h := range o.handlers {
		if ctx.Err() != nil {
			break
		}

		out, err := o.syncTable(ctx, h, force)
		res.Tables = append(res.Tables, out)
		if out.Status == synclog.StatusFailed {
			clean = false
		}
		if errors.Is(err, remote.ErrAuth) {
			o.logger.Error("remote rejected credentials, sync stopped", "table", h.Table(), "error", err)
			return finish(StateError, err.Error())
		}
	}

	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), ErrLeaseLost) {
			return finish(StateIdle, ErrLeaseLost.Error())
		}
		o.logger.Info("sync cycle interrupted")
		return finish(StateIdle, "interrupted")
	}
	if clean {
		now := o.now().UTC()
		if err := o.deps.Checkpoints.MarkSynced(ctx, o.deps.TenantID, now); err != nil {
			o.logger.Warn("failed to record last sync", "error", err)
		}
		o.deps.Publisher.SetLastSync(now)
	}
	o.logger.Info("sync cycle finished", "clean", clean)
	return finish(StateIdle, "")
}

// keepLease renews the sync lease every third of its TTL until the returned
// stop func is called. A renewal that fails or finds the lease taken cancels
// the cycle with ErrLeaseLost, so no push goes out without the lease.
func (o *Orchestrator) keepLease(ctx context.Context, cancel context.CancelCauseFunc) (stop func()) {
	quit := make(chan struct{})
	var wg conc.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(max(o.cfg.LeaseTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			held, err := o.deps.Lease.Renew(ctx, o.deps.TenantID, o.cfg.HolderID, o.cfg.LeaseTTL)
			if ctx.Err() != nil {
				return
			}
			if err != nil || !held {
				o.logger.Warn("sync lease lost mid-cycle", "error", err)
				cancel(ErrLeaseLost)
				return
			}
		}
	})
	return func() {
		close(quit)
		wg.Wait()
	}
}

func restState(prev State) State {
	if prev == StateError {
		return StateError
	}
	return StateIdle
}

func (o *Orchestrator) storage(available bool) {
	o.deps.Publisher.SetStorageAvailable(available)
	if o.deps.OnStorage != nil {
		o.deps.OnStorage(available)
	}
}

func (o *Orchestrator) guard(fn func() error) error {
	if o.deps.Guard == nil {
		return fn()
	}
	return o.deps.Guard.Exclusive(fn)
}
