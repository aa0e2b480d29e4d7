package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/tillpoint/possync/internal/connectivity"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/replica"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/status"
)

// Engine is the sync engine of one signed-in tenant. Its SyncState lives
// exactly as long as the engine.
type Engine struct {
	tenantID    string
	replica     *replica.Service
	queue       *mutation.Queue
	log         *synclog.Recorder
	publisher   *status.Publisher
	monitor     *connectivity.Monitor
	orch        *engine.Orchestrator
	watcher     *status.Watcher
	checkpoints engine.Checkpoints
	logger      *slog.Logger

	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newEngine(ctx context.Context, tenantID string, deps Deps, cfg Config) (*Engine, error) {
	logger := deps.Logger.With("tenant_id", tenantID)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	queue := mutation.NewQueue(deps.Mutations, logger)
	publisher := status.NewPublisher()
	svc := replica.NewService(deps.Records, deps.Writer, queue, logger)
	recorder := synclog.NewRecorder(deps.SyncLog, cfg.LogCap, logger)
	monitor := connectivity.NewMonitor(deps.Remote, connectivity.Config{
		Debounce:      cfg.Debounce,
		ProbeInterval: cfg.ProbeInterval,
		ProbeTimeout:  cfg.ProbeTimeout,
	}, logger)

	orch, err := engine.New(runCtx, engine.Deps{
		TenantID:    tenantID,
		Handlers:    engine.NewHandlers(deps.Remote),
		Queue:       queue,
		Records:     deps.Records,
		Log:         recorder,
		Checkpoints: deps.Checkpoints,
		Lease:       deps.Lease,
		Storage:     deps.Storage,
		Guard:       svc,
		Publisher:   publisher,
		Logger:      logger,
		OnStorage:   svc.SetAvailable,
	}, engine.Config{
		HolderID:  cfg.HolderID,
		LeaseTTL:  cfg.LeaseTTL,
		PullLimit: cfg.PullLimit,
		Interval:  cfg.SyncInterval,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	e := &Engine{
		tenantID:    tenantID,
		replica:     svc,
		queue:       queue,
		log:         recorder,
		publisher:   publisher,
		monitor:     monitor,
		orch:        orch,
		checkpoints: deps.Checkpoints,
		logger:      logger,
		cancel:      cancel,
	}

	if deps.DBPath != "" {
		w, err := status.NewWatcher(deps.DBPath, cfg.WatchDebounce, e.refresh, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		e.watcher = w
	}

	queue.OnChange(func(_ string, n int) { publisher.SetPending(n) })
	svc.OnAvailability(publisher.SetStorageAvailable)
	monitor.OnOffline(func() {
		publisher.SetOnline(false)
		orch.Cancel()
	})
	monitor.OnOnline(func() {
		publisher.SetOnline(true)
		e.goTrigger(runCtx, engine.TriggerRegain)
	})

	if err := e.start(ctx, runCtx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) start(ctx, runCtx context.Context) error {
	if err := e.queue.Recover(ctx, e.tenantID); err != nil {
		return err
	}
	if err := e.refresh(ctx); err != nil {
		return err
	}

	e.monitor.Start(runCtx)
	online := e.monitor.Online()
	e.publisher.SetOnline(online)
	if online {
		e.goTrigger(runCtx, engine.TriggerStart)
	}

	e.wg.Go(func() { e.orch.Run(runCtx, e.monitor.Online) })

	if e.watcher != nil {
		if err := e.watcher.Start(runCtx); err != nil {
			return fmt.Errorf("starting watcher: %w", err)
		}
	}
	e.logger.Info("sync session started", "online", online, "holder_id", e.orch.HolderID())
	return nil
}

func (e *Engine) goTrigger(ctx context.Context, trigger engine.Trigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.wg.Go(func() {
		if _, err := e.orch.Trigger(ctx, trigger); err != nil && ctx.Err() == nil {
			e.logger.Warn("sync trigger failed", "trigger", trigger, "error", err)
		}
	})
}

// refresh reloads persisted queue length and last sync time.
func (e *Engine) refresh(ctx context.Context) error {
	e.queue.Notify(ctx, e.tenantID)
	last, err := e.checkpoints.LastSync(ctx, e.tenantID)
	if err != nil {
		return fmt.Errorf("loading last sync: %w", err)
	}
	if last != nil {
		e.publisher.SetLastSync(*last)
	}
	return nil
}

// TenantID returns the tenant scope of the engine.
func (e *Engine) TenantID() string { return e.tenantID }

// Replica returns the UI write path.
func (e *Engine) Replica() *replica.Service { return e.replica }

// Queue returns the change queue.
func (e *Engine) Queue() *mutation.Queue { return e.queue }

// Log returns the sync history recorder.
func (e *Engine) Log() *synclog.Recorder { return e.log }

// Status returns the current sync state.
func (e *Engine) Status() status.SyncState { return e.publisher.Snapshot() }

// Subscribe streams sync state changes.
func (e *Engine) Subscribe() (<-chan status.SyncState, func()) { return e.publisher.Subscribe() }

// SyncNow runs a manual cycle or joins the one in flight.
func (e *Engine) SyncNow(ctx context.Context) (*engine.Result, error) {
	return e.orch.SyncNow(ctx)
}

// ReportLink forwards a platform link signal to the connectivity monitor.
func (e *Engine) ReportLink(ctx context.Context, up bool) {
	e.monitor.ReportLink(ctx, up)
}

// CheckConnectivity probes the remote now.
func (e *Engine) CheckConnectivity(ctx context.Context) error {
	return e.monitor.Check(ctx)
}

// Close stops the engine. Queued mutations stay persisted for the next
// session of the tenant.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.monitor.Stop()
	var err error
	if e.watcher != nil {
		err = e.watcher.Stop()
	}
	e.cancel()
	e.wg.Wait()
	e.publisher.Close()
	e.logger.Info("sync session closed")
	return err
}
