package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/remote"
)

// tableRun accumulates what happened to one table in one cycle.
type tableRun struct {
	table     record.Table
	attempted int
	pushed    int
	pulled    int
	received  int
	rejected  int
	conflicts map[string]synclog.Status
	err       error
}

func (t *tableRun) conflict(recordID string, status synclog.Status) {
	if t.conflicts == nil {
		t.conflicts = make(map[string]synclog.Status)
	}
	if t.conflicts[recordID] == synclog.StatusPartial {
		return
	}
	t.conflicts[recordID] = status
}

func (t *tableRun) status() synclog.Status {
	if t.err != nil {
		return synclog.StatusFailed
	}
	if t.rejected > 0 {
		return synclog.StatusPartial
	}
	for _, s := range t.conflicts {
		if s == synclog.StatusPartial {
			return synclog.StatusPartial
		}
	}
	return synclog.StatusSuccess
}

func (o *Orchestrator) syncTable(ctx context.Context, h TableHandler, force bool) (TableOutcome, error) {
	run := &tableRun{table: h.Table()}

	err := o.drain(ctx, h, run, force)
	if err == nil {
		err = o.pull(ctx, h, run)
	}
	if err != nil {
		run.err = err
		if ctx.Err() != nil {
			run.err = fmt.Errorf("interrupted: %w", context.Cause(ctx))
		}
		o.logger.Warn("table sync failed", "table", run.table, "error", run.err)
	}

	o.logOutcome(ctx, run)

	out := TableOutcome{
		Table:     run.table,
		Attempted: run.attempted,
		Pushed:    run.pushed,
		Pulled:    run.pulled,
		Conflicts: len(run.conflicts),
		Status:    run.status(),
	}
	if run.err != nil {
		out.Error = run.err.Error()
	}
	return out, err
}

// drain pushes the table's queue oldest first, peeking the next head after
// each step so it always sees what the previous push left behind. A record
// whose head is not due, or is still queued after a reject or an open
// conflict, blocks that record's later mutations; a transient failure stops
// the whole table.
func (o *Orchestrator) drain(ctx context.Context, h TableHandler, run *tableRun, force bool) error {
	tenantID := o.deps.TenantID
	blocked := make(map[string]bool)

	m, err := o.deps.Queue.PeekOldestUnacked(ctx, tenantID, run.table)
	for ; err == nil && m != nil; m, err = o.deps.Queue.PeekAfter(ctx, tenantID, run.table, m.ClientSeq) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if blocked[m.RecordID] {
			continue
		}
		if !m.Ready(o.now(), force) {
			blocked[m.RecordID] = true
			continue
		}

		run.attempted++
		settled, err := o.pushOne(ctx, h, m, run)
		if err != nil {
			if errors.Is(err, remote.ErrAuth) || ctx.Err() != nil {
				if relErr := o.deps.Queue.Release(context.WithoutCancel(ctx), m); relErr != nil {
					o.logger.Warn("failed to release mutation", "mutation_id", m.ID, "error", relErr)
				}
				return err
			}
			if rqErr := o.deps.Queue.Requeue(ctx, m, err); rqErr != nil {
				return errors.Join(err, rqErr)
			}
			return err
		}
		if !settled {
			blocked[m.RecordID] = true
		}
	}
	return err
}

// pushOne pushes m, merging and re-pushing on version conflicts. settled is
// false when m is still queued afterwards, rejected or out of merge rounds,
// and the record's later mutations must wait behind it.
func (o *Orchestrator) pushOne(ctx context.Context, h TableHandler, m *mutation.Mutation, run *tableRun) (settled bool, err error) {
	tenantID := o.deps.TenantID
	merged := false

	for round := 0; round < maxMergeRounds; round++ {
		if err := o.deps.Queue.MarkInflight(ctx, m); err != nil {
			return false, err
		}
		res, err := h.Push(ctx, tenantID, *m)
		if err != nil {
			return false, err
		}

		if res.Status == remote.StatusAccepted {
			return true, o.accept(ctx, m, res.Version, merged, run)
		}

		switch {
		case res.Reason == remote.ReasonTombstoned,
			res.Reason == remote.ReasonVersionConflict && res.Latest != nil && res.Latest.Tombstone:
			return true, o.deleteWins(ctx, m.Table, m.RecordID, res.Latest, run)

		case res.Reason == remote.ReasonVersionConflict && res.Latest != nil:
			resolution := o.resolver.Resolve(m, res.Latest)
			run.conflict(m.RecordID, resolution.Status)
			o.logger.Info("resolved push conflict",
				"table", m.Table, "record_id", m.RecordID, "fields", resolution.Fields,
				"quantity", resolution.Quantity, "remote_version", res.Latest.RemoteVersion)

			if resolution.Tombstone && m.Op != mutation.OpDelete {
				return true, o.deleteWins(ctx, m.Table, m.RecordID, res.Latest, run)
			}
			if m.Op != mutation.OpDelete {
				m.Payload = resolution.Payload
			}
			m.BasePayload = res.Latest.Payload.Clone()
			m.BaseVersion = res.Latest.RemoteVersion
			if err := o.deps.Queue.Replace(ctx, m); err != nil {
				return false, err
			}
			merged = true

		default:
			run.rejected++
			reason := string(res.Reason)
			if res.Message != "" {
				reason += ": " + res.Message
			}
			o.logger.Warn("remote rejected mutation", "table", m.Table, "record_id", m.RecordID, "reason", reason)
			return false, o.deps.Queue.Reject(ctx, m, reason)
		}
	}

	run.rejected++
	o.logger.Warn("conflict still open after merge rounds", "table", m.Table, "record_id", m.RecordID, "rounds", maxMergeRounds)
	return false, o.deps.Queue.Requeue(ctx, m, ErrUnresolvedConflict)
}

// accept acks m and moves the record's later mutations and local copy onto
// the acknowledged version.
func (o *Orchestrator) accept(ctx context.Context, m *mutation.Mutation, version int64, merged bool, run *tableRun) error {
	tenantID := o.deps.TenantID
	run.pushed++

	return o.guard(func() error {
		if err := o.deps.Queue.Ack(ctx, tenantID, m.ID); err != nil {
			return err
		}

		onto := m.Payload
		rebased, err := o.deps.Queue.Rebase(ctx, tenantID, m.Table, m.RecordID, version, func(next *mutation.Mutation) {
			if merged && next.Op != mutation.OpDelete {
				next.Payload = o.resolver.Rebase(next, onto)
			}
			next.BasePayload = onto.Clone()
			onto = next.Payload
		})
		if err != nil {
			return err
		}

		local, err := o.deps.Records.Get(ctx, tenantID, m.Table, m.RecordID)
		if errors.Is(err, record.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		local.RemoteVersion = version
		if merged && !local.Tombstone {
			local.Payload = m.Payload.Clone()
			if len(rebased) > 0 {
				local.Payload = rebased[len(rebased)-1].Payload.Clone()
			}
		}
		return o.deps.Records.Put(ctx, tenantID, local)
	})
}

// deleteWins applies a remote tombstone over local pending edits. The
// dropped mutations are counted as one conflicted item for review.
func (o *Orchestrator) deleteWins(ctx context.Context, table record.Table, recordID string, latest *record.Record, run *tableRun) error {
	tenantID := o.deps.TenantID
	run.conflict(recordID, synclog.StatusPartial)

	return o.guard(func() error {
		dropped, err := o.deps.Queue.Drop(ctx, tenantID, table, recordID)
		if err != nil {
			return err
		}
		o.logger.Warn("remote delete wins over local edits",
			"table", table, "record_id", recordID, "dropped_mutations", dropped)

		if latest == nil {
			err := o.deps.Records.MarkDeleted(ctx, tenantID, table, recordID, o.now().UTC())
			if errors.Is(err, record.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		tomb := latest.Clone()
		tomb.Tombstone = true
		return o.deps.Records.Put(ctx, tenantID, tomb)
	})
}

// pull applies remote changes after the table watermark. Rows with local
// pending mutations are left for the push path, except remote deletes,
// which win.
func (o *Orchestrator) pull(ctx context.Context, h TableHandler, run *tableRun) error {
	tenantID := o.deps.TenantID
	wm, err := o.deps.Checkpoints.Watermark(ctx, tenantID, run.table)
	if err != nil {
		return err
	}

	for {
		page, err := h.Pull(ctx, tenantID, wm, o.cfg.PullLimit)
		if err != nil {
			return err
		}
		run.received += len(page.Records)

		for i := range page.Records {
			if err := o.applyRemote(ctx, &page.Records[i], run); err != nil {
				return err
			}
		}

		if page.Watermark > wm {
			if err := o.deps.Checkpoints.SetWatermark(ctx, tenantID, run.table, page.Watermark); err != nil {
				return err
			}
			wm = page.Watermark
		}
		if !page.HasMore || len(page.Records) == 0 {
			return nil
		}
	}
}

func (o *Orchestrator) applyRemote(ctx context.Context, rec *record.Record, run *tableRun) error {
	tenantID := o.deps.TenantID
	rec.Table = run.table

	var deleteWins bool
	err := o.guard(func() error {
		pending, err := o.deps.Queue.PendingFor(ctx, tenantID, run.table, rec.ID)
		if err != nil {
			return err
		}
		if len(pending) > 0 {
			if rec.Tombstone && hasEdit(pending) {
				deleteWins = true
			}
			return nil
		}

		local, err := o.deps.Records.Get(ctx, tenantID, run.table, rec.ID)
		switch {
		case err == nil:
			if local.RemoteVersion >= rec.RemoteVersion && local.Tombstone == rec.Tombstone {
				return nil
			}
		case errors.Is(err, record.ErrRecordNotFound), errors.Is(err, record.ErrStorageCorrupt):
		default:
			return err
		}

		if err := o.deps.Records.Put(ctx, tenantID, rec); err != nil {
			return err
		}
		run.pulled++
		return nil
	})
	if err != nil || !deleteWins {
		return err
	}
	return o.deleteWins(ctx, run.table, rec.ID, rec, run)
}

func hasEdit(pending []mutation.Mutation) bool {
	for _, m := range pending {
		if m.Op != mutation.OpDelete {
			return true
		}
	}
	return false
}

// logOutcome writes the table's summary entry and, when conflicts happened,
// one conflict entry.
func (o *Orchestrator) logOutcome(ctx context.Context, run *tableRun) {
	logCtx := context.WithoutCancel(ctx)
	tenantID := o.deps.TenantID

	entry := &synclog.Entry{
		Table:     string(run.table),
		ItemCount: run.pushed + run.pulled,
		Attempted: run.attempted + run.received,
		Status:    run.status(),
		Details:   fmt.Sprintf("pushed %d/%d, pulled %d", run.pushed, run.attempted, run.pulled),
	}
	switch {
	case run.err != nil:
		entry.Type = synclog.TypeError
		entry.Details += ": " + run.err.Error()
	case run.attempted > 0:
		entry.Type = synclog.TypeUpload
	default:
		entry.Type = synclog.TypeDownload
	}
	if run.rejected > 0 {
		entry.Details += fmt.Sprintf(", %d rejected", run.rejected)
	}
	if err := o.deps.Log.Append(logCtx, tenantID, entry); err != nil {
		o.logger.Warn("failed to record sync log entry", "table", run.table, "error", err)
	}

	if len(run.conflicts) == 0 {
		return
	}
	conflictStatus := synclog.StatusSuccess
	for _, s := range run.conflicts {
		if s == synclog.StatusPartial {
			conflictStatus = synclog.StatusPartial
		}
	}
	conflictEntry := &synclog.Entry{
		Type:      synclog.TypeConflict,
		Table:     string(run.table),
		ItemCount: len(run.conflicts),
		Attempted: len(run.conflicts),
		Status:    conflictStatus,
		Details:   fmt.Sprintf("%d conflicted records resolved", len(run.conflicts)),
	}
	if err := o.deps.Log.Append(logCtx, tenantID, conflictEntry); err != nil {
		o.logger.Warn("failed to record conflict entry", "table", run.table, "error", err)
	}
}
