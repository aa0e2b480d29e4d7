package synclog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder handles sync history operations.
type Recorder struct {
	repo   Repository
	cap    int
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder keeping at most limit entries per tenant.
// A non-positive limit uses DefaultCap.
func NewRecorder(repo Repository, limit int, logger *slog.Logger) *Recorder {
	if limit <= 0 {
		limit = DefaultCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, cap: limit, logger: logger, now: time.Now}
}

// Cap returns the per-tenant entry limit.
func (r *Recorder) Cap() int {
	return r.cap
}

// Append records an entry, filling id and timestamp when missing.
func (r *Recorder) Append(ctx context.Context, tenantID string, entry *Entry) error {
	if entry == nil || tenantID == "" || !entry.Type.valid() || !entry.Status.valid() {
		return ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	entry.TenantID = tenantID
	if err := r.repo.Append(ctx, tenantID, entry, r.cap); err != nil {
		return fmt.Errorf("appending sync log entry: %w", err)
	}
	r.logger.Debug("sync log entry",
		"tenant_id", tenantID, "type", entry.Type, "table", entry.Table,
		"status", entry.Status, "items", entry.ItemCount)
	return nil
}

// List returns entries newest first.
func (r *Recorder) List(ctx context.Context, tenantID string, opts ListOptions) ([]Entry, error) {
	return r.repo.List(ctx, tenantID, opts)
}

// Clear drops the tenant's history.
func (r *Recorder) Clear(ctx context.Context, tenantID string) error {
	n, err := r.repo.Clear(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("clearing sync log: %w", err)
	}
	r.logger.Info("sync history cleared", "tenant_id", tenantID, "entries", n)
	return nil
}
