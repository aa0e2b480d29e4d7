package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tillpoint/possync/internal/domain/record"
)

// CheckpointRepository implements repository.CheckpointRepository for SQLite
type CheckpointRepository struct {
	db *DB
}

// NewCheckpointRepository creates a new CheckpointRepository
func NewCheckpointRepository(db *DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Watermark returns the pull cursor of a table, 0 when never pulled.
func (r *CheckpointRepository) Watermark(ctx context.Context, tenantID string, table record.Table) (int64, error) {
	var wm int64
	err := r.db.QueryRowContext(ctx,
		`SELECT watermark FROM watermarks WHERE tenant_id = ? AND tbl = ?`,
		tenantID, table).Scan(&wm)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get watermark: %w", storageErr(err))
	}
	return wm, nil
}

// SetWatermark advances the pull cursor of a table.
func (r *CheckpointRepository) SetWatermark(ctx context.Context, tenantID string, table record.Table, watermark int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO watermarks (tenant_id, tbl, watermark) VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, tbl) DO UPDATE SET watermark = excluded.watermark
	`, tenantID, table, watermark)
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", storageErr(err))
	}
	return nil
}

// LastSync returns when the tenant last completed a cycle, or nil.
func (r *CheckpointRepository) LastSync(ctx context.Context, tenantID string) (*time.Time, error) {
	var ms int64
	err := r.db.QueryRowContext(ctx, `SELECT last_sync FROM sync_meta WHERE tenant_id = ?`, tenantID).Scan(&ms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync: %w", storageErr(err))
	}
	t := fromMillis(ms)
	return &t, nil
}

// MarkSynced records a completed cycle.
func (r *CheckpointRepository) MarkSynced(ctx context.Context, tenantID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_meta (tenant_id, last_sync) VALUES (?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET last_sync = excluded.last_sync
	`, tenantID, toMillis(at))
	if err != nil {
		return fmt.Errorf("failed to mark synced: %w", storageErr(err))
	}
	return nil
}
