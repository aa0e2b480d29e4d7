package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tillpoint/possync/internal/domain/synclog"
)

// SyncLogRepository implements repository.SyncLogRepository for SQLite
type SyncLogRepository struct {
	db *DB
}

// NewSyncLogRepository creates a new SyncLogRepository
func NewSyncLogRepository(db *DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Append inserts an entry and trims the tenant's history to limit.
func (r *SyncLogRepository) Append(ctx context.Context, tenantID string, entry *synclog.Entry, limit int) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_log (id, tenant_id, ts, type, tbl, item_count, attempted, status, details)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			entry.ID,
			tenantID,
			toMillis(entry.Timestamp),
			entry.Type,
			entry.Table,
			entry.ItemCount,
			entry.Attempted,
			entry.Status,
			entry.Details,
		)
		if err != nil {
			return fmt.Errorf("failed to append sync log entry: %w", storageErr(err))
		}

		if limit <= 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM sync_log
			WHERE tenant_id = ? AND seq NOT IN (
				SELECT seq FROM sync_log WHERE tenant_id = ? ORDER BY seq DESC LIMIT ?
			)
		`, tenantID, tenantID, limit)
		if err != nil {
			return fmt.Errorf("failed to evict sync log entries: %w", storageErr(err))
		}
		return nil
	})
}

// List returns entries newest first
func (r *SyncLogRepository) List(ctx context.Context, tenantID string, opts synclog.ListOptions) ([]synclog.Entry, error) {
	query := `
		SELECT id, tenant_id, ts, type, tbl, item_count, attempted, status, details
		FROM sync_log
		WHERE tenant_id = ?
	`
	args := []any{tenantID}

	if opts.Type != "" {
		query += " AND type = ?"
		args = append(args, opts.Type)
	}
	if opts.Table != "" {
		query += " AND tbl = ?"
		args = append(args, opts.Table)
	}
	query += " ORDER BY seq DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", storageErr(err))
	}
	defer rows.Close()

	var results []synclog.Entry
	for rows.Next() {
		var e synclog.Entry
		var ts int64
		if err := rows.Scan(
			&e.ID,
			&e.TenantID,
			&ts,
			&e.Type,
			&e.Table,
			&e.ItemCount,
			&e.Attempted,
			&e.Status,
			&e.Details,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		e.Timestamp = fromMillis(ts)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sync log: %w", storageErr(err))
	}
	return results, nil
}

// Clear deletes the tenant's history
func (r *SyncLogRepository) Clear(ctx context.Context, tenantID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sync_log WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear sync log: %w", storageErr(err))
	}
	return result.RowsAffected()
}
