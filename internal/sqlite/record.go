package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tillpoint/possync/internal/domain/record"
)

// RecordRepository implements repository.RecordRepository for SQLite
type RecordRepository struct {
	db     *DB
	logger *slog.Logger
}

// NewRecordRepository creates a new RecordRepository
func NewRecordRepository(db *DB, logger *slog.Logger) *RecordRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordRepository{db: db, logger: logger}
}

type recordRow struct {
	id            string
	payload       string
	remoteVersion int64
	tombstone     bool
	modifiedAt    int64
}

func (row recordRow) decode(tenantID string, table record.Table) (*record.Record, error) {
	payload, err := record.DecodePayload([]byte(row.payload))
	if err != nil {
		return nil, err
	}
	return &record.Record{
		Table:         table,
		ID:            row.id,
		TenantID:      tenantID,
		Payload:       payload,
		RemoteVersion: row.remoteVersion,
		Tombstone:     row.tombstone,
		ModifiedAt:    fromMillis(row.modifiedAt),
	}, nil
}

// Get retrieves a record by table and ID. A row that no longer decodes is
// quarantined and reported as corrupt.
func (r *RecordRepository) Get(ctx context.Context, tenantID string, table record.Table, id string) (*record.Record, error) {
	query := `
		SELECT id, payload, remote_version, tombstone, modified_at
		FROM records
		WHERE tenant_id = ? AND tbl = ? AND id = ?
	`

	var row recordRow
	err := r.db.QueryRowContext(ctx, query, tenantID, table, id).Scan(
		&row.id,
		&row.payload,
		&row.remoteVersion,
		&row.tombstone,
		&row.modifiedAt,
	)
	if err == sql.ErrNoRows {
		return nil, notFound(record.ErrRecordNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", storageErr(err))
	}

	rec, err := row.decode(tenantID, table)
	if err != nil {
		r.quarantine(ctx, tenantID, table, row, err)
		return nil, fmt.Errorf("%w: %s/%s: %v", record.ErrStorageCorrupt, table, id, err)
	}
	return rec, nil
}

// List returns records of a table ordered by ID. Corrupt rows are
// quarantined and skipped.
func (r *RecordRepository) List(ctx context.Context, tenantID string, table record.Table, opts record.ListOptions) ([]record.Record, error) {
	query := `
		SELECT id, payload, remote_version, tombstone, modified_at
		FROM records
		WHERE tenant_id = ? AND tbl = ?
	`
	args := []any{tenantID, table}
	conditions := []string{}

	if !opts.IncludeTombstones {
		conditions = append(conditions, "tombstone = 0")
	}
	if opts.IDPrefix != "" {
		conditions = append(conditions, "substr(id, 1, ?) = ?")
		args = append(args, len(opts.IDPrefix), opts.IDPrefix)
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"
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
		return nil, fmt.Errorf("failed to list records: %w", storageErr(err))
	}

	var raw []recordRow
	for rows.Next() {
		var row recordRow
		if err := rows.Scan(&row.id, &row.payload, &row.remoteVersion, &row.tombstone, &row.modifiedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate records: %w", storageErr(err))
	}
	rows.Close()

	// Quarantine only after the cursor is released; the pool holds one connection.
	results := make([]record.Record, 0, len(raw))
	for _, row := range raw {
		rec, err := row.decode(tenantID, table)
		if err != nil {
			r.quarantine(ctx, tenantID, table, row, err)
			continue
		}
		results = append(results, *rec)
	}
	return results, nil
}

// Put inserts or replaces a record.
func (r *RecordRepository) Put(ctx context.Context, tenantID string, rec *record.Record) error {
	if err := putRecord(ctx, r.db, tenantID, rec); err != nil {
		return err
	}
	rec.TenantID = tenantID
	return nil
}

// MarkDeleted tombstones a record, keeping its last payload.
func (r *RecordRepository) MarkDeleted(ctx context.Context, tenantID string, table record.Table, id string, at time.Time) error {
	query := `
		UPDATE records
		SET tombstone = 1, modified_at = ?
		WHERE tenant_id = ? AND tbl = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, query, toMillis(at), tenantID, table, id)
	if err != nil {
		return fmt.Errorf("failed to mark record deleted: %w", storageErr(err))
	}
	return requireRow(result, record.ErrRecordNotFound)
}

// SetRemoteVersion records the version the remote acknowledged.
func (r *RecordRepository) SetRemoteVersion(ctx context.Context, tenantID string, table record.Table, id string, version int64) error {
	query := `UPDATE records SET remote_version = ? WHERE tenant_id = ? AND tbl = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, query, version, tenantID, table, id)
	if err != nil {
		return fmt.Errorf("failed to set remote version: %w", storageErr(err))
	}
	return requireRow(result, record.ErrRecordNotFound)
}

// QuarantineCount returns how many rows of the tenant were quarantined.
func (r *RecordRepository) QuarantineCount(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quarantine WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count quarantine: %w", storageErr(err))
	}
	return n, nil
}

func (r *RecordRepository) quarantine(ctx context.Context, tenantID string, table record.Table, row recordRow, cause error) {
	r.logger.Error("quarantining corrupt record",
		"tenant_id", tenantID, "table", table, "record_id", row.id, "error", cause)

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO quarantine (tenant_id, tbl, id, payload, reason, quarantined_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, tenantID, table, row.id, row.payload, cause.Error(), toMillis(time.Now())); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE tenant_id = ? AND tbl = ? AND id = ?`,
			tenantID, table, row.id)
		return err
	})
	if err != nil {
		r.logger.Warn("failed to quarantine record", "record_id", row.id, "error", err)
	}
}

func putRecord(ctx context.Context, q querier, tenantID string, rec *record.Record) error {
	payload, err := record.EncodePayload(rec.Payload)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO records (tenant_id, tbl, id, payload, remote_version, tombstone, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, tbl, id) DO UPDATE SET
			payload = excluded.payload,
			remote_version = excluded.remote_version,
			tombstone = excluded.tombstone,
			modified_at = excluded.modified_at
	`

	_, err = q.ExecContext(ctx, query,
		tenantID,
		rec.Table,
		rec.ID,
		string(payload),
		rec.RemoteVersion,
		rec.Tombstone,
		toMillis(rec.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put record: %w", storageErr(err))
	}
	return nil
}

func requireRow(result sql.Result, domainErr error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound(domainErr)
	}
	return nil
}
