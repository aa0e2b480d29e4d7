package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/repository"
)

// MutationRepository implements repository.MutationRepository for SQLite
type MutationRepository struct {
	db *DB
}

// NewMutationRepository creates a new MutationRepository
func NewMutationRepository(db *DB) *MutationRepository {
	return &MutationRepository{db: db}
}

const mutationColumns = `
	id, tenant_id, tbl, record_id, op, payload, base_payload, base_version,
	client_seq, attempt_count, status, last_error, next_attempt_at, created_at
`

// Append assigns the next client sequence and stores the mutation in one
// transaction.
func (r *MutationRepository) Append(ctx context.Context, m *mutation.Mutation) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		return appendMutation(ctx, tx, m)
	})
}

// Get retrieves a mutation by ID
func (r *MutationRepository) Get(ctx context.Context, tenantID, id string) (*mutation.Mutation, error) {
	query := `SELECT ` + mutationColumns + ` FROM mutations WHERE tenant_id = ? AND id = ?`

	m, err := scanMutation(r.db.QueryRowContext(ctx, query, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, notFound(mutation.ErrMutationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mutation: %w", storageErr(err))
	}
	return m, nil
}

// OldestAfter returns the lowest client sequence mutation of the table
// above afterSeq.
func (r *MutationRepository) OldestAfter(ctx context.Context, tenantID string, table record.Table, afterSeq int64) (*mutation.Mutation, error) {
	query := `
		SELECT ` + mutationColumns + `
		FROM mutations
		WHERE tenant_id = ? AND tbl = ? AND client_seq > ?
		ORDER BY client_seq
		LIMIT 1
	`

	m, err := scanMutation(r.db.QueryRowContext(ctx, query, tenantID, table, afterSeq))
	if err == sql.ErrNoRows {
		return nil, notFound(mutation.ErrMutationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to peek mutation: %w", storageErr(err))
	}
	return m, nil
}

// List returns queued mutations. Within a table they come back in client
// sequence order.
func (r *MutationRepository) List(ctx context.Context, tenantID string, opts mutation.ListOptions) ([]mutation.Mutation, error) {
	query := `SELECT ` + mutationColumns + ` FROM mutations WHERE tenant_id = ?`
	args := []any{tenantID}

	if opts.Table != "" {
		query += " AND tbl = ?"
		args = append(args, opts.Table)
	}
	if opts.RecordID != "" {
		query += " AND record_id = ?"
		args = append(args, opts.RecordID)
	}
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	if opts.Table != "" {
		query += " ORDER BY client_seq"
	} else {
		query += " ORDER BY created_at, tbl, client_seq"
	}
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", storageErr(err))
	}
	defer rows.Close()

	var results []mutation.Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mutation: %w", err)
		}
		results = append(results, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mutations: %w", storageErr(err))
	}
	return results, nil
}

// Update stores the mutable fields of a queued mutation.
func (r *MutationRepository) Update(ctx context.Context, m *mutation.Mutation) error {
	payload, err := record.EncodePayload(m.Payload)
	if err != nil {
		return err
	}
	base, err := encodeBase(m.BasePayload)
	if err != nil {
		return err
	}

	query := `
		UPDATE mutations
		SET payload = ?, base_payload = ?, base_version = ?, attempt_count = ?,
		    status = ?, last_error = ?, next_attempt_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(payload),
		base,
		m.BaseVersion,
		m.AttemptCount,
		m.Status,
		m.LastError,
		toMillis(m.NextAttemptAt),
		m.TenantID,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update mutation: %w", storageErr(err))
	}
	return requireRow(result, mutation.ErrMutationNotFound)
}

// Delete removes a mutation, reporting whether it existed.
func (r *MutationRepository) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM mutations WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete mutation: %w", storageErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteForRecord removes every queued mutation of a record.
func (r *MutationRepository) DeleteForRecord(ctx context.Context, tenantID string, table record.Table, recordID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM mutations WHERE tenant_id = ? AND tbl = ? AND record_id = ?`,
		tenantID, table, recordID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete mutations: %w", storageErr(err))
	}
	return result.RowsAffected()
}

// Count returns the tenant's queue length.
func (r *MutationRepository) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutations WHERE tenant_id = ?`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count mutations: %w", storageErr(err))
	}
	return n, nil
}

// ResetInflight returns inflight mutations to pending after a crash.
func (r *MutationRepository) ResetInflight(ctx context.Context, tenantID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE mutations SET status = 'pending' WHERE tenant_id = ? AND status = 'inflight'`,
		tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset inflight mutations: %w", storageErr(err))
	}
	return result.RowsAffected()
}

// ApplyLocalWrite stores the record and appends its mutation in one
// transaction.
func (r *MutationRepository) ApplyLocalWrite(ctx context.Context, tenantID string, rec *record.Record, m *mutation.Mutation) error {
	if rec == nil || m == nil || m.TenantID != tenantID || m.RecordID != rec.ID || m.Table != rec.Table {
		return repository.ErrInvalidInput
	}
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := putRecord(ctx, tx, tenantID, rec); err != nil {
			return err
		}
		return appendMutation(ctx, tx, m)
	})
}

func appendMutation(ctx context.Context, q querier, m *mutation.Mutation) error {
	var seq int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO mutation_seq (tenant_id, tbl, next_seq) VALUES (?, ?, 1)
		ON CONFLICT (tenant_id, tbl) DO UPDATE SET next_seq = next_seq + 1
		RETURNING next_seq
	`, m.TenantID, m.Table).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to allocate client sequence: %w", storageErr(err))
	}

	payload, err := record.EncodePayload(m.Payload)
	if err != nil {
		return err
	}
	base, err := encodeBase(m.BasePayload)
	if err != nil {
		return err
	}

	query := `INSERT INTO mutations (` + mutationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = q.ExecContext(ctx, query,
		m.ID,
		m.TenantID,
		m.Table,
		m.RecordID,
		m.Op,
		string(payload),
		base,
		m.BaseVersion,
		seq,
		m.AttemptCount,
		m.Status,
		m.LastError,
		toMillis(m.NextAttemptAt),
		toMillis(m.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("mutation %s: %w", m.ID, repository.ErrConflict)
		}
		return fmt.Errorf("failed to append mutation: %w", storageErr(err))
	}
	m.ClientSeq = seq
	return nil
}

func encodeBase(p record.Payload) (sql.NullString, error) {
	if p == nil {
		return sql.NullString{}, nil
	}
	data, err := record.EncodePayload(p)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (*mutation.Mutation, error) {
	var (
		m             mutation.Mutation
		payload       string
		base          sql.NullString
		nextAttemptAt int64
		createdAt     int64
	)
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.Table,
		&m.RecordID,
		&m.Op,
		&payload,
		&base,
		&m.BaseVersion,
		&m.ClientSeq,
		&m.AttemptCount,
		&m.Status,
		&m.LastError,
		&nextAttemptAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if m.Payload, err = record.DecodePayload([]byte(payload)); err != nil {
		return nil, err
	}
	if base.Valid {
		if m.BasePayload, err = record.DecodePayload([]byte(base.String)); err != nil {
			return nil, err
		}
	}
	m.NextAttemptAt = fromMillis(nextAttemptAt)
	m.CreatedAt = fromMillis(createdAt)
	return &m, nil
}
