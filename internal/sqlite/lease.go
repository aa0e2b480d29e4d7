package sqlite

import (
	"context"
	"fmt"
	"time"
)

// LeaseRepository implements repository.LeaseRepository for SQLite. Processes
// sharing the database file elect one sync driver per tenant through it.
type LeaseRepository struct {
	db  *DB
	now func() time.Time
}

// NewLeaseRepository creates a new LeaseRepository
func NewLeaseRepository(db *DB) *LeaseRepository {
	return &LeaseRepository{db: db, now: time.Now}
}

// Acquire takes the lease when it is free, expired or already ours.
func (r *LeaseRepository) Acquire(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error) {
	now := r.now()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO leases (tenant_id, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE leases.expires_at <= ? OR leases.holder = excluded.holder
	`, tenantID, holder, toMillis(now.Add(ttl)), toMillis(now))
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", storageErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Renew extends a lease we still hold.
func (r *LeaseRepository) Renew(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leases SET expires_at = ? WHERE tenant_id = ? AND holder = ?`,
		toMillis(r.now().Add(ttl)), tenantID, holder)
	if err != nil {
		return false, fmt.Errorf("failed to renew lease: %w", storageErr(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// Release gives the lease up if we hold it.
func (r *LeaseRepository) Release(ctx context.Context, tenantID, holder string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM leases WHERE tenant_id = ? AND holder = ?`, tenantID, holder)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", storageErr(err))
	}
	return nil
}
