package repository

import (
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/replica"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/engine"
)

// RecordRepository manages replica record persistence
type RecordRepository interface {
	record.Repository
}

// MutationRepository manages the durable change queue
type MutationRepository interface {
	mutation.Repository
}

// LocalWriter pairs record writes with queue appends
type LocalWriter interface {
	replica.LocalWriter
}

// SyncLogRepository manages capped sync history persistence
type SyncLogRepository interface {
	synclog.Repository
}

// CheckpointRepository manages pull watermarks and last sync times
type CheckpointRepository interface {
	engine.Checkpoints
}

// LeaseRepository manages the per-tenant sync driver lease
type LeaseRepository interface {
	engine.Lease
}
