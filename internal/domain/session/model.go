package session

import (
	"log/slog"
	"time"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/replica"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/remote"
)

// Deps are the process-wide collaborators shared by every tenant engine.
type Deps struct {
	Records     record.Repository
	Mutations   mutation.Repository
	Writer      replica.LocalWriter
	SyncLog     synclog.Repository
	Checkpoints engine.Checkpoints
	Lease       engine.Lease
	Storage     engine.StorageChecker
	Remote      remote.Store
	// DBPath is watched so observer processes see writes made by the
	// driver. Empty disables watching.
	DBPath string
	Logger *slog.Logger
}

// Config tunes every engine the manager starts. Zero values use the
// package defaults of each component.
type Config struct {
	HolderID      string
	LogCap        int
	Debounce      time.Duration
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	SyncInterval  time.Duration
	LeaseTTL      time.Duration
	PullLimit     int
	WatchDebounce time.Duration
}
