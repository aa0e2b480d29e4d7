package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/tillpoint/possync/internal/config"
	"github.com/tillpoint/possync/internal/domain/session"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/lease"
	"github.com/tillpoint/possync/internal/remote"
	"github.com/tillpoint/possync/internal/sqlite"
	"gopkg.in/natefinch/lumberjack.v2"
)

// app holds the process-wide wiring shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	db      *sqlite.DB
	remote  remote.Store
	lease   engine.Lease
	closers []io.Closer
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// newLogger writes to a rotated file when configured, otherwise to stderr
// so stdout stays clean for stdio JSON-RPC and command output.
func newLogger(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer
	if cfg.File != "" {
		if err := ensureDir(cfg.File); err != nil {
			return nil, nil, fmt.Errorf("prepare log dir: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w = rotator
		closer = rotator
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}))
	return logger, closer, nil
}

func newApp(cfg config.Config) (*app, error) {
	logger, logCloser, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	if logCloser != nil {
		a.closers = append(a.closers, logCloser)
	}

	if err := ensureDir(cfg.DB.Path); err != nil {
		a.Close()
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db)
	if err := db.RunMigrations(); err != nil {
		a.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if cfg.Remote.URL == "" {
		a.Close()
		return nil, fmt.Errorf("remote.url is not configured")
	}
	a.remote = remote.NewClient(cfg.Remote.URL, cfg.Remote.Token,
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithLogger(logger),
	)

	switch cfg.Lease.Backend {
	case "redis":
		rl, err := lease.NewRedis(lease.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis lease: %w", err)
		}
		a.lease = rl
		a.closers = append(a.closers, rl)
	default:
		a.lease = sqlite.NewLeaseRepository(db)
	}
	return a, nil
}

func (a *app) manager() *session.Manager {
	mutations := sqlite.NewMutationRepository(a.db)
	deps := session.Deps{
		Records:     sqlite.NewRecordRepository(a.db, a.logger),
		Mutations:   mutations,
		Writer:      mutations,
		SyncLog:     sqlite.NewSyncLogRepository(a.db),
		Checkpoints: sqlite.NewCheckpointRepository(a.db),
		Lease:       a.lease,
		Storage:     a.db,
		Remote:      a.remote,
		Logger:      a.logger,
	}
	if a.cfg.Sync.WatchDB {
		deps.DBPath = a.db.Path()
	}
	s := a.cfg.Sync
	return session.NewManager(deps, session.Config{
		HolderID:      s.HolderID,
		LogCap:        s.LogCap,
		Debounce:      s.Debounce,
		ProbeInterval: s.ProbeInterval,
		ProbeTimeout:  s.ProbeTimeout,
		SyncInterval:  s.Interval,
		LeaseTTL:      a.cfg.Lease.TTL,
		PullLimit:     s.PullLimit,
	})
}

func (a *app) tenant() string {
	if tenantFlag != "" {
		return tenantFlag
	}
	return a.cfg.Auth.DefaultTenant
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func ensureDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
