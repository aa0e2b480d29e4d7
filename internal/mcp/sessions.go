package mcp

import (
	"context"
	"errors"

	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/session"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/status"
)

// SessionServices serves MCP calls from the tenant engines of a manager.
// The first call for a tenant starts its engine.
type SessionServices struct {
	manager *session.Manager
}

var (
	_ SyncService   = (*SessionServices)(nil)
	_ RecordService = (*SessionServices)(nil)
)

// NewSessionServices wraps a session manager.
func NewSessionServices(manager *session.Manager) *SessionServices {
	return &SessionServices{manager: manager}
}

// Services returns the manager as MCP services.
func (s *SessionServices) Services() Services {
	return Services{Sync: s, Records: s}
}

func (s *SessionServices) engine(ctx context.Context, tenantID string) (*session.Engine, error) {
	return s.manager.Start(ctx, tenantID)
}

// Status implements SyncService.
func (s *SessionServices) Status(ctx context.Context, tenantID string) (status.SyncState, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return status.SyncState{}, err
	}
	return e.Status(), nil
}

// SyncNow implements SyncService.
func (s *SessionServices) SyncNow(ctx context.Context, tenantID string) (*engine.Result, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.SyncNow(ctx)
}

// ListLog implements SyncService.
func (s *SessionServices) ListLog(ctx context.Context, tenantID string, opts synclog.ListOptions) ([]synclog.Entry, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.Log().List(ctx, tenantID, opts)
}

// ClearLog implements SyncService.
func (s *SessionServices) ClearLog(ctx context.Context, tenantID string) error {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return err
	}
	return e.Log().Clear(ctx, tenantID)
}

// ListPending implements SyncService.
func (s *SessionServices) ListPending(ctx context.Context, tenantID string, opts mutation.ListOptions) ([]mutation.Mutation, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.Queue().List(ctx, tenantID, opts)
}

// Put updates a live record or creates it.
func (s *SessionServices) Put(ctx context.Context, tenantID string, table record.Table, id string, payload record.Payload) (*record.Record, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if id != "" {
		rec, err := e.Replica().Update(ctx, tenantID, table, id, payload)
		if !errors.Is(err, record.ErrRecordNotFound) {
			return rec, err
		}
	}
	return e.Replica().Create(ctx, tenantID, table, id, payload)
}

// Get implements RecordService.
func (s *SessionServices) Get(ctx context.Context, tenantID string, table record.Table, id string) (*record.Record, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.Replica().Get(ctx, tenantID, table, id)
}

// List implements RecordService.
func (s *SessionServices) List(ctx context.Context, tenantID string, table record.Table, opts record.ListOptions) ([]record.Record, error) {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.Replica().List(ctx, tenantID, table, opts)
}

// Delete implements RecordService.
func (s *SessionServices) Delete(ctx context.Context, tenantID string, table record.Table, id string) error {
	e, err := s.engine(ctx, tenantID)
	if err != nil {
		return err
	}
	return e.Replica().Delete(ctx, tenantID, table, id)
}
