// Package testserver runs an in-memory remote store over real HTTP and
// builds terminals that sync against it.
package testserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tillpoint/possync/internal/domain/session"
	"github.com/tillpoint/possync/internal/remote"
	"github.com/tillpoint/possync/internal/sqlite"
	"github.com/tillpoint/possync/internal/transport"
)

type TestServer struct {
	Server   *httptest.Server
	Store    *remote.Memory
	Token    string
	TenantID string
}

// New serves an in-memory remote store for tenantID behind bearer token.
func New(t *testing.T, token, tenantID string) *TestServer {
	t.Helper()

	store := remote.NewMemory()
	resolver := transport.StaticResolver{token: tenantID}
	server := httptest.NewServer(transport.NewServer(store, transport.AuthMiddleware(resolver)))
	t.Cleanup(server.Close)

	return &TestServer{
		Server:   server,
		Store:    store,
		Token:    token,
		TenantID: tenantID,
	}
}

// Client returns an HTTP client of the remote authenticated as the tenant.
func (ts *TestServer) Client() *remote.Client {
	return remote.NewClient(ts.Server.URL, ts.Token, remote.WithTimeout(2*time.Second))
}

// Terminal is one POS device with its own local database.
type Terminal struct {
	DB      *sqlite.DB
	Manager *session.Manager
	Engine  *session.Engine
}

// NewTerminal opens a fresh local database and starts a sync session
// against the server.
func (ts *TestServer) NewTerminal(t *testing.T, holder string) *Terminal {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"), holder)
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	mutations := sqlite.NewMutationRepository(db)
	manager := session.NewManager(session.Deps{
		Records:     sqlite.NewRecordRepository(db, logger),
		Mutations:   mutations,
		Writer:      mutations,
		SyncLog:     sqlite.NewSyncLogRepository(db),
		Checkpoints: sqlite.NewCheckpointRepository(db),
		Lease:       sqlite.NewLeaseRepository(db),
		Storage:     db,
		Remote:      ts.Client(),
		Logger:      logger,
	}, session.Config{
		HolderID:      holder,
		Debounce:      20 * time.Millisecond,
		ProbeInterval: time.Hour,
	})

	e, err := manager.Start(context.Background(), ts.TenantID)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = manager.Close()
		_ = db.Close()
	})
	return &Terminal{DB: db, Manager: manager, Engine: e}
}
