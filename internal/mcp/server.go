package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tillpoint/possync/internal/domain/mutation"
	"github.com/tillpoint/possync/internal/domain/record"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/engine"
	"github.com/tillpoint/possync/internal/status"
)

// SyncService defines sync operations needed by MCP.
type SyncService interface {
	Status(ctx context.Context, tenantID string) (status.SyncState, error)
	SyncNow(ctx context.Context, tenantID string) (*engine.Result, error)
	ListLog(ctx context.Context, tenantID string, opts synclog.ListOptions) ([]synclog.Entry, error)
	ClearLog(ctx context.Context, tenantID string) error
	ListPending(ctx context.Context, tenantID string, opts mutation.ListOptions) ([]mutation.Mutation, error)
}

// RecordService defines replica operations needed by MCP.
type RecordService interface {
	Put(ctx context.Context, tenantID string, table record.Table, id string, payload record.Payload) (*record.Record, error)
	Get(ctx context.Context, tenantID string, table record.Table, id string) (*record.Record, error)
	List(ctx context.Context, tenantID string, table record.Table, opts record.ListOptions) ([]record.Record, error)
	Delete(ctx context.Context, tenantID string, table record.Table, id string) error
}

// Services contains all domain services needed by MCP.
type Services struct {
	Sync    SyncService
	Records RecordService
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      TenantResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	DefaultTenant string
	Version       string
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = "default"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "possync",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is a local terminal: always the default tenant.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware(cfg.DefaultTenant))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, NewHandler(cfg.Services), cfg.Logger)

	return server
}
