package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/tillpoint/possync/internal/mcp"
	"github.com/tillpoint/possync/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and its MCP surface",
	Long: `Start the sync engine for the default tenant and serve the MCP tools over
stdio or streamable HTTP (transport.mode). Further tenants are started on
first use when authentication maps tokens to them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return withApp(ctx, runServe)
	},
}

func runServe(ctx context.Context, a *app) error {
	manager := a.manager()
	defer func() {
		if err := manager.Close(); err != nil {
			a.logger.Error("closing sessions", "error", err)
		}
	}()

	if _, err := manager.Start(ctx, a.tenant()); err != nil {
		return err
	}

	server := mcp.NewServer(mcp.Config{
		Services:      mcp.NewSessionServices(manager).Services(),
		Resolver:      transport.StaticResolver(a.cfg.Auth.Tokens),
		AuthEnabled:   a.cfg.Auth.Enabled,
		TransportMode: a.cfg.Transport.Mode,
		DefaultTenant: a.tenant(),
		Version:       version,
		Logger:        a.logger,
	})

	if a.cfg.Transport.Mode == "stdio" {
		return runStdioMode(ctx, a.logger, server)
	}
	return runHTTPMode(ctx, a.logger, server, a.cfg.Server.Host, a.cfg.Server.Port)
}

func runStdioMode(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or ctx is cancelled.
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server, host string, port int) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", host, port)
	return serveHTTP(ctx, logger, &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	})
}

// serveHTTP runs srv until ctx ends, then shuts it down gracefully.
func serveHTTP(ctx context.Context, logger *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
