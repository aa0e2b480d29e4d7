package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tillpoint/possync/internal/remote"
	"github.com/tillpoint/possync/internal/transport"
)

var remoteDevAddr string

var remoteDevCmd = &cobra.Command{
	Use:   "remote-dev",
	Short: "Serve an in-memory remote store for development",
	Long: `Serve the remote sync API backed by an in-memory store. Data is lost on
exit. With auth.enabled, auth.tokens maps bearer tokens to tenants;
otherwise the X-Tenant-ID header scopes each request.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, closer, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		if closer != nil {
			defer closer.Close()
		}

		var auth func(http.Handler) http.Handler
		if cfg.Auth.Enabled {
			auth = transport.AuthMiddleware(transport.StaticResolver(cfg.Auth.Tokens))
		}
		addr := remoteDevAddr
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serveHTTP(ctx, logger, &http.Server{
			Addr:              addr,
			Handler:           transport.NewServer(remote.NewMemory(), auth),
			ReadHeaderTimeout: 10 * time.Second,
		})
	},
}

func init() {
	remoteDevCmd.Flags().StringVar(&remoteDevAddr, "addr", "", "listen address (defaults to server.host:server.port)")
}
