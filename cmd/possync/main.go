// Command possync runs the offline-first replica and sync engine of a
// point-of-sale terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "possync",
	Short: "Offline-first replica and sync engine for POS terminals",
	Long: `possync keeps a local replica of point-of-sale records, queues every local
write durably, and syncs it with the shared remote store whenever the
terminal is online.

Configuration comes from the YAML file named by POSSYNC_CONFIG_PATH and
POSSYNC_* environment overrides.`,
	SilenceUsage: true,
}

var tenantFlag string

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&tenantFlag, "tenant", "", "tenant scope (defaults to auth.default_tenant)")
	rootCmd.AddCommand(serveCmd, syncCmd, statusCmd, logCmd, clearHistoryCmd, remoteDevCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
