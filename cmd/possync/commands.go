package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tillpoint/possync/internal/domain/synclog"
	"github.com/tillpoint/possync/internal/sqlite"
	"github.com/tillpoint/possync/internal/status"
)

var jsonOutput bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one manual sync cycle and exit",
	Long: `Push queued local changes and pull remote changes for the tenant, then
print the outcome per table. Failed changes are retried as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			manager := a.manager()
			defer manager.Close()

			e, err := manager.Start(ctx, a.tenant())
			if err != nil {
				return err
			}
			res, err := e.SyncNow(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(os.Stdout, res)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintf(w, "state\t%s\n", res.State)
			if res.Skipped {
				fmt.Fprintf(w, "skipped\t%s\n", res.Reason)
			}
			fmt.Fprintln(w, "TABLE\tSTATUS\tPUSHED\tPULLED\tCONFLICTS\tERROR")
			for _, t := range res.Tables {
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%d\t%s\n", t.Table, t.Status, t.Pushed, t.Attempted, t.Pulled, t.Conflicts, t.Error)
			}
			fmt.Fprintf(w, "pending\t%d\n", e.Status().PendingChanges)
			return w.Flush()
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending changes, last sync and remote reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			tenant := a.tenant()
			pending, err := sqlite.NewMutationRepository(a.db).Count(ctx, tenant)
			if err != nil {
				return err
			}
			last, err := sqlite.NewCheckpointRepository(a.db).LastSync(ctx, tenant)
			if err != nil {
				return err
			}
			probeCtx, cancel := context.WithTimeout(ctx, a.cfg.Sync.ProbeTimeout)
			defer cancel()
			state := status.SyncState{
				IsOnline:       a.remote.Health(probeCtx) == nil,
				PendingChanges: pending,
				LastSync:       last,
				Phase:          status.PhaseIdle,
			}
			if jsonOutput {
				return writeJSON(os.Stdout, state)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintf(w, "tenant\t%s\n", tenant)
			fmt.Fprintf(w, "online\t%t\n", state.IsOnline)
			fmt.Fprintf(w, "pending\t%d\n", state.PendingChanges)
			if last != nil {
				fmt.Fprintf(w, "last sync\t%s\n", last.Local().Format(time.RFC3339))
			} else {
				fmt.Fprintln(w, "last sync\tnever")
			}
			return w.Flush()
		})
	},
}

var (
	logType  string
	logTable string
	logLimit int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show sync history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			recorder := synclog.NewRecorder(sqlite.NewSyncLogRepository(a.db), a.cfg.Sync.LogCap, a.logger)
			entries, err := recorder.List(ctx, a.tenant(), synclog.ListOptions{
				Type:  synclog.EntryType(logType),
				Table: logTable,
				Limit: logLimit,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(os.Stdout, entries)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tTABLE\tITEMS\tSTATUS\tDETAILS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
					e.Timestamp.Local().Format(time.DateTime), e.Type, e.Table, e.ItemCount, e.Attempted, e.Status, e.Details)
			}
			return w.Flush()
		})
	},
}

var clearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "Delete the sync history of the tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			recorder := synclog.NewRecorder(sqlite.NewSyncLogRepository(a.db), a.cfg.Sync.LogCap, a.logger)
			if err := recorder.Clear(ctx, a.tenant()); err != nil {
				return err
			}
			fmt.Println("sync history cleared")
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{syncCmd, statusCmd, logCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	}
	logCmd.Flags().StringVar(&logType, "type", "", "only entries of this type (download, upload, conflict, error)")
	logCmd.Flags().StringVar(&logTable, "table", "", "only entries for this table")
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "maximum entries")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
