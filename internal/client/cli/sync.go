package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/syncer"
)

func (rt *runtime) syncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued changes and pull remote ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := rt.app.Engine.Sync(cmd.Context(), rt.app.Owner())
			printReport(cmd.OutOrStdout(), rep)
			return err
		},
	}
}

func (rt *runtime) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show connectivity, sync backlog and items needing attention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rt.app.Engine.Stats(cmd.Context(), rt.app.Owner())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			mode := "offline"
			if rt.app.Online() {
				mode = "online"
			}
			fmt.Fprintf(out, "owner:      %s\n", rt.app.Owner())
			fmt.Fprintf(out, "mode:       %s\n", mode)
			fmt.Fprintf(out, "pending:    %d\n", stats.Pending)
			if stats.LastSyncAt.IsZero() {
				fmt.Fprintln(out, "last sync:  never")
			} else {
				fmt.Fprintf(out, "last sync:  %s\n", stats.LastSyncAt.Local().Format(time.DateTime))
			}
			if len(stats.Exhausted) > 0 {
				fmt.Fprintf(out, "\n%d queued change(s) keep failing and need attention:\n", len(stats.Exhausted))
				printOutbox(out, stats.Exhausted)
			}
			return nil
		},
	}
}

func (rt *runtime) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing in the background until interrupted",
		Long: `Keep syncing until interrupted. A sync runs at start, every
--sync-interval, and whenever the server becomes reachable again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			rt.app.Watch(ctx, func(s syncer.Status) {
				if s.State == syncer.StateError {
					fmt.Fprintf(out, "%s sync failed: %s\n", s.Since.Local().Format(time.TimeOnly), s.LastError)
					return
				}
				fmt.Fprintf(out, "%s %s\n", s.Since.Local().Format(time.TimeOnly), s.State)
			})
			return nil
		},
	}
}

func (rt *runtime) outboxCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "outbox",
		Short: "List changes waiting to be sent to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := rt.app.store.Outbox.ListByOwner(cmd.Context(), rt.app.Owner())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "outbox is empty")
				return nil
			}
			printOutbox(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func printReport(w io.Writer, rep syncer.Report) {
	if rep.Skipped != syncer.SkipNone {
		fmt.Fprintf(w, "sync skipped: %s\n", rep.Skipped)
		return
	}
	fmt.Fprintf(w, "pushed %d, failed %d, waiting %d\n", rep.Replayed, rep.Failed, rep.Deferred)
	fmt.Fprintf(w, "pulled %d new, %d updated, %d kept local, %d unchanged\n",
		rep.Inserted, rep.Overwritten, rep.KeptLocal, rep.Unchanged)
	if rep.Exhausted > 0 {
		fmt.Fprintf(w, "%d change(s) need attention, see `nutrisync status`\n", rep.Exhausted)
	}
}

func printOutbox(w io.Writer, items []models.OutboxItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOP\tTARGET\tRETRIES\tQUEUED\tLAST ERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.Op, it.Target(), it.RetryCount, it.CreatedAt.Local().Format(time.DateTime), it.LastError)
	}
	_ = tw.Flush()
}
