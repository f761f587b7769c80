package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/nutrisync/internal/client/models"
	"github.com/dmitrijs2005/nutrisync/internal/client/services"
)

// collection holds what the generic list and rm commands need to know
// about one entity.
type collection[T models.Payload] struct {
	noun     string
	dated    bool
	service  func(*App) *services.OfflineService[T]
	describe func(T) string
}

func (c collection[T]) listCommand(rt *runtime) *cobra.Command {
	var f models.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + c.noun + " records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := c.service(rt.app).Load(cmd.Context(), rt.app.Owner(), f)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), recs, c.describe)
			return nil
		},
	}
	if c.dated {
		cmd.Flags().StringVar(&f.Date, "date", "", "only this day (YYYY-MM-DD)")
		cmd.Flags().StringVar(&f.From, "from", "", "first day of a range (YYYY-MM-DD)")
		cmd.Flags().StringVar(&f.To, "to", "", "last day of a range (YYYY-MM-DD)")
	}
	return cmd
}

func (c collection[T]) removeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a " + c.noun + " record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			res, err := c.service(rt.app).Delete(cmd.Context(), key)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), "deleted", c.noun, res)
			return nil
		},
	}
}

// save runs a create or update and prints where the write ended up.
func (c collection[T]) save(ctx context.Context, rt *runtime, out io.Writer, key int64, data T) error {
	svc := c.service(rt.app)
	var (
		res  services.Result
		err  error
		verb = "saved"
	)
	if key == 0 {
		res, err = svc.Create(ctx, rt.app.Owner(), data)
	} else {
		verb = "updated"
		res, err = svc.Update(ctx, key, data)
	}
	if err != nil {
		return err
	}
	printResult(out, verb, c.noun, res)
	return nil
}

func printResult(w io.Writer, verb, noun string, res services.Result) {
	state := "queued for sync"
	if res.Synced {
		state = "synced"
	}
	fmt.Fprintf(w, "%s %s %d (%s)\n", verb, noun, res.LocalKey, state)
}

func printRecords[T models.Payload](w io.Writer, recs []models.Record[T], describe func(T) string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tDAY\tSTATE\tREMOTE ID\tDETAILS")
	for _, r := range recs {
		state := "pending"
		if r.Synced {
			state = "synced"
		}
		day := r.Data.Day()
		if day == "" {
			day = "-"
		}
		remote := r.RemoteID
		if remote == "" {
			remote = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.LocalKey, day, state, remote, describe(r.Data))
	}
	_ = tw.Flush()
}

func parseKey(s string) (int64, error) {
	key, err := strconv.ParseInt(s, 10, 64)
	if err != nil || key <= 0 {
		return 0, usagef("invalid key %q: want a positive number", s)
	}
	return key, nil
}

// day returns s, or today when s is empty, after checking its format.
func day(s string) (string, error) {
	if s == "" {
		return models.Today(time.Now()), nil
	}
	if _, err := time.Parse(models.DayLayout, s); err != nil {
		return "", usagef("invalid date %q: want YYYY-MM-DD", s)
	}
	return s, nil
}
