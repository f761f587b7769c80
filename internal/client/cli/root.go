package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/nutrisync/internal/client/config"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// runtime carries state from the root command to the subcommands. The App
// is built lazily in PersistentPreRunE so that help and completion work
// without a database.
type runtime struct {
	opts    Options
	offline bool
	demo    bool
	app     *App
}

// NewRootCommand creates the nutrisync command tree. opts.Offline and
// opts.Demo are defaults for the --offline and --demo flags.
func NewRootCommand(opts Options) *cobra.Command {
	rt := &runtime{opts: opts}
	return rt.rootCommand()
}

func (rt *runtime) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nutrisync",
		Short: "Offline-first nutrition tracker client",
		Long: `nutrisync keeps foods, diary entries, weight and water records in a local
database and synchronizes them with the nutrition server whenever it is
reachable. Every change is saved locally first and is never lost while
offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			opts := rt.opts
			opts.Offline = rt.offline
			opts.Demo = rt.demo
			if opts.Stderr == nil {
				opts.Stderr = cmd.ErrOrStderr()
			}
			app, err := NewApp(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			rt.app = app
			return nil
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().BoolVar(&rt.offline, "offline", rt.opts.Offline, "work offline, never contact the server")
	cmd.PersistentFlags().BoolVar(&rt.demo, "demo", rt.opts.Demo, "use an in-memory server instead of the configured one")

	cmd.AddCommand(rt.syncCommand())
	cmd.AddCommand(rt.statusCommand())
	cmd.AddCommand(rt.watchCommand())
	cmd.AddCommand(rt.outboxCommand())
	cmd.AddCommand(rt.foodCommand())
	cmd.AddCommand(rt.entryCommand())
	cmd.AddCommand(rt.weightCommand())
	cmd.AddCommand(rt.waterCommand())

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts Options) int {
	rt := &runtime{opts: opts}
	cmd := rt.rootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if rt.app != nil {
		if cerr := rt.app.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitCode(err)
	}
	return ExitSuccess
}

// usageError marks errors caused by bad command input.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) || errors.Is(err, ErrNoOwner) {
		return ExitCommandError
	}
	return ExitFailure
}
