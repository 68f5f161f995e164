package cli

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/refinery/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Ledger   string
	Pipeline string
	Limit    int
	Events   string
}

// NewRunsCommand creates the runs command, which reads the run ledger.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		Long: `List runs from the ledger database, most recent first.

With --events <token>, show that run's checkpoints and logged events
instead of the run list.

Example:
  refinery runs --db ./refinery.db
  refinery runs --db ./refinery.db --pipeline employees --limit 5
  refinery runs --db ./refinery.db --events 0190b5a2-...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "db", "", "path to the ledger database (required)")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "only runs of this pipeline")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list")
	cmd.Flags().StringVar(&opts.Events, "events", "", "show checkpoints and events for this run token")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func listRuns(opts *RunsOptions, cmd *cobra.Command) error {
	ledger, err := store.Open(opts.Ledger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		if closeErr := ledger.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	ctx := cmd.Context()

	if opts.Events != "" {
		checkpoints, err := ledger.Checkpoints(ctx, opts.Events)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read checkpoints", err)
		}
		events, err := ledger.Events(ctx, opts.Events)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read events", err)
		}
		if opts.Format == "json" {
			return formatter.Success(map[string]any{
				"checkpoints": checkpoints,
				"events":      events,
			})
		}
		for _, cp := range checkpoints {
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint %d: %s (%d rows, %s)\n", cp.Seq, cp.Phase, cp.RowCount, cp.Fingerprint)
		}
		for _, e := range events {
			fmt.Fprintf(cmd.OutOrStdout(), "%s in step %s, row %d: message: '%s'\n", e.Severity, e.Step, e.RowNum, e.Message)
		}
		return nil
	}

	runs, err := ledger.Runs(ctx, opts.Pipeline, opts.Limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}
	if opts.Format == "json" {
		return formatter.Success(runs)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tPIPELINE\tSTATUS\tSTARTED\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Token, r.Pipeline, r.Status, r.StartedAt, r.Source)
	}
	return tw.Flush()
}
