package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/refinery/internal/data"
	"github.com/roach88/refinery/internal/tablediff"
	"github.com/roach88/refinery/internal/tableio"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	KeyColumn string
	OutDir    string
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <checkpoint>...",
		Short: "Diff checkpoint files phase to phase",
		Long: `Compare two or more checkpoint files in pipeline order.

With exactly two files and no --out, the diff is written to stdout in
the global output format. With --out, one HTML artifact is written per
adjacent pair, plus a whole-run artifact comparing the first file to
the last when more than two files are given.

Example:
  refinery diff out/source_copy.csv out/Validate_output.csv
  refinery diff out/source_copy.csv out/Validate_output.csv out/Transform_output.csv --out out/diffs`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.KeyColumn, "key", "", "match rows by this column instead of row number")
	cmd.Flags().StringVar(&opts.OutDir, "out", "", "directory for HTML diff artifacts")

	return cmd
}

func runDiff(opts *DiffOptions, paths []string, cmd *cobra.Command) error {
	batches := make([]data.Batch, len(paths))
	for i, path := range paths {
		batch, _, err := tableio.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load checkpoint", err)
		}
		// Checkpoint files carry no row numbers, so identity is positional
		// unless --key overrides it.
		batch.Renumber()
		batches[i] = batch
	}

	var diffOpts []tablediff.Option
	if opts.KeyColumn != "" {
		diffOpts = append(diffOpts, tablediff.WithKeyColumn(opts.KeyColumn))
	}

	if opts.OutDir == "" {
		if len(paths) != 2 {
			return WrapExitError(ExitCommandError, "more than two checkpoints require --out", nil)
		}
		d, err := tablediff.Compare(batches[0], batches[1], diffOpts...)
		if err != nil {
			return WrapExitError(ExitFailure, "diff failed", err)
		}
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
		if opts.Format == "json" {
			return formatter.Success(d.Summary)
		}
		return tablediff.Text(cmd.OutOrStdout(), d)
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output dir", err)
	}

	// Artifacts are independent, so generate them concurrently: one per
	// adjacent pair, plus the whole-run diff when there are intermediates.
	var g errgroup.Group
	for i := 0; i < len(paths)-1; i++ {
		g.Go(diffArtifact(batches[i], batches[i+1], paths[i], paths[i+1], opts, diffOpts))
	}
	if len(paths) > 2 {
		g.Go(diffArtifact(batches[0], batches[len(batches)-1], paths[0], paths[len(paths)-1], opts, diffOpts))
	}
	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "diff failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(fmt.Sprintf("diff artifacts written to %s", opts.OutDir))
}

// diffArtifact returns a closure that compares one pair and writes its
// HTML artifact, named after both checkpoint files.
func diffArtifact(left, right data.Batch, leftPath, rightPath string, opts *DiffOptions, diffOpts []tablediff.Option) func() error {
	return func() error {
		d, err := tablediff.Compare(left, right, diffOpts...)
		if err != nil {
			return fmt.Errorf("%s vs %s: %w", leftPath, rightPath, err)
		}
		name := fmt.Sprintf("%s-vs-%s.html", artifactStem(leftPath), artifactStem(rightPath))
		path := filepath.Join(opts.OutDir, name)
		if err := os.WriteFile(path, []byte(tablediff.HTML(d)), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}
}

func artifactStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
