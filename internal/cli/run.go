package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/refinery/internal/engine"
	"github.com/roach88/refinery/internal/store"
	"github.com/roach88/refinery/internal/tableio"
)

// JobConfig is the YAML job file: which registered pipeline to run,
// against which source, and where the artifacts go.
type JobConfig struct {
	Pipeline   string `yaml:"pipeline"`
	Source     string `yaml:"source"`
	WorkingDir string `yaml:"working_dir"`
	Format     string `yaml:"format"`
	Ledger     string `yaml:"ledger"`
}

// LoadJob reads and validates a job file.
func LoadJob(path string) (*JobConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	var job JobConfig
	if err := yaml.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("parse job file %s: %w", path, err)
	}
	if job.Pipeline == "" {
		return nil, fmt.Errorf("job file %s: pipeline is required", path)
	}
	if job.Source == "" {
		return nil, fmt.Errorf("job file %s: source is required", path)
	}
	if job.WorkingDir == "" {
		return nil, fmt.Errorf("job file %s: working_dir is required", path)
	}
	return &job, nil
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions, reg *Registry) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <job-file>",
		Short: "Run a declared pipeline against a source file",
		Long: `Run a registered pipeline as described by a YAML job file.

The job file names the pipeline, the source data file, and the working
directory that receives the source copy, one checkpoint per phase, and
the errors_and_warnings.txt report. Artifacts from a previous run are
moved aside, not overwritten.

Example job file:
  pipeline: employees
  source: ./employees.csv
  working_dir: ./out
  format: csv
  ledger: ./refinery.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(opts, reg, args[0], cmd)
		},
	}

	return cmd
}

func runJob(opts *RunOptions, reg *Registry, jobPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	job, err := LoadJob(jobPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load job", err)
	}

	format, err := tableio.ParseFormat(job.Format)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load job", err)
	}

	pipelineOpts := []engine.PipelineOption{
		engine.WithWorkingDir(job.WorkingDir),
		engine.WithSaveFormat(format),
	}
	if job.Ledger != "" {
		ledger, err := store.Open(job.Ledger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open ledger", err)
		}
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				slog.Error("error closing ledger", "error", closeErr)
			}
		}()
		pipelineOpts = append(pipelineOpts, engine.WithLedger(ledger))
	}

	pipeline, err := reg.Build(job.Pipeline, pipelineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if err := pipeline.Run(cmd.Context(), job.Source); err != nil {
		_ = formatter.Error("pipeline run failed", err.Error())
		return WrapExitError(ExitFailure, "pipeline run failed", err)
	}

	return formatter.Success(map[string]any{
		"pipeline": job.Pipeline,
		"run":      pipeline.Token(),
		"phases":   len(pipeline.Checkpoints()),
	})
}
