package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/refinery/internal/data"
	"github.com/roach88/refinery/internal/store"
	"github.com/roach88/refinery/internal/tableio"
)

// Pipeline runs an ordered sequence of phases over one shared context,
// feeding each phase's output batch to the next, persisting one checkpoint
// per phase plus the source snapshot, and aggregating the phase error logs.
//
// The first FAILED phase aborts the run; checkpoints already written for
// completed phases stay on disk as debugging artifacts. A run that
// completes every phase is successful even when rows were dropped or
// warnings logged.
type Pipeline struct {
	name       string
	phases     []*Phase
	workingDir string
	format     tableio.Format
	ledger     *store.Ledger
	tokens     TokenGenerator
	initial    []Extra
	firstOnly  bool

	ctx         *Context
	reg         *extraRegistry
	token       string
	sourceName  string
	source      *Checkpoint
	checkpoints []*Checkpoint
	prevDir     string
}

// PipelineOption configures a pipeline declaration.
type PipelineOption func(*Pipeline)

// WithPhases declares the phases in execution order.
func WithPhases(phases ...*Phase) PipelineOption {
	return func(p *Pipeline) { p.phases = append(p.phases, phases...) }
}

// WithWorkingDir sets the directory for checkpoints, the source copy, and
// the errors report. Required for file runs; in-memory runs ignore it.
func WithWorkingDir(dir string) PipelineOption {
	return func(p *Pipeline) { p.workingDir = dir }
}

// WithSaveFormat selects CSV or JSON checkpoint encoding.
func WithSaveFormat(f tableio.Format) PipelineOption {
	return func(p *Pipeline) { p.format = f }
}

// WithLedger records runs, checkpoints, and events in the run ledger.
func WithLedger(l *store.Ledger) PipelineOption {
	return func(p *Pipeline) { p.ledger = l }
}

// WithTokens replaces the run-token generator; tests use FixedGenerator.
func WithTokens(g TokenGenerator) PipelineOption {
	return func(p *Pipeline) { p.tokens = g }
}

// WithExtras seeds side-channels before the first phase runs, for sources
// that no phase produces.
func WithExtras(extras ...Extra) PipelineOption {
	return func(p *Pipeline) { p.initial = append(p.initial, extras...) }
}

// WarnUnknownFirstPhaseOnly restricts the undeclared-field consistency
// warning to the first phase instead of firing at every phase entry.
func WarnUnknownFirstPhaseOnly() PipelineOption {
	return func(p *Pipeline) { p.firstOnly = true }
}

// NewPipeline declares a pipeline. Duplicate phase names are
// disambiguated with numeric suffixes so log attribution and checkpoint
// file names stay unique.
func NewPipeline(name string, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		name:   name,
		format: tableio.FormatCSV,
		tokens: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	seen := make(map[string]bool)
	for _, phase := range p.phases {
		base := phase.Name()
		unique := base
		for i := 1; seen[unique]; i++ {
			unique = fmt.Sprintf("%s-%d", base, i)
		}
		seen[unique] = true
		phase.setName(unique)
	}
	if p.firstOnly {
		for _, phase := range p.phases[1:] {
			phase.warnUnknown = false
		}
	}
	return p
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Token returns the current run's token, empty before the first run.
func (p *Pipeline) Token() string { return p.token }

// Context returns the shared context, nil before the first run.
func (p *Pipeline) Context() *Context { return p.ctx }

// SourceSnapshot returns the checkpoint of the untouched input batch.
func (p *Pipeline) SourceSnapshot() *Checkpoint { return p.source }

// Checkpoints returns the per-phase checkpoints emitted so far this run.
func (p *Pipeline) Checkpoints() []*Checkpoint {
	out := make([]*Checkpoint, len(p.checkpoints))
	copy(out, p.checkpoints)
	return out
}

// RunBatch executes every phase against an in-memory batch and returns
// the final output batch. Rows are renumbered once here, at pipeline
// entry; the numbers persist through every phase for attribution and
// diffing.
func (p *Pipeline) RunBatch(ctx context.Context, batch data.Batch) (data.Batch, error) {
	if len(p.phases) == 0 {
		return nil, Configf("pipeline %q declares no phases", p.name)
	}
	p.ctx = NewContext()
	p.reg = newExtraRegistry()
	p.checkpoints = nil
	p.token = p.tokens.Generate()
	for _, e := range p.initial {
		p.reg.put(e)
	}

	current := batch.Clone()
	current.Renumber()
	p.source = newCheckpoint("source", current, NewLog("source"))

	slog.Info("pipeline starting", "pipeline", p.name, "run", p.token, "rows", len(current))
	p.beginLedgerRun(ctx)

	for i, phase := range p.phases {
		cp, err := phase.Run(p.ctx, p.reg, current)
		if err != nil {
			p.recordLedgerEvents(ctx, phase.Log())
			p.finishLedgerRun(ctx, store.StatusFailed)
			return nil, err
		}
		p.checkpoints = append(p.checkpoints, cp)
		p.recordLedgerCheckpoint(ctx, i+1, cp)
		p.recordLedgerEvents(ctx, cp.Log())
		current = cp.Batch()
		if len(current) == 0 {
			err := &FatalError{Phase: phase.Name(), Err: fmt.Errorf("no rows left to process, terminating early")}
			p.finishLedgerRun(ctx, store.StatusFailed)
			return nil, err
		}
	}

	p.finishLedgerRun(ctx, store.StatusComplete)
	slog.Info("pipeline complete", "pipeline", p.name, "run", p.token, "rows", len(current))
	return current, nil
}

// Run executes the pipeline against a source file, persisting the source
// copy, one checkpoint file per phase, and the errors report into the
// working directory. Artifacts from a previous run are moved into a
// timestamped prev- directory first.
func (p *Pipeline) Run(ctx context.Context, sourcePath string) error {
	if p.workingDir == "" {
		return Configf("pipeline %q has no working directory", p.name)
	}
	if info, err := os.Stat(p.workingDir); err != nil || !info.IsDir() {
		return Configf("working dir %q does not exist", p.workingDir)
	}
	p.prevDir = filepath.Join(p.workingDir, "prev-"+time.Now().Format("060102-150405"))

	batch, _, err := p.format.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("load source %s: %w", sourcePath, err)
	}

	p.sourceName = sourcePath
	_, runErr := p.RunBatch(ctx, batch)
	if p.source == nil {
		// The run was rejected before the source snapshot was taken, so
		// there are no artifacts to persist.
		return runErr
	}

	// The source copy and any checkpoints from completed phases are
	// written even when a later phase failed; they are the debugging
	// artifacts for diagnosing the failure.
	if err := p.persistArtifacts(); err != nil {
		return err
	}
	return runErr
}

func (p *Pipeline) persistArtifacts() error {
	srcPath := filepath.Join(p.workingDir, "source_copy"+p.format.Ext())
	if err := p.moveExisting(srcPath); err != nil {
		return err
	}
	srcBatch := p.source.Batch()
	if err := p.format.WriteFile(srcPath, srcBatch, srcBatch.Headers()); err != nil {
		return fmt.Errorf("write source copy: %w", err)
	}

	for _, cp := range p.checkpoints {
		path := p.CheckpointPath(cp.Phase())
		if err := p.moveExisting(path); err != nil {
			return err
		}
		if err := p.format.WriteFile(path, cp.Batch(), cp.Columns()); err != nil {
			return fmt.Errorf("write checkpoint for %s: %w", cp.Phase(), err)
		}
	}

	reportPath := filepath.Join(p.workingDir, "errors_and_warnings.txt")
	if err := p.moveExisting(reportPath); err != nil {
		return err
	}
	f, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("write errors report: %w", err)
	}
	if err := p.ErrorReport(f); err != nil {
		f.Close()
		return fmt.Errorf("write errors report: %w", err)
	}
	return f.Close()
}

// CheckpointPath returns the persisted file path for a phase's output.
func (p *Pipeline) CheckpointPath(phaseName string) string {
	return filepath.Join(p.workingDir, phaseName+"_output"+p.format.Ext())
}

// Logs returns every phase's error log in run order, including the log
// of a phase that failed mid-run. Phases that never ran contribute nil.
func (p *Pipeline) Logs() []*Log {
	logs := make([]*Log, 0, len(p.phases))
	for _, phase := range p.phases {
		logs = append(logs, phase.Log())
	}
	return logs
}

// ErrorReport writes the aggregated human-readable report: every phase's
// log, in run order, under a phase header.
func (p *Pipeline) ErrorReport(w io.Writer) error {
	for _, phase := range p.phases {
		log := phase.Log()
		if log == nil {
			continue
		}
		fmt.Fprintln(w, "-------------")
		fmt.Fprintf(w, "Beginning errors and warnings for %s\n", phase.Name())
		fmt.Fprintln(w, "-------------")
		if err := log.Render(w); err != nil {
			return err
		}
	}
	return nil
}

// moveExisting archives a previous run's file into the prev- directory
// rather than overwriting it.
func (p *Pipeline) moveExisting(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if p.prevDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.prevDir, 0o755); err != nil {
		return fmt.Errorf("create prev-run dir: %w", err)
	}
	dest := filepath.Join(p.prevDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("archive previous %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Ledger writes are observational: a failure is logged and the data run
// continues.

func (p *Pipeline) beginLedgerRun(ctx context.Context) {
	if p.ledger == nil {
		return
	}
	source := p.sourceName
	if source == "" {
		source = "in-memory"
	}
	if err := p.ledger.BeginRun(ctx, p.token, p.name, source); err != nil {
		slog.Warn("ledger begin-run failed", "run", p.token, "error", err)
	}
}

func (p *Pipeline) finishLedgerRun(ctx context.Context, status string) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.FinishRun(ctx, p.token, status); err != nil {
		slog.Warn("ledger finish-run failed", "run", p.token, "error", err)
	}
}

func (p *Pipeline) recordLedgerCheckpoint(ctx context.Context, seq int, cp *Checkpoint) {
	if p.ledger == nil {
		return
	}
	path := ""
	if p.workingDir != "" {
		path = p.CheckpointPath(cp.Phase())
	}
	if err := p.ledger.RecordCheckpoint(ctx, p.token, seq, cp.Phase(), cp.Rows(), cp.Fingerprint(), path); err != nil {
		slog.Warn("ledger checkpoint failed", "run", p.token, "phase", cp.Phase(), "error", err)
	}
}

func (p *Pipeline) recordLedgerEvents(ctx context.Context, log *Log) {
	if p.ledger == nil || log == nil {
		return
	}
	entries := log.Entries()
	events := make([]store.Event, len(entries))
	for i, e := range entries {
		events[i] = store.Event{
			Phase:    e.Phase,
			Step:     e.Step,
			RowNum:   e.RowNum,
			Severity: string(e.Severity),
			Message:  e.Message,
		}
	}
	if err := p.ledger.RecordEvents(ctx, p.token, events); err != nil {
		slog.Warn("ledger events failed", "run", p.token, "error", err)
	}
}
