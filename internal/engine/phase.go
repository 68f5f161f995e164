package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/refinery/internal/data"
)

// State is the phase lifecycle state.
type State string

const (
	StatePending      State = "PENDING"
	StateValidating   State = "VALIDATING"
	StateRunningSteps State = "RUNNING_STEPS"
	StateProjecting   State = "PROJECTING"
	StateCheckpointed State = "CHECKPOINTED"
	StateFailed       State = "FAILED"
)

// Phase orchestrates one validation-plus-transformation unit over a fully
// materialized batch: column validation, ordered step execution, save
// projection, and checkpoint emission, with one error log.
//
// The lifecycle is PENDING -> VALIDATING -> RUNNING_STEPS (one transition
// per step) -> PROJECTING -> CHECKPOINTED, or FAILED from any state on a
// fatal error.
type Phase struct {
	name          string
	columns       []*Column
	steps         []*Step
	extraSources  []string
	extraOutputs  []string
	recordOutputs map[string]bool
	warnUnknown   bool

	state   State
	log     *Log
	dropped map[int]bool
}

// PhaseOption configures a phase declaration.
type PhaseOption func(*Phase)

// Columns declares the ordered column specs applied at phase entry.
func Columns(cols ...*Column) PhaseOption {
	return func(p *Phase) { p.columns = append(p.columns, cols...) }
}

// Steps declares the ordered steps run after validation.
func Steps(steps ...*Step) PhaseOption {
	return func(p *Phase) { p.steps = append(p.steps, steps...) }
}

// PhaseExtraSources declares side-channel names this phase reads. A name
// produced by an earlier phase is visible here only through this explicit
// re-declaration.
func PhaseExtraSources(names ...string) PhaseOption {
	return func(p *Phase) { p.extraSources = append(p.extraSources, names...) }
}

// PhaseExtraOutputs declares side-channel names this phase creates or
// forwards. Names created here materialize as keyed mappings; use
// PhaseExtraRecordOutputs for an appended record sequence.
func PhaseExtraOutputs(names ...string) PhaseOption {
	return func(p *Phase) { p.extraOutputs = append(p.extraOutputs, names...) }
}

// PhaseExtraRecordOutputs declares side-channel names this phase creates
// as appended record sequences.
func PhaseExtraRecordOutputs(names ...string) PhaseOption {
	return func(p *Phase) {
		p.extraOutputs = append(p.extraOutputs, names...)
		if p.recordOutputs == nil {
			p.recordOutputs = make(map[string]bool, len(names))
		}
		for _, name := range names {
			p.recordOutputs[name] = true
		}
	}
}

// NoUnknownFieldWarnings suppresses the undeclared-field consistency
// warning for this phase. The pipeline uses this to restrict the warning
// to first phase entry.
func NoUnknownFieldWarnings() PhaseOption {
	return func(p *Phase) { p.warnUnknown = false }
}

// NewPhase declares a phase. Column and step order is preserved exactly as
// declared.
func NewPhase(name string, opts ...PhaseOption) *Phase {
	p := &Phase{
		name:        name,
		warnUnknown: true,
		state:       StatePending,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the phase name.
func (p *Phase) Name() string { return p.name }

// State returns the current lifecycle state.
func (p *Phase) State() State { return p.state }

// Log returns the phase's error log; empty until the phase runs.
func (p *Phase) Log() *Log { return p.log }

// ExtraSourceNames returns the declared source names. The slice is a copy.
func (p *Phase) ExtraSourceNames() []string {
	out := make([]string, len(p.extraSources))
	copy(out, p.extraSources)
	return out
}

// ExtraOutputNames returns the declared output names. The slice is a copy.
func (p *Phase) ExtraOutputNames() []string {
	out := make([]string, len(p.extraOutputs))
	copy(out, p.extraOutputs)
	return out
}

// setName is used by the pipeline to disambiguate duplicate phase names.
func (p *Phase) setName(name string) { p.name = name }

// checkConfig validates columns, steps, and extra declarations, and
// resolves every step-declared extra against the phase and registry.
// Configuration problems surface here, before any row is processed.
func (p *Phase) checkConfig(reg *extraRegistry) error {
	for _, col := range p.columns {
		if err := col.Validate(); err != nil {
			return err
		}
	}
	declared := make(map[string]bool)
	for _, name := range p.extraSources {
		if _, ok := reg.get(name); !ok {
			return Configf("phase %q: extra source %q has not been produced by any earlier phase or pipeline setup", p.name, name)
		}
		declared[name] = true
	}
	for _, name := range p.extraOutputs {
		declared[name] = true
	}
	for _, step := range p.steps {
		if err := step.Validate(); err != nil {
			return err
		}
		for _, name := range step.extraSources {
			if !declared[name] {
				return Configf("step %q declares extra source %q not declared by phase %q", step.name, name, p.name)
			}
		}
		for _, name := range step.extraOutputs {
			if !declared[name] {
				return Configf("step %q declares extra output %q not declared by phase %q", step.name, name, p.name)
			}
		}
	}
	return nil
}

// Run executes the phase against an input batch and returns the
// checkpointed output. The input is cloned; the caller's batch is never
// mutated. On any fatal error the phase ends FAILED, no checkpoint is
// emitted, and the error carries phase attribution.
func (p *Phase) Run(ctx *Context, reg *extraRegistry, in data.Batch) (*Checkpoint, error) {
	p.log = NewLog(p.name)
	p.dropped = make(map[int]bool)
	p.state = StatePending

	if err := p.checkConfig(reg); err != nil {
		p.state = StateFailed
		return nil, &FatalError{Phase: p.name, Err: err}
	}
	// Outputs owned by this phase come into existence here, in the shape
	// the declaration named. A name already present is being forwarded,
	// not re-created.
	for _, name := range p.extraOutputs {
		if _, ok := reg.get(name); !ok {
			if p.recordOutputs[name] {
				reg.put(NewExtraRecords(name))
			} else {
				reg.put(NewExtraMapping(name))
			}
		}
	}

	batch := in.Clone()
	slog.Info("phase starting", "phase", p.name, "rows", len(batch))

	p.state = StateValidating
	batch, err := p.validateBatch(batch)
	if err != nil {
		p.state = StateFailed
		return nil, err
	}

	for _, step := range p.steps {
		p.state = StateRunningSteps
		batch, err = p.runStep(ctx, reg, step, batch)
		if err != nil {
			p.state = StateFailed
			return nil, err
		}
	}

	p.state = StateProjecting
	p.project(batch)

	p.state = StateCheckpointed
	slog.Info("phase checkpointed",
		"phase", p.name,
		"rows", len(batch),
		"warnings", p.log.Count(SeverityWarning),
		"dropped", p.log.Count(SeverityDroppedRow),
	)
	return newCheckpoint(p.name, batch, p.log), nil
}

// validateBatch applies the column specs: header folding, the undeclared
// field consistency warning, then the fixed per-row per-column pipeline in
// declaration order.
func (p *Phase) validateBatch(batch data.Batch) (data.Batch, error) {
	p.foldHeaders(batch)
	if p.warnUnknown {
		p.warnUndeclaredFields(batch)
	}
	if len(p.columns) == 0 {
		return batch, nil
	}

	out := batch[:0]
	for _, row := range batch {
		keep := true
		for _, col := range p.columns {
			err := col.applyToRow(row)
			if err == nil {
				continue
			}
			var resolved bool
			keep, resolved = p.resolveColumnFailure(col, row, err)
			if !resolved {
				return nil, &FatalError{Phase: p.name, Step: validateStepName, Err: err}
			}
			break // first failure per row wins; later columns must not assume this one passed
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

const validateStepName = "cast_and_validate"

// resolveColumnFailure maps a ValidationError through the column's
// on-error policy. Returns keep (row survives) and resolved (non-fatal).
func (p *Phase) resolveColumnFailure(col *Column, row *data.Row, err error) (keep, resolved bool) {
	switch col.onError {
	case PolicyWarn:
		p.log.Record(SeverityWarning, validateStepName, row.Num(), err.Error())
		return true, true
	case PolicyDropRow:
		p.log.Record(SeverityDroppedRow, validateStepName, row.Num(), err.Error())
		p.dropped[row.Num()] = true
		return false, true
	default: // PolicyFail
		p.log.Record(SeverityError, validateStepName, row.Num(), err.Error())
		return false, false
	}
}

// foldHeaders maps lenient header spellings and declared alternate names
// onto the declared column names, in every row.
func (p *Phase) foldHeaders(batch data.Batch) {
	if len(p.columns) == 0 {
		return
	}
	strict := make(map[string]string)
	alt := make(map[string]string)
	for _, col := range p.columns {
		strict[strictName(col.name)] = col.name
		for _, a := range col.altNames {
			alt[a] = col.name
		}
	}
	canonical := func(key string) string {
		if target, ok := strict[strictName(key)]; ok {
			key = target
		}
		if target, ok := alt[key]; ok {
			key = target
		}
		return key
	}
	for _, row := range batch {
		for _, key := range row.Keys() {
			if folded := canonical(key); folded != key {
				row.RenameField(key, folded)
			}
		}
	}
}

// warnUndeclaredFields records one WARNING per field that appears in the
// data but is declared by no column. A consistency check, not a failure.
func (p *Phase) warnUndeclaredFields(batch data.Batch) {
	if len(p.columns) == 0 {
		return
	}
	declared := make(map[string]bool, len(p.columns))
	for _, col := range p.columns {
		declared[col.name] = true
		declared[col.OutputName()] = true
	}
	warned := make(map[string]bool)
	for _, row := range batch {
		for _, key := range row.Keys() {
			if !declared[key] && !warned[key] {
				warned[key] = true
				p.log.Record(SeverityWarning, "consistency_check", row.Num(),
					fmt.Sprintf("new field %q is present in the data but not declared", key))
			}
		}
	}
}

// project drops the fields of save=false columns from every row. Rename
// targets have already replaced declared names by this point.
func (p *Phase) project(batch data.Batch) {
	var drop []string
	for _, col := range p.columns {
		if !col.save {
			drop = append(drop, col.OutputName())
		}
	}
	if len(drop) == 0 {
		return
	}
	for _, row := range batch {
		for _, name := range drop {
			row.Delete(name)
		}
	}
}
