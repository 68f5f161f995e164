package engine

import (
	"fmt"

	"github.com/roach88/refinery/internal/data"
)

// runStep dispatches one declared step to the strategy for its kind. The
// step's declared extras are scoped onto the context for the duration of
// the invocation and removed afterwards.
func (p *Phase) runStep(ctx *Context, reg *extraRegistry, step *Step, batch data.Batch) (data.Batch, error) {
	view, err := p.buildView(reg, step)
	if err != nil {
		return nil, &FatalError{Phase: p.name, Step: step.name, Err: err}
	}
	ctx.scopeExtras(view)
	ctx.scopeLog(func(severity Severity, rowNum int, message string) {
		p.log.Record(severity, step.name, rowNum, message)
	})
	defer func() {
		ctx.scopeExtras(nil)
		ctx.scopeLog(nil)
	}()

	switch step.kind {
	case StepRow:
		return p.runRowStep(ctx, step, batch)
	case StepBatch:
		return p.runBatchStep(ctx, step, batch)
	case StepTable:
		return p.runTableStep(ctx, step, batch)
	case StepContext:
		if err := step.ctxFn(ctx); err != nil {
			return nil, p.stepFailure(step, err)
		}
		return batch, nil
	default:
		return nil, &FatalError{Phase: p.name, Step: step.name, Err: Configf("unknown step kind %q", step.kind)}
	}
}

// buildView resolves the step's declared extra names against the registry.
// checkConfig already verified the declarations against the phase, so an
// unresolved name here is a phase-output that was never created.
func (p *Phase) buildView(reg *extraRegistry, step *Step) (*ExtraView, error) {
	view := &ExtraView{
		sources: make(map[string]Extra),
		outputs: make(map[string]Extra),
	}
	for _, name := range step.extraSources {
		e, ok := reg.get(name)
		if !ok {
			return nil, Configf("extra source %q is declared but was never produced", name)
		}
		view.sources[name] = e
	}
	for _, name := range step.extraOutputs {
		e, ok := reg.get(name)
		if !ok {
			return nil, Configf("extra output %q is declared but was never created", name)
		}
		view.outputs[name] = e
	}
	return view, nil
}

// runRowStep applies a row step to every surviving row in batch order.
// Errors for one row never affect the processing of the next: a drop
// signal removes exactly that row, a warning keeps the row unchanged, and
// anything unrecognized is fatal to the phase.
func (p *Phase) runRowStep(ctx *Context, step *Step, batch data.Batch) (data.Batch, error) {
	out := make(data.Batch, 0, len(batch))
	for _, row := range batch {
		if p.dropped[row.Num()] {
			continue
		}
		result, err := step.rowFn(ctx, row)
		if err != nil {
			if IsDropRow(err) {
				p.log.Record(SeverityDroppedRow, step.name, row.Num(), err.Error())
				p.dropped[row.Num()] = true
				continue
			}
			if IsWarnRow(err) {
				p.log.Record(SeverityWarning, step.name, row.Num(), err.Error())
				out = append(out, row)
				continue
			}
			return nil, p.stepFailure(step, err)
		}
		if result == nil {
			// nil result is the silent-drop convention: the row leaves the
			// batch with no log entry.
			p.dropped[row.Num()] = true
			continue
		}
		out = append(out, result)
	}
	return out, nil
}

// runBatchStep applies a batch step and enforces its contract: a non-nil
// batch back, and size invariance unless the step opted out.
func (p *Phase) runBatchStep(ctx *Context, step *Step, batch data.Batch) (data.Batch, error) {
	mark := p.log.Len()
	result, err := step.batchFn(ctx, batch)
	if err != nil {
		return nil, p.stepFailure(step, err)
	}
	if result == nil {
		return nil, p.contractFailure(step, "returned a nil batch")
	}
	if err := p.checkSize(step, len(batch), len(result), mark); err != nil {
		return nil, err
	}
	return result, nil
}

// runTableStep materializes the batch as a columnar table, applies the
// step, and rebuilds the batch with row identity preserved.
func (p *Phase) runTableStep(ctx *Context, step *Step, batch data.Batch) (data.Batch, error) {
	mark := p.log.Len()
	result, err := step.tableFn(ctx, data.TableFromBatch(batch))
	if err != nil {
		return nil, p.stepFailure(step, err)
	}
	if result == nil {
		return nil, p.contractFailure(step, "returned a nil table")
	}
	if err := p.checkSize(step, len(batch), result.Len(), mark); err != nil {
		return nil, err
	}
	return result.ToBatch(), nil
}

// checkSize enforces size invariance, or, for opted-out steps, records a
// summary warning for a silent size change. A step that logged its own
// DROPPED_ROW entries has already accounted for the shrink, so no extra
// warning is added on top. mark is the log length before the step ran.
func (p *Phase) checkSize(step *Step, inLen, outLen, mark int) error {
	if inLen == outLen {
		return nil
	}
	if step.checkSize {
		return p.contractFailure(step, fmt.Sprintf("returned %d rows for %d input rows without check_size=false", outLen, inLen))
	}
	diff := inLen - outLen
	if diff > 0 {
		if !p.log.droppedSince(mark) {
			p.log.Record(SeverityWarning, step.name, BatchRow, fmt.Sprintf("%d rows were dropped by step", diff))
		}
	} else {
		p.log.Record(SeverityWarning, step.name, BatchRow, fmt.Sprintf("%d rows were added by step", -diff))
	}
	return nil
}

// stepFailure resolves an unrecognized step error: drop and warn signals
// raised by batch or table steps still get their non-fatal handling;
// everything else fails the phase.
func (p *Phase) stepFailure(step *Step, err error) error {
	if IsDropRow(err) || IsWarnRow(err) {
		// Row signals raised outside a row step have no single row to
		// attach to; treat as a contract problem rather than guessing.
		return p.contractFailure(step, fmt.Sprintf("raised a row-scoped signal from a %s step: %v", step.kind, err))
	}
	p.log.Record(SeverityError, step.name, BatchRow, err.Error())
	return &FatalError{Phase: p.name, Step: step.name, Err: err}
}

func (p *Phase) contractFailure(step *Step, msg string) error {
	err := &ContractError{Step: step.name, Message: msg}
	p.log.Record(SeverityError, step.name, BatchRow, err.Error())
	return &FatalError{Phase: p.name, Step: step.name, Err: err}
}
