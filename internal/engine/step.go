package engine

import (
	"github.com/roach88/refinery/internal/data"
)

// StepKind is the closed set of step capability shapes. The executor
// implements one strategy per kind; there is no dynamic dispatch on
// function shape.
type StepKind string

const (
	// StepRow consumes one row and returns one row, raises a drop signal,
	// or returns nil to drop the row silently by convention. Applied to
	// every row in batch order; an error for row N never affects row N+1.
	StepRow StepKind = "row"

	// StepBatch consumes the whole batch and returns a batch. Size
	// invariance is enforced unless the step opts out.
	StepBatch StepKind = "batch"

	// StepTable consumes the batch materialized as a columnar table, for
	// vectorized and aggregate transforms. Same size default as StepBatch.
	StepTable StepKind = "table"

	// StepContext consumes only the context; bookkeeping, not row
	// transformation. Does not touch the batch.
	StepContext StepKind = "context"
)

// RowFunc is the function shape for row steps.
type RowFunc func(ctx *Context, row *data.Row) (*data.Row, error)

// BatchFunc is the function shape for batch steps.
type BatchFunc func(ctx *Context, batch data.Batch) (data.Batch, error)

// TableFunc is the function shape for table steps.
type TableFunc func(ctx *Context, tbl *data.Table) (*data.Table, error)

// ContextFunc is the function shape for context steps.
type ContextFunc func(ctx *Context) error

// Step is the descriptor for one declared step: its kind tag, function,
// declared extra sources and outputs, and the size-invariance flag. Steps
// execute strictly in the order declared on the phase.
type Step struct {
	kind         StepKind
	name         string
	rowFn        RowFunc
	batchFn      BatchFunc
	tableFn      TableFunc
	ctxFn        ContextFunc
	extraSources []string
	extraOutputs []string
	checkSize    bool
}

// StepOption configures a step declaration.
type StepOption func(*Step)

// ExtraSources declares the named side-channels the step reads. Names are
// resolved against the phase's declarations before any row is processed.
func ExtraSources(names ...string) StepOption {
	return func(s *Step) { s.extraSources = append(s.extraSources, names...) }
}

// ExtraOutputs declares the named side-channels the step writes.
func ExtraOutputs(names ...string) StepOption {
	return func(s *Step) { s.extraOutputs = append(s.extraOutputs, names...) }
}

// NoSizeCheck opts a batch or table step out of the size-invariance
// contract, for steps that legitimately filter or expand the batch.
func NoSizeCheck() StepOption {
	return func(s *Step) { s.checkSize = false }
}

// RowStep declares a step applied to every row in batch order.
func RowStep(name string, fn RowFunc, opts ...StepOption) *Step {
	return newStep(StepRow, name, &Step{rowFn: fn}, opts)
}

// BatchStep declares a step consuming and returning the whole batch.
func BatchStep(name string, fn BatchFunc, opts ...StepOption) *Step {
	return newStep(StepBatch, name, &Step{batchFn: fn}, opts)
}

// TableStep declares a step operating on the columnar materialization.
func TableStep(name string, fn TableFunc, opts ...StepOption) *Step {
	return newStep(StepTable, name, &Step{tableFn: fn}, opts)
}

// ContextStep declares a bookkeeping step that only sees the context.
func ContextStep(name string, fn ContextFunc, opts ...StepOption) *Step {
	return newStep(StepContext, name, &Step{ctxFn: fn}, opts)
}

func newStep(kind StepKind, name string, s *Step, opts []StepOption) *Step {
	s.kind = kind
	s.name = name
	s.checkSize = true
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Kind returns the step's capability shape.
func (s *Step) Kind() StepKind { return s.kind }

// Name returns the declared step name, used for log attribution.
func (s *Step) Name() string { return s.name }

// Validate checks the descriptor at configuration time.
func (s *Step) Validate() error {
	if s.name == "" {
		return Configf("step name may not be empty")
	}
	switch s.kind {
	case StepRow:
		if s.rowFn == nil {
			return Configf("row step %q has no function", s.name)
		}
	case StepBatch:
		if s.batchFn == nil {
			return Configf("batch step %q has no function", s.name)
		}
	case StepTable:
		if s.tableFn == nil {
			return Configf("table step %q has no function", s.name)
		}
	case StepContext:
		if s.ctxFn == nil {
			return Configf("context step %q has no function", s.name)
		}
	default:
		return Configf("step %q has unknown kind %q", s.name, s.kind)
	}
	return nil
}
