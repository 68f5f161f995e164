package engine

import (
	"fmt"

	"github.com/roach88/refinery/internal/data"
)

// Context is created by the pipeline and shared by every phase and step in
// declared order. It carries named variables across phases and, while a
// step runs, the step's scoped view of the declared extras.
//
// Steps read the context freely; they mutate variables only through a
// context step or the explicit Set call. There is no locking because
// execution is strictly sequential.
type Context struct {
	variables map[string]data.Value
	extras    *ExtraView
	record    func(severity Severity, rowNum int, message string)
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{
		variables: make(map[string]data.Value),
	}
}

// Set stores a variable that is global to the pipeline and visible to every
// later step and phase.
func (c *Context) Set(name string, v data.Value) {
	c.variables[name] = v
}

// Get returns a variable and whether it is set.
func (c *Context) Get(name string) (data.Value, bool) {
	v, ok := c.variables[name]
	return v, ok
}

// Extras returns the running step's declared extras view. Outside a step
// invocation the view is empty and every lookup errors.
func (c *Context) Extras() *ExtraView {
	return c.extras
}

// Warn records a WARNING against the running step and the given row
// without affecting the row's disposition. Use BatchRow for entries that
// describe the batch rather than one row.
func (c *Context) Warn(rowNum int, format string, args ...any) {
	if c.record != nil {
		c.record(SeverityWarning, rowNum, fmt.Sprintf(format, args...))
	}
}

// NoteDropped records a DROPPED_ROW entry, for batch and table steps that
// remove rows themselves instead of signaling per row.
func (c *Context) NoteDropped(rowNum int, format string, args ...any) {
	if c.record != nil {
		c.record(SeverityDroppedRow, rowNum, fmt.Sprintf(format, args...))
	}
}

// scopeExtras installs the view for one step invocation; the executor
// clears it afterwards.
func (c *Context) scopeExtras(v *ExtraView) {
	c.extras = v
}

// scopeLog installs the running step's log recorder, cleared with the
// extras view when the step returns.
func (c *Context) scopeLog(fn func(severity Severity, rowNum int, message string)) {
	c.record = fn
}
