// Package engine implements the refinery phase-execution engine.
//
// The engine is the heart of refinery - developers declare typed columns
// and ordered steps, group them into phases, and chain phases into a
// pipeline that validates and transforms record-oriented batches with
// structured error reporting.
//
// # Execution Model
//
// Single-Pass Sequential Evaluation:
// A pipeline processes phases strictly in declaration order, and a phase
// processes its steps strictly in declaration order. There is no
// concurrency inside a run. This ensures:
//   - Predictable column and step application order
//   - Stable row attribution in the error log
//   - Reproducible checkpoints for the same input
//
// Phase Processing Flow:
//  1. checkConfig validates columns, steps, and extra declarations
//     before any row is touched (ConfigError, never a data error)
//  2. Headers are canonicalized and required columns checked
//  3. Every column is applied to every row in the fixed order:
//     locate, cast, fix, null/default, blank, range, allowed, rename
//  4. Declared steps run in order; dropped rows are invisible to
//     later steps but their log entries persist
//  5. The surviving batch is snapshotted as an immutable checkpoint
//
// Row Disposition:
// Failures for one row never affect the processing of the next. A
// column failure resolves through the column's on-error policy (warn,
// drop_row, fail); a row step signals disposition through DropRow and
// WarnRow error values, or drops silently by returning a nil row.
//
// # Row Identity
//
// Row numbers are assigned once, at pipeline entry, and persist through
// every phase. A row dropped in phase two keeps its original number in
// the log, and checkpoints carry the numbers so output can be diffed
// against input row by row.
//
// # Extras
//
// Side-channel data (ExtraMapping, ExtraRecords) flows between phases
// only by explicit declaration: a phase lists the names it reads in
// extra_sources and the names it writes in extra_outputs, and steps see
// only the names they declared. Undeclared access is a ConfigError.
package engine
