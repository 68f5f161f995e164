package engine

import (
	"fmt"
	"io"
)

// Severity classifies an error-log entry.
type Severity string

const (
	// SeverityWarning marks a recoverable issue; the row is retained.
	SeverityWarning Severity = "WARNING"

	// SeverityDroppedRow marks a row removed from the batch. The entry
	// persists even though the row no longer flows through later steps.
	SeverityDroppedRow Severity = "DROPPED_ROW"

	// SeverityError marks a fatal problem that aborted the phase.
	SeverityError Severity = "ERROR"
)

// BatchRow is the row attribution used for entries not tied to one row,
// such as batch-step warnings.
const BatchRow = 0

// Entry is one recorded event with full attribution.
type Entry struct {
	Phase    string   `json:"phase"`
	Step     string   `json:"step"`
	RowNum   int      `json:"row"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Log is the append-only per-phase collection of warnings, dropped-row
// notices, and errors. Not safe for concurrent use; phase execution is
// strictly sequential.
type Log struct {
	phase   string
	entries []Entry
}

// NewLog creates an empty log for a phase.
func NewLog(phase string) *Log {
	return &Log{phase: phase}
}

// Record appends an entry. Entries keep insertion order.
func (l *Log) Record(severity Severity, step string, rowNum int, message string) {
	l.entries = append(l.entries, Entry{
		Phase:    l.phase,
		Step:     step,
		RowNum:   rowNum,
		Severity: severity,
		Message:  message,
	})
}

// Entries returns the ordered entries. The slice is a copy.
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.entries)
}

// Count returns the number of entries with the given severity.
func (l *Log) Count(severity Severity) int {
	n := 0
	for _, e := range l.entries {
		if e.Severity == severity {
			n++
		}
	}
	return n
}

// droppedSince reports whether any entry appended at index from or later
// records a dropped row.
func (l *Log) droppedSince(from int) bool {
	for _, e := range l.entries[from:] {
		if e.Severity == SeverityDroppedRow {
			return true
		}
	}
	return false
}

// HasErrors reports whether any entry is fatal.
func (l *Log) HasErrors() bool {
	return l.Count(SeverityError) > 0
}

// Render writes the human-readable listing for this phase, one line per
// entry, in the report format consumed by errors_and_warnings.txt.
func (l *Log) Render(w io.Writer) error {
	for _, e := range l.entries {
		if _, err := fmt.Fprintf(w, "%s in step %s, row %d: message: '%s'\n",
			e.Severity, e.Step, e.RowNum, e.Message); err != nil {
			return err
		}
	}
	return nil
}
