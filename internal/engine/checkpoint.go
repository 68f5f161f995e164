package engine

import (
	"github.com/roach88/refinery/internal/data"
)

// Checkpoint is the immutable snapshot of a phase's output: the projected
// batch and the phase's error log. Created at phase completion, never
// mutated, referenced by the pipeline for the next phase's input and by
// the diff engine.
type Checkpoint struct {
	phase       string
	batch       data.Batch
	columns     []string
	log         *Log
	fingerprint uint64
}

func newCheckpoint(phase string, batch data.Batch, log *Log) *Checkpoint {
	return &Checkpoint{
		phase:       phase,
		batch:       batch,
		columns:     batch.Headers(),
		log:         log,
		fingerprint: batch.Fingerprint(),
	}
}

// Phase returns the emitting phase's name.
func (c *Checkpoint) Phase() string { return c.phase }

// Batch returns a deep copy of the snapshot batch, preserving immutability
// of the checkpoint itself.
func (c *Checkpoint) Batch() data.Batch {
	return c.batch.Clone()
}

// Rows returns the number of rows in the snapshot.
func (c *Checkpoint) Rows() int { return len(c.batch) }

// Columns returns the projected column names in first-seen order.
func (c *Checkpoint) Columns() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

// Log returns the phase's error log.
func (c *Checkpoint) Log() *Log { return c.log }

// Fingerprint returns the content hash of the snapshot batch, recorded in
// the run ledger for change detection between runs.
func (c *Checkpoint) Fingerprint() uint64 { return c.fingerprint }
