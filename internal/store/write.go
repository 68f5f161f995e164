package store

import (
	"context"
	"fmt"
	"time"
)

// Run statuses recorded in the ledger.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Event is one error-log entry in ledger form.
type Event struct {
	Phase    string
	Step     string
	RowNum   int
	Severity string
	Message  string
}

// BeginRun inserts a run in the running state.
func (l *Ledger) BeginRun(ctx context.Context, token, pipeline, source string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (token, pipeline, source, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		token, pipeline, source, StatusRunning, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("begin run %s: %w", token, err)
	}
	return nil
}

// FinishRun marks a run complete or failed.
func (l *Ledger) FinishRun(ctx context.Context, token, status string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE token = ?`,
		status, time.Now().UTC().Format(time.RFC3339), token)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", token, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run %s: %w", token, err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: run not found", token)
	}
	return nil
}

// RecordCheckpoint records one phase's output snapshot: row count, content
// fingerprint, and the path of the persisted file (empty for in-memory
// runs).
func (l *Ledger) RecordCheckpoint(ctx context.Context, token string, seq int, phase string, rows int, fingerprint uint64, path string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_token, seq, phase, row_count, fingerprint, path) VALUES (?, ?, ?, ?, ?, ?)`,
		token, seq, phase, rows, fmt.Sprintf("%016x", fingerprint), path)
	if err != nil {
		return fmt.Errorf("record checkpoint %s/%s: %w", token, phase, err)
	}
	return nil
}

// RecordEvents appends a phase's error-log entries in order, in one
// transaction.
func (l *Ledger) RecordEvents(ctx context.Context, token string, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record events for %s: %w", token, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_token, phase, step, row_num, severity, message) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("record events for %s: %w", token, err)
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, token, e.Phase, e.Step, e.RowNum, e.Severity, e.Message); err != nil {
			return fmt.Errorf("record event for %s in %s: %w", token, e.Phase, err)
		}
	}
	return tx.Commit()
}
