package store

import (
	"context"
	"database/sql"
	"fmt"
)

// RunRecord is one pipeline run as stored in the ledger.
type RunRecord struct {
	Token      string
	Pipeline   string
	Source     string
	Status     string
	StartedAt  string
	FinishedAt string
}

// CheckpointRecord is one recorded phase snapshot.
type CheckpointRecord struct {
	Seq         int
	Phase       string
	RowCount    int
	Fingerprint string
	Path        string
}

// Runs returns runs, most recent first. An empty pipeline matches every
// pipeline; a limit of 0 means no limit.
func (l *Ledger) Runs(ctx context.Context, pipeline string, limit int) ([]RunRecord, error) {
	query := `SELECT token, pipeline, source, status, started_at, COALESCE(finished_at, '')
	          FROM runs`
	var args []any
	if pipeline != "" {
		query += " WHERE pipeline = ?"
		args = append(args, pipeline)
	}
	query += " ORDER BY started_at DESC, token DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.Token, &r.Pipeline, &r.Source, &r.Status, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run returns one run by token.
func (l *Ledger) Run(ctx context.Context, token string) (RunRecord, error) {
	var r RunRecord
	err := l.db.QueryRowContext(ctx,
		`SELECT token, pipeline, source, status, started_at, COALESCE(finished_at, '')
		 FROM runs WHERE token = ?`, token).
		Scan(&r.Token, &r.Pipeline, &r.Source, &r.Status, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("run %s not found", token)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run %s: %w", token, err)
	}
	return r, nil
}

// Checkpoints returns a run's recorded snapshots in phase order.
func (l *Ledger) Checkpoints(ctx context.Context, token string) ([]CheckpointRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, phase, row_count, fingerprint, path
		 FROM checkpoints WHERE run_token = ? ORDER BY seq ASC`, token)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for %s: %w", token, err)
	}
	defer rows.Close()

	var out []CheckpointRecord
	for rows.Next() {
		var c CheckpointRecord
		if err := rows.Scan(&c.Seq, &c.Phase, &c.RowCount, &c.Fingerprint, &c.Path); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Events returns a run's error-log entries in insertion order.
func (l *Ledger) Events(ctx context.Context, token string) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT phase, step, row_num, severity, message
		 FROM events WHERE run_token = ? ORDER BY id ASC`, token)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", token, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Phase, &e.Step, &e.RowNum, &e.Severity, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
