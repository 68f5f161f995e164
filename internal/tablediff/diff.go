// Package tablediff computes structured differences between two batches,
// typically the checkpoints of adjacent phases or of a whole pipeline run.
// Rows are matched by their pipeline-entry number, so a dropped row never
// shifts later rows into looking added; a key column can override that
// when comparing data that was renumbered or externally sourced.
package tablediff

import (
	"fmt"
	"sort"

	"github.com/roach88/refinery/internal/data"
)

// ChangeKind classifies one row of the comparison.
type ChangeKind string

const (
	KindAdded     ChangeKind = "added"
	KindRemoved   ChangeKind = "removed"
	KindChanged   ChangeKind = "changed"
	KindUnchanged ChangeKind = "unchanged"
)

// Summary holds the row counts per change kind.
type Summary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// Rename records a column whose key changed between the two batches while
// remaining the same logical column.
type Rename struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Columns reports structural column changes. A renamed column appears
// here and never as per-cell adds and removes.
type Columns struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Renamed []Rename `json:"renamed,omitempty"`
}

// CellDiff is one column's value pair within a changed row. Old and New
// are nil when the row lacks the column on that side.
type CellDiff struct {
	Column  string
	Old     data.Value
	New     data.Value
	Changed bool
}

// RowDiff is the comparison of one matched row identity.
type RowDiff struct {
	Num   int
	Key   string
	Kind  ChangeKind
	Cells []CellDiff
}

// Diff is the full structured comparison, ready for a formatter.
type Diff struct {
	Summary Summary
	Columns Columns
	Fields  []string
	Rows    []RowDiff
}

type config struct {
	keyColumn string
	renames   map[string]string
}

// Option adjusts how two batches are compared.
type Option func(*config)

// WithKeyColumn matches rows by the rendered value of the named column
// instead of by row number. Both batches must carry the column in every
// row and its values must be unique within each batch.
func WithKeyColumn(name string) Option {
	return func(c *config) { c.keyColumn = name }
}

// WithRename declares that the left batch's old column is the right
// batch's new column. Values are compared across the rename and the pair
// is reported as a structural rename.
func WithRename(old, new string) Option {
	return func(c *config) {
		if c.renames == nil {
			c.renames = make(map[string]string)
		}
		c.renames[old] = new
	}
}

// Compare diffs two batches row by row and cell by cell.
func Compare(left, right data.Batch, opts ...Option) (*Diff, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	leftRows, leftOrder, err := index(left, cfg.keyColumn)
	if err != nil {
		return nil, fmt.Errorf("left batch: %w", err)
	}
	rightRows, rightOrder, err := index(right, cfg.keyColumn)
	if err != nil {
		return nil, fmt.Errorf("right batch: %w", err)
	}

	d := &Diff{}
	d.Fields, d.Columns = mergeColumns(left.Headers(), right.Headers(), cfg.renames)

	for _, id := range mergeOrder(leftOrder, rightOrder) {
		l, inLeft := leftRows[id.key]
		r, inRight := rightRows[id.key]
		rd := RowDiff{Num: id.num, Key: id.display}
		switch {
		case inLeft && inRight && len(cfg.renames) == 0 && l.Fingerprint() == r.Fingerprint():
			// Identical content hashes to the same fingerprint; skip the
			// per-cell comparison.
			rd.Kind = KindUnchanged
			rd.Cells = sameCells(d.Fields, l)
		case inLeft && inRight:
			rd.Cells, rd.Kind = diffCells(d.Fields, cfg.renames, l, r)
		case inLeft:
			rd.Kind = KindRemoved
			rd.Cells = oneSided(d.Fields, cfg.renames, l, true)
		default:
			rd.Kind = KindAdded
			rd.Cells = oneSided(d.Fields, cfg.renames, r, false)
		}
		switch rd.Kind {
		case KindAdded:
			d.Summary.Added++
		case KindRemoved:
			d.Summary.Removed++
		case KindChanged:
			d.Summary.Changed++
		default:
			d.Summary.Unchanged++
		}
		d.Rows = append(d.Rows, rd)
	}
	return d, nil
}

// identity is one matched row slot: key for map lookup, num and display
// for ordering and rendering.
type identity struct {
	key     string
	num     int
	display string
}

// index maps each row to its identity. With no key column the identity
// is the row number; duplicates on either basis are an error because the
// match would be ambiguous.
func index(batch data.Batch, keyColumn string) (map[string]*data.Row, []identity, error) {
	rows := make(map[string]*data.Row, len(batch))
	order := make([]identity, 0, len(batch))
	for _, row := range batch {
		var id identity
		if keyColumn == "" {
			id = identity{key: fmt.Sprintf("#%d", row.Num()), num: row.Num()}
		} else {
			v, ok := row.Get(keyColumn)
			if !ok {
				return nil, nil, fmt.Errorf("row %d has no key column %q", row.Num(), keyColumn)
			}
			id = identity{key: data.Render(v), num: row.Num(), display: data.Render(v)}
		}
		if _, dup := rows[id.key]; dup {
			return nil, nil, fmt.Errorf("duplicate row identity %q", id.key)
		}
		rows[id.key] = row
		order = append(order, id)
	}
	return rows, order, nil
}

// mergeOrder interleaves both sides' identities, each once. Matching by
// number sorts on the row number; matching by key keeps the batches' own
// order, left first, then identities only the right side has.
func mergeOrder(left, right []identity) []identity {
	seen := make(map[string]bool, len(left)+len(right))
	merged := make([]identity, 0, len(left)+len(right))
	byKey := false
	for _, id := range append(append([]identity{}, left...), right...) {
		if id.display != "" {
			byKey = true
		}
		if seen[id.key] {
			continue
		}
		seen[id.key] = true
		merged = append(merged, id)
	}
	if !byKey {
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].num < merged[j].num
		})
	}
	return merged
}

// mergeColumns computes the unified field list (the right side's name
// wins for renamed columns) and the structural column changes.
func mergeColumns(left, right []string, renames map[string]string) ([]string, Columns) {
	var cols Columns
	renamedNew := make(map[string]string, len(renames))
	for old, new := range renames {
		renamedNew[new] = old
	}

	rightSet := make(map[string]bool, len(right))
	for _, name := range right {
		rightSet[name] = true
	}
	leftSet := make(map[string]bool, len(left))
	for _, name := range left {
		leftSet[name] = true
	}

	fields := make([]string, 0, len(left)+len(right))
	for _, name := range left {
		if new, ok := renames[name]; ok && rightSet[new] {
			cols.Renamed = append(cols.Renamed, Rename{Old: name, New: new})
			fields = append(fields, new)
			continue
		}
		fields = append(fields, name)
		if !rightSet[name] {
			cols.Removed = append(cols.Removed, name)
		}
	}
	for _, name := range right {
		if _, ok := renamedNew[name]; ok && leftSet[renamedNew[name]] {
			continue
		}
		if !leftSet[name] {
			fields = append(fields, name)
			cols.Added = append(cols.Added, name)
		}
	}
	return fields, cols
}

// leftName resolves which key to read from the left row for a unified
// field name, accounting for renames.
func leftName(field string, renames map[string]string) string {
	for old, new := range renames {
		if new == field {
			return old
		}
	}
	return field
}

func diffCells(fields []string, renames map[string]string, l, r *data.Row) ([]CellDiff, ChangeKind) {
	cells := make([]CellDiff, 0, len(fields))
	kind := KindUnchanged
	for _, field := range fields {
		oldV, _ := l.Get(leftName(field, renames))
		newV, _ := r.Get(field)
		cd := CellDiff{Column: field, Old: oldV, New: newV}
		switch {
		case oldV == nil && newV == nil:
		case oldV == nil || newV == nil:
			cd.Changed = true
		default:
			cd.Changed = !data.Equal(oldV, newV)
		}
		if cd.Changed {
			kind = KindChanged
		}
		cells = append(cells, cd)
	}
	return cells, kind
}

func sameCells(fields []string, row *data.Row) []CellDiff {
	cells := make([]CellDiff, 0, len(fields))
	for _, field := range fields {
		v, _ := row.Get(field)
		cells = append(cells, CellDiff{Column: field, Old: v, New: v})
	}
	return cells
}

func oneSided(fields []string, renames map[string]string, row *data.Row, isLeft bool) []CellDiff {
	cells := make([]CellDiff, 0, len(fields))
	for _, field := range fields {
		name := field
		if isLeft {
			name = leftName(field, renames)
		}
		cd := CellDiff{Column: field}
		if v, ok := row.Get(name); ok {
			if isLeft {
				cd.Old = v
			} else {
				cd.New = v
			}
		}
		cells = append(cells, cd)
	}
	return cells
}
