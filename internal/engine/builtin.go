package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/refinery/internal/data"
)

// Step factories for the transformations that almost every pipeline wants.
// Each returns a fully declared Step ready to list in a phase.

type uniqueConfig struct {
	strip      bool
	ignoreCase bool
}

// UniqueOption adjusts how CheckUnique normalizes values before comparing.
type UniqueOption func(*uniqueConfig)

// UniqueIgnoreCase lower-cases string values for the comparison only.
func UniqueIgnoreCase() UniqueOption {
	return func(c *uniqueConfig) { c.ignoreCase = true }
}

// UniqueKeepSpaces disables the default space-stripping before comparison.
func UniqueKeepSpaces() UniqueOption {
	return func(c *uniqueConfig) { c.strip = false }
}

// CheckUnique returns a batch step that fails the phase when any two rows
// share a value in the named column. Normalization for the comparison does
// not change the stored values.
func CheckUnique(column string, opts ...UniqueOption) *Step {
	cfg := uniqueConfig{strip: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return BatchStep("check_unique", func(ctx *Context, batch data.Batch) (data.Batch, error) {
		seen := make(map[string]int, len(batch))
		for _, row := range batch {
			v, ok := row.Get(column)
			if !ok {
				return nil, fmt.Errorf("check_unique: some or all rows did not have %q present", column)
			}
			key := data.Render(v)
			if cfg.strip {
				key = strings.TrimSpace(key)
			}
			if cfg.ignoreCase {
				key = strings.ToLower(key)
			}
			if first, dup := seen[key]; dup {
				return nil, fmt.Errorf("some values in %q were duplicated, so unique check failed (rows %d and %d)", column, first, row.Num())
			}
			seen[key] = row.Num()
		}
		return batch, nil
	})
}

// SortBy returns a batch step that stably orders rows by the named
// column's values. Mixed value kinds in the column fail the phase.
func SortBy(column string) *Step {
	return BatchStep("sort_by", func(ctx *Context, batch data.Batch) (data.Batch, error) {
		out := make(data.Batch, len(batch))
		copy(out, batch)
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := out[i].Get(column)
			b, _ := out[j].Get(column)
			c, err := data.Compare(a, b)
			if err != nil && sortErr == nil {
				sortErr = fmt.Errorf("sort_by %q: %w", column, err)
			}
			return c < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return out, nil
	})
}

// FilterRows returns a batch step that keeps only rows for which keep
// returns true, logging one summary DROPPED_ROW entry instead of one per
// removed row. The name identifies the predicate in the log message.
func FilterRows(name string, keep func(row *data.Row) bool) *Step {
	return BatchStep("filter_rows", func(ctx *Context, batch data.Batch) (data.Batch, error) {
		out := make(data.Batch, 0, len(batch))
		for _, row := range batch {
			if keep(row) {
				out = append(out, row)
			}
		}
		if n := len(batch) - len(out); n > 0 {
			ctx.NoteDropped(BatchRow, "%d rows dropped in filter_rows with '%s'", n, name)
		}
		return out, nil
	}, NoSizeCheck())
}
