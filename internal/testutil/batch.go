package testutil

import (
	"testing"

	"github.com/roach88/refinery/internal/data"
)

// MustBatch builds a renumbered batch from ordered columns and row maps,
// failing the test on unconvertible values.
func MustBatch(t *testing.T, columns []string, rows ...map[string]any) data.Batch {
	t.Helper()
	batch, err := data.BatchFromMaps(1, columns, rows)
	if err != nil {
		t.Fatalf("build batch: %v", err)
	}
	return batch
}

// RenderBatch flattens a batch into rendered string maps for assertions.
func RenderBatch(batch data.Batch) []map[string]string {
	out := make([]map[string]string, 0, len(batch))
	for _, row := range batch {
		m := make(map[string]string, row.Len())
		for _, key := range row.Keys() {
			v, _ := row.Get(key)
			m[key] = data.Render(v)
		}
		out = append(out, m)
	}
	return out
}

// RowNums extracts the pipeline-entry numbers of a batch in order.
func RowNums(batch data.Batch) []int {
	nums := make([]int, len(batch))
	for i, row := range batch {
		nums[i] = row.Num()
	}
	return nums
}
