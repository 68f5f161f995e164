package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refinery/internal/data"
	"github.com/roach88/refinery/internal/testutil"
)

func idBatch(values ...string) data.Batch {
	batch := make(data.Batch, 0, len(values))
	for i, v := range values {
		batch = append(batch, data.RowFromPairs(i+1, "id", data.String(v)))
	}
	return batch
}

func TestCheckUnique_PassesOnDistinctValues(t *testing.T) {
	p := NewPhase("Validate", Steps(CheckUnique("id")))
	cp, err := runPhase(t, p, idBatch("a", "b", "c"))
	require.NoError(t, err)
	assert.Len(t, cp.Batch(), 3)
	assert.Equal(t, 0, cp.Log().Len())
}

func TestCheckUnique_DuplicateFailsWithBothRows(t *testing.T) {
	p := NewPhase("Validate", Steps(CheckUnique("id")))
	_, err := runPhase(t, p, idBatch("a", "b", "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `some values in "id" were duplicated, so unique check failed (rows 1 and 3)`)
}

func TestCheckUnique_StripsSpacesByDefault(t *testing.T) {
	p := NewPhase("Validate", Steps(CheckUnique("id")))
	_, err := runPhase(t, p, idBatch("a", " a "))
	require.Error(t, err, "values differing only in surrounding spaces collide")

	p = NewPhase("Validate", Steps(CheckUnique("id", UniqueKeepSpaces())))
	_, err = runPhase(t, p, idBatch("a", " a "))
	assert.NoError(t, err)
}

func TestCheckUnique_IgnoreCase(t *testing.T) {
	p := NewPhase("Validate", Steps(CheckUnique("id", UniqueIgnoreCase())))
	_, err := runPhase(t, p, idBatch("Alpha", "alpha"))
	require.Error(t, err)

	p = NewPhase("Validate", Steps(CheckUnique("id")))
	_, err = runPhase(t, p, idBatch("Alpha", "alpha"))
	assert.NoError(t, err, "comparison is case-sensitive unless opted in")
}

func TestCheckUnique_MissingColumnFailsPhase(t *testing.T) {
	p := NewPhase("Validate", Steps(CheckUnique("absent")))
	_, err := runPhase(t, p, idBatch("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `some or all rows did not have "absent" present`)
}

func TestSortBy_StableOrderByValue(t *testing.T) {
	batch := data.Batch{
		data.RowFromPairs(1, "rank", data.Int(3), "tag", data.String("first-three")),
		data.RowFromPairs(2, "rank", data.Int(1), "tag", data.String("one")),
		data.RowFromPairs(3, "rank", data.Int(3), "tag", data.String("second-three")),
		data.RowFromPairs(4, "rank", data.Int(2), "tag", data.String("two")),
	}
	p := NewPhase("Transform", Steps(SortBy("rank")))
	cp, err := runPhase(t, p, batch)
	require.NoError(t, err)

	out := cp.Batch()
	assert.Equal(t, []int{2, 4, 1, 3}, testutil.RowNums(out), "equal keys keep their input order")
}

func TestSortBy_MixedKindsFailPhase(t *testing.T) {
	batch := data.Batch{
		data.RowFromPairs(1, "rank", data.Int(1)),
		data.RowFromPairs(2, "rank", data.String("two")),
	}
	p := NewPhase("Transform", Steps(SortBy("rank")))
	_, err := runPhase(t, p, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sort_by "rank"`)
}

func TestFilterRows_LogsOneSummaryEntry(t *testing.T) {
	p := NewPhase("Transform", Steps(
		FilterRows("evens_only", func(row *data.Row) bool {
			v, _ := row.Get("n")
			return v.(data.Int)%2 == 0
		}),
	))
	cp, err := runPhase(t, p, numberedBatch(5))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, testutil.RowNums(cp.Batch()))

	entries := cp.Log().Entries()
	require.Len(t, entries, 1, "one summary entry, not one per dropped row")
	assert.Equal(t, SeverityDroppedRow, entries[0].Severity)
	assert.Equal(t, "filter_rows", entries[0].Step)
	assert.Equal(t, BatchRow, entries[0].RowNum)
	assert.Equal(t, "3 rows dropped in filter_rows with 'evens_only'", entries[0].Message)
}

func TestFilterRows_NothingDroppedLogsNothing(t *testing.T) {
	p := NewPhase("Transform", Steps(
		FilterRows("keep_all", func(row *data.Row) bool { return true }),
	))
	cp, err := runPhase(t, p, numberedBatch(3))
	require.NoError(t, err)
	assert.Len(t, cp.Batch(), 3)
	assert.Equal(t, 0, cp.Log().Len())
}
