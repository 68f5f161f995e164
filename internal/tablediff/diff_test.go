package tablediff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refinery/internal/data"
)

func people(nums ...int) data.Batch {
	names := map[int]string{1: "bob", 2: "sue", 3: "ann", 4: "ida"}
	batch := make(data.Batch, 0, len(nums))
	for _, n := range nums {
		batch = append(batch, data.RowFromPairs(n,
			"id", data.Int(int64(n)),
			"name", data.String(names[n]),
		))
	}
	return batch
}

func TestCompare_IdenticalBatchesAreAllUnchanged(t *testing.T) {
	left := people(1, 2, 3)
	d, err := Compare(left, left.Clone())
	require.NoError(t, err)

	assert.Equal(t, Summary{Unchanged: 3}, d.Summary)
	assert.Empty(t, d.Columns.Added)
	assert.Empty(t, d.Columns.Removed)
	require.Len(t, d.Rows, 3)
	for _, row := range d.Rows {
		assert.Equal(t, KindUnchanged, row.Kind)
	}
}

func TestCompare_DroppedMiddleRowDoesNotShiftLaterRows(t *testing.T) {
	d, err := Compare(people(1, 2, 3, 4), people(1, 3, 4))
	require.NoError(t, err)

	assert.Equal(t, Summary{Removed: 1, Unchanged: 3}, d.Summary,
		"rows after the gap match by number, not position")
	require.Len(t, d.Rows, 4)
	assert.Equal(t, KindUnchanged, d.Rows[0].Kind)
	assert.Equal(t, KindRemoved, d.Rows[1].Kind)
	assert.Equal(t, 2, d.Rows[1].Num)
	assert.Equal(t, KindUnchanged, d.Rows[2].Kind)
	assert.Equal(t, KindUnchanged, d.Rows[3].Kind)
}

func TestCompare_ChangedCell(t *testing.T) {
	right := people(1, 2)
	right[1].Set("name", data.String("susan"))
	d, err := Compare(people(1, 2), right)
	require.NoError(t, err)

	assert.Equal(t, Summary{Changed: 1, Unchanged: 1}, d.Summary)
	changed := d.Rows[1]
	require.Equal(t, KindChanged, changed.Kind)

	var cell CellDiff
	for _, c := range changed.Cells {
		if c.Column == "name" {
			cell = c
		}
	}
	assert.True(t, cell.Changed)
	assert.Equal(t, data.String("sue"), cell.Old)
	assert.Equal(t, data.String("susan"), cell.New)

	for _, c := range changed.Cells {
		if c.Column == "id" {
			assert.False(t, c.Changed, "untouched cells are marked unchanged within a changed row")
		}
	}
}

func TestCompare_AddedRow(t *testing.T) {
	d, err := Compare(people(1), people(1, 2))
	require.NoError(t, err)
	assert.Equal(t, Summary{Added: 1, Unchanged: 1}, d.Summary)
	added := d.Rows[1]
	assert.Equal(t, KindAdded, added.Kind)
	for _, c := range added.Cells {
		assert.Nil(t, c.Old, "added rows have no left side")
	}
}

func TestCompare_ColumnAddedAndRemoved(t *testing.T) {
	left := data.Batch{data.RowFromPairs(1, "id", data.Int(1), "old_col", data.String("x"))}
	right := data.Batch{data.RowFromPairs(1, "id", data.Int(1), "new_col", data.String("y"))}
	d, err := Compare(left, right)
	require.NoError(t, err)

	assert.Equal(t, []string{"new_col"}, d.Columns.Added)
	assert.Equal(t, []string{"old_col"}, d.Columns.Removed)
	assert.Equal(t, []string{"id", "old_col", "new_col"}, d.Fields)
	assert.Equal(t, Summary{Changed: 1}, d.Summary,
		"a row losing one column and gaining another is a change")
}

func TestCompare_RenameComparesValuesAcrossNames(t *testing.T) {
	left := data.Batch{data.RowFromPairs(1, "name", data.String("bob"))}
	right := data.Batch{data.RowFromPairs(1, "Full name", data.String("bob"))}

	d, err := Compare(left, right, WithRename("name", "Full name"))
	require.NoError(t, err)

	assert.Equal(t, []Rename{{Old: "name", New: "Full name"}}, d.Columns.Renamed)
	assert.Empty(t, d.Columns.Added)
	assert.Empty(t, d.Columns.Removed)
	assert.Equal(t, []string{"Full name"}, d.Fields, "the new name labels the unified column")
	assert.Equal(t, Summary{Unchanged: 1}, d.Summary)
}

func TestCompare_RenameWithValueChange(t *testing.T) {
	left := data.Batch{data.RowFromPairs(1, "name", data.String("bob"))}
	right := data.Batch{data.RowFromPairs(1, "Full name", data.String("robert"))}

	d, err := Compare(left, right, WithRename("name", "Full name"))
	require.NoError(t, err)
	assert.Equal(t, Summary{Changed: 1}, d.Summary)
	cell := d.Rows[0].Cells[0]
	assert.Equal(t, data.String("bob"), cell.Old)
	assert.Equal(t, data.String("robert"), cell.New)
}

func TestCompare_KeyColumnMatchesRenumberedRows(t *testing.T) {
	left := data.Batch{
		data.RowFromPairs(1, "id", data.String("e-1"), "name", data.String("bob")),
		data.RowFromPairs(2, "id", data.String("e-2"), "name", data.String("sue")),
	}
	// Same people, renumbered and reordered.
	right := data.Batch{
		data.RowFromPairs(1, "id", data.String("e-2"), "name", data.String("sue")),
		data.RowFromPairs(2, "id", data.String("e-1"), "name", data.String("bob")),
	}

	d, err := Compare(left, right, WithKeyColumn("id"))
	require.NoError(t, err)
	assert.Equal(t, Summary{Unchanged: 2}, d.Summary)
	assert.Equal(t, "e-1", d.Rows[0].Key)
	assert.Equal(t, "e-2", d.Rows[1].Key)
}

func TestCompare_KeyColumnKeepsBatchOrderForNumericKeys(t *testing.T) {
	left := data.Batch{
		data.RowFromPairs(1, "id", data.String("2"), "name", data.String("bob")),
		data.RowFromPairs(2, "id", data.String("10"), "name", data.String("sue")),
	}
	right := left.Clone()
	right = append(right, data.RowFromPairs(3, "id", data.String("7"), "name", data.String("ana")))

	d, err := Compare(left, right, WithKeyColumn("id"))
	require.NoError(t, err)
	require.Len(t, d.Rows, 3)
	assert.Equal(t, "2", d.Rows[0].Key, "rows keep the batch order, not a lexicographic key sort")
	assert.Equal(t, "10", d.Rows[1].Key)
	assert.Equal(t, "7", d.Rows[2].Key, "right-only identities follow in their own order")
	assert.Equal(t, KindAdded, d.Rows[2].Kind)
}

func TestCompare_DuplicateKeyIsAnError(t *testing.T) {
	dup := data.Batch{
		data.RowFromPairs(1, "id", data.String("same")),
		data.RowFromPairs(2, "id", data.String("same")),
	}
	_, err := Compare(dup, data.Batch{}, WithKeyColumn("id"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate row identity "same"`)
}

func TestCompare_MissingKeyColumnIsAnError(t *testing.T) {
	batch := data.Batch{data.RowFromPairs(1, "name", data.String("bob"))}
	_, err := Compare(batch, batch.Clone(), WithKeyColumn("id"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no key column "id"`)
}

func TestText_RendersSummaryAndMarkedEdits(t *testing.T) {
	right := people(1, 2)
	right[1].Set("name", data.String("susan"))
	d, err := Compare(people(1, 2, 3), right)
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, Text(&b, d))
	out := b.String()

	assert.Contains(t, out, "added: 0  removed: 1  changed: 1  unchanged: 1")
	assert.Contains(t, out, "{+")
	assert.Contains(t, out, "-]")
	assert.NotContains(t, out, "row 1", "unchanged rows are omitted")
}

func TestHTML_EscapesAndMarksChanges(t *testing.T) {
	left := data.Batch{data.RowFromPairs(1, "note", data.String("a<b"))}
	right := data.Batch{data.RowFromPairs(1, "note", data.String("a<c"))}
	d, err := Compare(left, right)
	require.NoError(t, err)

	out := HTML(d)
	assert.Contains(t, out, "<table")
	assert.Contains(t, out, "a&lt;", "cell text is escaped")
	assert.NotContains(t, out, "a<b")
	assert.Contains(t, out, "Changed")
}

func TestHTML_UnchangedAndStructuralRows(t *testing.T) {
	d, err := Compare(people(1), people(1, 2))
	require.NoError(t, err)
	out := HTML(d)
	assert.Contains(t, out, "Same")
	assert.Contains(t, out, "Added")
}
