package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refinery/internal/data"
)

func runPhase(t *testing.T, p *Phase, batch data.Batch) (*Checkpoint, error) {
	t.Helper()
	return p.Run(NewContext(), newExtraRegistry(), batch)
}

func payRateBatch(rate string) data.Batch {
	b := data.Batch{
		data.RowFromPairs(0, "Pay rate", data.String("1.5")),
		data.RowFromPairs(0, "Pay rate", data.String(rate)),
	}
	b.Renumber()
	return b
}

func TestPhase_PayRateBelowMinimum_WarnKeepsRawValue(t *testing.T) {
	p := NewPhase("Validate", Columns(
		FloatColumn("Pay rate", MinValue(0.01), OnError(PolicyWarn)),
	))
	cp, err := runPhase(t, p, payRateBatch("0"))
	require.NoError(t, err)

	out := cp.Batch()
	require.Len(t, out, 2)
	v, _ := out[1].Get("Pay rate")
	assert.Equal(t, data.String("0"), v, "warn policy retains the raw value")

	require.Equal(t, 1, cp.Log().Len())
	entry := cp.Log().Entries()[0]
	assert.Equal(t, SeverityWarning, entry.Severity)
	assert.Equal(t, "cast_and_validate", entry.Step)
	assert.Equal(t, 2, entry.RowNum)
}

func TestPhase_PayRateBelowMinimum_DropRowRemovesRow(t *testing.T) {
	p := NewPhase("Validate", Columns(
		FloatColumn("Pay rate", MinValue(0.01), OnError(PolicyDropRow)),
	))
	cp, err := runPhase(t, p, payRateBatch("0"))
	require.NoError(t, err)

	out := cp.Batch()
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Num())

	require.Equal(t, 1, cp.Log().Len())
	entry := cp.Log().Entries()[0]
	assert.Equal(t, SeverityDroppedRow, entry.Severity)
	assert.Equal(t, 2, entry.RowNum)
}

func TestPhase_PayRateBelowMinimum_FailAbortsPhase(t *testing.T) {
	p := NewPhase("Validate", Columns(
		FloatColumn("Pay rate", MinValue(0.01)),
	))
	_, err := runPhase(t, p, payRateBatch("0"))
	require.Error(t, err)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "Validate", fatal.Phase)
	assert.Equal(t, StateFailed, p.State())
	assert.Equal(t, 1, p.Log().Count(SeverityError))
}

func TestPhase_ValidationIsIdempotent(t *testing.T) {
	columns := func() PhaseOption {
		return Columns(
			IntColumn("id"),
			StringColumn("name", FixWith("strip", "lower")),
			FloatColumn("rate", MinValue(0.01), OnError(PolicyWarn)),
		)
	}
	batch := data.Batch{
		data.RowFromPairs(1, "id", data.String("1"), "name", data.String(" Bob "), "rate", data.String("2.5")),
		data.RowFromPairs(2, "id", data.String("2"), "name", data.String("SUE"), "rate", data.String("3")),
	}

	first, err := runPhase(t, NewPhase("Validate", columns()), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Log().Len())

	second, err := runPhase(t, NewPhase("Validate", columns()), first.Batch())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Log().Len(), "no new warnings on validated data")
	assert.Equal(t, first.Fingerprint(), second.Fingerprint(), "identical batch")
}

func TestPhase_InputBatchNeverMutated(t *testing.T) {
	batch := data.Batch{data.RowFromPairs(1, "name", data.String(" Bob "))}
	p := NewPhase("Validate", Columns(StringColumn("name", FixWith("strip"))))
	cp, err := runPhase(t, p, batch)
	require.NoError(t, err)

	orig, _ := batch[0].Get("name")
	assert.Equal(t, data.String(" Bob "), orig)
	out, _ := cp.Batch()[0].Get("name")
	assert.Equal(t, data.String("Bob"), out)
}

func TestPhase_CheckpointBatchIsImmutable(t *testing.T) {
	p := NewPhase("Validate", Columns(StringColumn("name")))
	cp, err := runPhase(t, p, data.Batch{data.RowFromPairs(1, "name", data.String("bob"))})
	require.NoError(t, err)

	got := cp.Batch()
	got[0].Set("name", data.String("mallory"))

	again, _ := cp.Batch()[0].Get("name")
	assert.Equal(t, data.String("bob"), again)
}

func TestPhase_UndeclaredFieldWarnsOncePerPhase(t *testing.T) {
	batch := data.Batch{
		data.RowFromPairs(1, "id", data.String("1"), "mystery", data.String("x")),
		data.RowFromPairs(2, "id", data.String("2"), "mystery", data.String("y")),
	}
	p := NewPhase("Validate", Columns(IntColumn("id")))
	cp, err := runPhase(t, p, batch)
	require.NoError(t, err)

	entries := cp.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, SeverityWarning, entries[0].Severity)
	assert.Equal(t, "consistency_check", entries[0].Step)
	assert.Contains(t, entries[0].Message, "mystery")

	// The field itself passes through untouched.
	v, ok := cp.Batch()[0].Get("mystery")
	require.True(t, ok)
	assert.Equal(t, data.String("x"), v)
}

func TestPhase_NoUnknownFieldWarningsOption(t *testing.T) {
	batch := data.Batch{data.RowFromPairs(1, "id", data.String("1"), "mystery", data.String("x"))}
	p := NewPhase("Validate", Columns(IntColumn("id")), NoUnknownFieldWarnings())
	cp, err := runPhase(t, p, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, cp.Log().Len())
}

func TestPhase_HeaderFolding(t *testing.T) {
	batch := data.Batch{data.RowFromPairs(1,
		"employee_id", data.String("7"),
		"Surname", data.String("Garak"),
	)}
	p := NewPhase("Validate", Columns(
		IntColumn("Employee ID"),
		StringColumn("Last name", AltNames("Surname")),
	))
	cp, err := runPhase(t, p, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, cp.Log().Len())

	row := cp.Batch()[0]
	v, ok := row.Get("Employee ID")
	require.True(t, ok)
	assert.Equal(t, data.Int(7), v)
	v, ok = row.Get("Last name")
	require.True(t, ok)
	assert.Equal(t, data.String("Garak"), v)
}

func TestPhase_NoSaveColumnVisibleToStepsButProjectedOut(t *testing.T) {
	var seen bool
	p := NewPhase("Validate",
		Columns(
			StringColumn("name"),
			StringColumn("ssn", NoSave()),
		),
		Steps(RowStep("check_ssn", func(ctx *Context, row *data.Row) (*data.Row, error) {
			_, seen = row.Get("ssn")
			return row, nil
		})),
	)
	cp, err := runPhase(t, p, data.Batch{
		data.RowFromPairs(1, "name", data.String("bob"), "ssn", data.String("123-45-6789")),
	})
	require.NoError(t, err)
	assert.True(t, seen, "step sees the field within the phase")
	_, ok := cp.Batch()[0].Get("ssn")
	assert.False(t, ok, "checkpoint does not carry the field")
	assert.NotContains(t, cp.Columns(), "ssn")
}

func TestPhase_ConfigErrorSurfacesBeforeAnyRow(t *testing.T) {
	var ran bool
	p := NewPhase("Validate",
		Columns(IntColumn("n", FixWith("strip"))),
		Steps(RowStep("mark", func(ctx *Context, row *data.Row) (*data.Row, error) {
			ran = true
			return row, nil
		})),
	)
	_, err := runPhase(t, p, data.Batch{data.RowFromPairs(1, "n", data.String("1"))})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.False(t, ran, "no step runs on a misconfigured phase")
}

func TestPhase_RowStepDropsUnemployedWithoutID(t *testing.T) {
	p := NewPhase("Clean",
		Steps(RowStep("drop_inactive", func(ctx *Context, row *data.Row) (*data.Row, error) {
			id, _ := row.Get("Employee ID")
			status, _ := row.Get("status")
			if data.Render(id) == "" && data.Render(status) != "Employed" {
				return nil, DropRow("no employee id and not employed")
			}
			return row, nil
		})),
	)
	batch := data.Batch{data.RowFromPairs(1,
		"Employee ID", data.String(""),
		"status", data.String("Inactive"),
		"Last name", data.String("Garak"),
	)}
	cp, err := runPhase(t, p, batch)
	require.NoError(t, err)
	assert.Len(t, cp.Batch(), 0)

	require.Equal(t, 1, cp.Log().Len())
	entry := cp.Log().Entries()[0]
	assert.Equal(t, SeverityDroppedRow, entry.Severity)
	assert.Equal(t, 1, entry.RowNum, "logged against the source row position")
	assert.Equal(t, "drop_inactive", entry.Step)
}

func TestPhase_FirstColumnFailurePerRowWins(t *testing.T) {
	p := NewPhase("Validate", Columns(
		IntColumn("a", OnError(PolicyWarn)),
		IntColumn("b", OnError(PolicyWarn)),
	))
	cp, err := runPhase(t, p, data.Batch{
		data.RowFromPairs(1, "a", data.String("x"), "b", data.String("y")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Log().Len(), "one failure logged per row, not one per column")
}
