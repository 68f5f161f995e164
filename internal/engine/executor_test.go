package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refinery/internal/data"
	"github.com/roach88/refinery/internal/testutil"
)

func numberedBatch(n int) data.Batch {
	batch := make(data.Batch, 0, n)
	for i := 1; i <= n; i++ {
		batch = append(batch, data.RowFromPairs(i, "n", data.Int(int64(i))))
	}
	return batch
}

func TestRowStep_ErrorForOneRowDoesNotAffectTheNext(t *testing.T) {
	p := NewPhase("Transform", Steps(
		RowStep("drop_second", func(ctx *Context, row *data.Row) (*data.Row, error) {
			if row.Num() == 2 {
				return nil, DropRow("row 2 rejected")
			}
			return row, nil
		}),
	))
	cp, err := runPhase(t, p, numberedBatch(4))
	require.NoError(t, err)

	out := cp.Batch()
	require.Len(t, out, 3)
	assert.Equal(t, []int{1, 3, 4}, testutil.RowNums(out))

	entries := cp.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, SeverityDroppedRow, entries[0].Severity)
	assert.Equal(t, "drop_second", entries[0].Step)
	assert.Equal(t, 2, entries[0].RowNum)
	assert.Equal(t, "row 2 rejected", entries[0].Message)
}

func TestRowStep_WarnRowKeepsRowUnchanged(t *testing.T) {
	p := NewPhase("Transform", Steps(
		RowStep("suspicious", func(ctx *Context, row *data.Row) (*data.Row, error) {
			return nil, WarnRow("looks off")
		}),
	))
	cp, err := runPhase(t, p, numberedBatch(2))
	require.NoError(t, err)
	assert.Len(t, cp.Batch(), 2)
	assert.Equal(t, 2, cp.Log().Count(SeverityWarning))
}

func TestRowStep_NilReturnDropsSilently(t *testing.T) {
	p := NewPhase("Transform", Steps(
		RowStep("halve", func(ctx *Context, row *data.Row) (*data.Row, error) {
			if row.Num()%2 == 0 {
				return nil, nil
			}
			return row, nil
		}),
	))
	cp, err := runPhase(t, p, numberedBatch(4))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, testutil.RowNums(cp.Batch()))
	assert.Equal(t, 0, cp.Log().Len(), "silent drop leaves no entry")
}

func TestRowStep_UnrecognizedErrorFailsPhase(t *testing.T) {
	p := NewPhase("Transform", Steps(
		RowStep("explode", func(ctx *Context, row *data.Row) (*data.Row, error) {
			return nil, fmt.Errorf("upstream unavailable")
		}),
	))
	_, err := runPhase(t, p, numberedBatch(2))
	require.Error(t, err)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "explode", fatal.Step)
	assert.EqualError(t, err, `phase "Transform" failed in step "explode": upstream unavailable`)
	assert.Equal(t, StateFailed, p.State())
}

func TestRowStep_SkipsRowsAlreadyDropped(t *testing.T) {
	var seen []int
	p := NewPhase("Transform", Steps(
		RowStep("first", func(ctx *Context, row *data.Row) (*data.Row, error) {
			if row.Num() == 3 {
				return nil, DropRow("no threes")
			}
			return row, nil
		}),
		RowStep("second", func(ctx *Context, row *data.Row) (*data.Row, error) {
			seen = append(seen, row.Num())
			return row, nil
		}),
	))
	_, err := runPhase(t, p, numberedBatch(3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestBatchStep_SizeChangeWithoutOptOutIsContractViolation(t *testing.T) {
	p := NewPhase("Transform", Steps(
		BatchStep("truncate", func(ctx *Context, batch data.Batch) (data.Batch, error) {
			return batch[:1], nil
		}),
	))
	_, err := runPhase(t, p, numberedBatch(3))
	require.Error(t, err)
	assert.True(t, IsContractError(err))
	assert.Contains(t, err.Error(), "returned 1 rows for 3 input rows")
	assert.Equal(t, 1, p.Log().Count(SeverityError))
}

func TestBatchStep_NoSizeCheckLogsSummaryWarning(t *testing.T) {
	p := NewPhase("Transform", Steps(
		BatchStep("truncate", func(ctx *Context, batch data.Batch) (data.Batch, error) {
			return batch[:1], nil
		}, NoSizeCheck()),
	))
	cp, err := runPhase(t, p, numberedBatch(3))
	require.NoError(t, err)
	assert.Len(t, cp.Batch(), 1)

	entries := cp.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, SeverityWarning, entries[0].Severity)
	assert.Equal(t, BatchRow, entries[0].RowNum)
	assert.Equal(t, "2 rows were dropped by step", entries[0].Message)
}

func TestBatchStep_SelfLoggedDropSuppressesSizeWarning(t *testing.T) {
	p := NewPhase("Transform", Steps(
		BatchStep("trim", func(ctx *Context, batch data.Batch) (data.Batch, error) {
			ctx.NoteDropped(BatchRow, "2 rows trimmed from the tail")
			return batch[:1], nil
		}, NoSizeCheck()),
	))
	cp, err := runPhase(t, p, numberedBatch(3))
	require.NoError(t, err)
	entries := cp.Log().Entries()
	require.Len(t, entries, 1, "a step that logged its own drops gets no extra warning")
	assert.Equal(t, SeverityDroppedRow, entries[0].Severity)
	assert.Equal(t, "2 rows trimmed from the tail", entries[0].Message)
}

func TestBatchStep_NoSizeCheckLogsAddedRows(t *testing.T) {
	p := NewPhase("Transform", Steps(
		BatchStep("duplicate", func(ctx *Context, batch data.Batch) (data.Batch, error) {
			return append(batch, batch[0].Clone()), nil
		}, NoSizeCheck()),
	))
	cp, err := runPhase(t, p, numberedBatch(2))
	require.NoError(t, err)
	entries := cp.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "1 rows were added by step", entries[0].Message)
}

func TestBatchStep_NilBatchIsContractViolation(t *testing.T) {
	p := NewPhase("Transform", Steps(
		BatchStep("vanish", func(ctx *Context, batch data.Batch) (data.Batch, error) {
			return nil, nil
		}),
	))
	_, err := runPhase(t, p, numberedBatch(2))
	require.Error(t, err)
	assert.True(t, IsContractError(err))
	assert.Contains(t, err.Error(), "returned a nil batch")
}

func TestBatchStep_RowSignalIsContractViolation(t *testing.T) {
	p := NewPhase("Transform", Steps(
		BatchStep("misraise", func(ctx *Context, batch data.Batch) (data.Batch, error) {
			return nil, DropRow("which row?")
		}),
	))
	_, err := runPhase(t, p, numberedBatch(2))
	require.Error(t, err)
	assert.True(t, IsContractError(err))
	assert.Contains(t, err.Error(), "row-scoped signal")
}

func TestTableStep_VectorizedTransformPreservesRowIdentity(t *testing.T) {
	p := NewPhase("Transform", Steps(
		TableStep("double", func(ctx *Context, tbl *data.Table) (*data.Table, error) {
			col := tbl.Column("n")
			doubled := make([]data.Value, len(col))
			for i, v := range col {
				iv := v.(data.Int)
				doubled[i] = data.Int(iv * 2)
			}
			tbl.SetColumn("n", doubled)
			return tbl, nil
		}),
	))
	cp, err := runPhase(t, p, numberedBatch(3))
	require.NoError(t, err)

	out := cp.Batch()
	assert.Equal(t, []int{1, 2, 3}, testutil.RowNums(out))
	v, _ := out[2].Get("n")
	assert.Equal(t, data.Int(6), v)
}

func TestTableStep_NilTableIsContractViolation(t *testing.T) {
	p := NewPhase("Transform", Steps(
		TableStep("vanish", func(ctx *Context, tbl *data.Table) (*data.Table, error) {
			return nil, nil
		}),
	))
	_, err := runPhase(t, p, numberedBatch(1))
	require.Error(t, err)
	assert.True(t, IsContractError(err))
	assert.Contains(t, err.Error(), "returned a nil table")
}

func TestContextStep_DoesNotTouchBatch(t *testing.T) {
	p := NewPhase("Transform",
		PhaseExtraOutputs("tally"),
		Steps(ContextStep("count", func(ctx *Context) error {
			m, err := ctx.Extras().OutputMapping("tally")
			if err != nil {
				return err
			}
			m.Set("runs", data.Int(1))
			return nil
		}, ExtraOutputs("tally"))),
	)
	reg := newExtraRegistry()
	cp, err := p.Run(NewContext(), reg, numberedBatch(2))
	require.NoError(t, err)
	assert.Len(t, cp.Batch(), 2)

	e, ok := reg.get("tally")
	require.True(t, ok)
	v, ok := e.(*ExtraMapping).Get("runs")
	require.True(t, ok)
	assert.Equal(t, data.Int(1), v)
}

func TestPhase_RecordOutputMaterializesAsRecords(t *testing.T) {
	p := NewPhase("Transform",
		PhaseExtraRecordOutputs("audit"),
		Steps(RowStep("note", func(ctx *Context, row *data.Row) (*data.Row, error) {
			recs, err := ctx.Extras().OutputRecords("audit")
			if err != nil {
				return nil, err
			}
			recs.Append(data.Object{"row": data.Int(row.Num())})
			return row, nil
		}, ExtraOutputs("audit"))),
	)
	reg := newExtraRegistry()
	_, err := p.Run(NewContext(), reg, numberedBatch(2))
	require.NoError(t, err)

	e, ok := reg.get("audit")
	require.True(t, ok)
	recs, ok := e.(*ExtraRecords)
	require.True(t, ok, "the phase declaration owns the side-channel shape")
	assert.Equal(t, 2, recs.Len())
}

func TestExtras_UndeclaredAccessIsRefused(t *testing.T) {
	p := NewPhase("Transform",
		PhaseExtraOutputs("declared"),
		Steps(RowStep("sneak", func(ctx *Context, row *data.Row) (*data.Row, error) {
			_, err := ctx.Extras().Output("declared")
			return row, err
		})),
	)
	_, err := runPhase(t, p, numberedBatch(1))
	require.Error(t, err, "output declared by the phase but not by the step")
	assert.Contains(t, err.Error(), `extra output "declared" not declared by this step`)
}

func TestExtras_StepDeclarationMustMatchPhase(t *testing.T) {
	p := NewPhase("Transform", Steps(
		RowStep("sneak", func(ctx *Context, row *data.Row) (*data.Row, error) {
			return row, nil
		}, ExtraOutputs("undeclared")),
	))
	_, err := runPhase(t, p, numberedBatch(1))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), `extra output "undeclared" not declared by phase`)
}

func TestExtras_SourceRequiresEarlierProducer(t *testing.T) {
	p := NewPhase("Transform", PhaseExtraSources("never_made"))
	_, err := runPhase(t, p, numberedBatch(1))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), `extra source "never_made" has not been produced`)
}

func TestContext_WarnRecordsAgainstCurrentStep(t *testing.T) {
	p := NewPhase("Transform", Steps(
		BatchStep("inspect", func(ctx *Context, batch data.Batch) (data.Batch, error) {
			ctx.Warn(BatchRow, "saw %d rows", len(batch))
			return batch, nil
		}),
	))
	cp, err := runPhase(t, p, numberedBatch(2))
	require.NoError(t, err)

	entries := cp.Log().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "inspect", entries[0].Step)
	assert.Equal(t, "saw 2 rows", entries[0].Message)
}
