package tableio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refinery/internal/data"
)

func TestReadJSON_PreservesFieldOrder(t *testing.T) {
	in := `[
  {"z": 1, "a": 2, "m": 3},
  {"z": 4, "a": 5, "m": 6}
]`
	batch, header, err := ReadJSON(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, header, "declaration order, not sorted")
	require.Len(t, batch, 2)
	assert.Equal(t, []string{"z", "a", "m"}, batch[0].Keys())
}

func TestReadJSON_NumbersKeepTheirKind(t *testing.T) {
	in := `[{"count": 3, "rate": 1.5}]`
	batch, _, err := ReadJSON(strings.NewReader(in))
	require.NoError(t, err)

	v, _ := batch[0].Get("count")
	assert.Equal(t, data.Int(3), v)
	v, _ = batch[0].Get("rate")
	assert.Equal(t, data.Float(1.5), v)
}

func TestReadJSON_NullsAndNested(t *testing.T) {
	in := `[{"note": null, "tags": ["a", "b"], "meta": {"k": 1}}]`
	batch, _, err := ReadJSON(strings.NewReader(in))
	require.NoError(t, err)

	v, ok := batch[0].Get("note")
	require.True(t, ok)
	assert.True(t, data.IsNull(v))
	v, _ = batch[0].Get("tags")
	assert.IsType(t, data.Array{}, v)
	v, _ = batch[0].Get("meta")
	assert.IsType(t, data.Object{}, v)
}

func TestReadJSON_RejectsNonArrayInput(t *testing.T) {
	_, _, err := ReadJSON(strings.NewReader(`{"id": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array of records")
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	batch := data.Batch{
		data.RowFromPairs(1, "id", data.Int(1), "name", data.String("bob"), "rate", data.Float(2.5)),
		data.RowFromPairs(2, "id", data.Int(2), "name", data.Null{}, "rate", data.Float(3)),
	}
	var b strings.Builder
	require.NoError(t, WriteJSON(&b, batch))

	back, _, err := ReadJSON(strings.NewReader(b.String()))
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, []string{"id", "name", "rate"}, back[0].Keys())

	v, _ := back[0].Get("name")
	assert.Equal(t, data.String("bob"), v)
	v, ok := back[1].Get("name")
	require.True(t, ok)
	assert.True(t, data.IsNull(v), "null survives the round trip explicitly")
}

func TestFormat_Dispatch(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, ".json", f.Ext())

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f, "csv is the default")

	_, err = ParseFormat("parquet")
	require.Error(t, err)
}
