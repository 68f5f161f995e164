package data

// Table is the columnar materialization of a batch, handed to table-scoped
// steps for vectorized and aggregate transforms. Columns are the union of
// field names across rows; cells absent from a row hold Null.
//
// Row numbers travel with the table so that the batch rebuilt afterwards
// keeps its identity for error attribution and diffing.
type Table struct {
	columns []string
	cells   map[string][]Value
	nums    []int
}

// TableFromBatch materializes a batch into columnar form.
func TableFromBatch(b Batch) *Table {
	t := &Table{
		columns: b.Headers(),
		cells:   make(map[string][]Value),
		nums:    make([]int, len(b)),
	}
	for _, col := range t.columns {
		t.cells[col] = make([]Value, len(b))
	}
	for i, row := range b {
		t.nums[i] = row.Num()
		for _, col := range t.columns {
			if v, ok := row.Get(col); ok {
				t.cells[col][i] = v
			} else {
				t.cells[col][i] = Null{}
			}
		}
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.nums)
}

// Columns returns the column names in order. The slice is a copy.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column returns the cell slice for a column, or nil if absent. The slice
// is shared; steps mutate cells in place.
func (t *Table) Column(name string) []Value {
	return t.cells[name]
}

// SetColumn adds or replaces a whole column. The slice length must match
// the table length; shorter slices are padded with Null.
func (t *Table) SetColumn(name string, vals []Value) {
	padded := make([]Value, t.Len())
	for i := range padded {
		if i < len(vals) && vals[i] != nil {
			padded[i] = vals[i]
		} else {
			padded[i] = Null{}
		}
	}
	if _, exists := t.cells[name]; !exists {
		t.columns = append(t.columns, name)
	}
	t.cells[name] = padded
}

// DropColumn removes a column if present.
func (t *Table) DropColumn(name string) {
	if _, exists := t.cells[name]; !exists {
		return
	}
	delete(t.cells, name)
	for i, col := range t.columns {
		if col == name {
			t.columns = append(t.columns[:i], t.columns[i+1:]...)
			break
		}
	}
}

// ToBatch rebuilds the row-oriented batch, restoring the preserved row
// numbers. Null cells are materialized so every row carries every column.
func (t *Table) ToBatch() Batch {
	batch := make(Batch, t.Len())
	for i := range t.nums {
		row := NewRow(t.nums[i])
		for _, col := range t.columns {
			row.Set(col, t.cells[col][i])
		}
		batch[i] = row
	}
	return batch
}
