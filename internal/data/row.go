package data

import (
	"bytes"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Row is an ordered field-name-to-value mapping carrying its original
// pipeline-entry row number. The number is assigned once, when a batch first
// enters a pipeline, and follows the row through every phase for error
// attribution and diffing. It is distinct from any domain key column.
//
// Rows in one batch need not share identical key sets; sparse data is
// permitted.
type Row struct {
	num    int
	keys   []string
	fields map[string]Value
}

// NewRow creates an empty row with the given row number.
func NewRow(num int) *Row {
	return &Row{
		num:    num,
		fields: make(map[string]Value),
	}
}

// RowFromPairs builds a row from alternating field names and values,
// preserving declaration order. Intended for tests and fixtures.
func RowFromPairs(num int, pairs ...any) *Row {
	if len(pairs)%2 != 0 {
		panic("RowFromPairs: odd number of arguments")
	}
	r := NewRow(num)
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("RowFromPairs: field name must be string, got %T", pairs[i]))
		}
		v, err := FromGo(pairs[i+1])
		if err != nil {
			panic(fmt.Sprintf("RowFromPairs: field %q: %v", name, err))
		}
		r.Set(name, v)
	}
	return r
}

// Num returns the row's original pipeline-entry number.
func (r *Row) Num() int {
	return r.num
}

// Get returns the value for a field and whether the field is present.
func (r *Row) Get(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Set stores a value, appending the field to the key order if new.
func (r *Row) Set(name string, v Value) {
	if _, exists := r.fields[name]; !exists {
		r.keys = append(r.keys, name)
	}
	r.fields[name] = v
}

// Delete removes a field, preserving the order of the remaining keys.
func (r *Row) Delete(name string) {
	if _, exists := r.fields[name]; !exists {
		return
	}
	delete(r.fields, name)
	for i, k := range r.keys {
		if k == name {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// RenameField substitutes a field's key in place, keeping its position and
// value. No-op if the old key is absent.
func (r *Row) RenameField(oldName, newName string) {
	v, ok := r.fields[oldName]
	if !ok || oldName == newName {
		return
	}
	delete(r.fields, oldName)
	r.fields[newName] = v
	for i, k := range r.keys {
		if k == oldName {
			r.keys[i] = newName
			break
		}
	}
}

// Keys returns the field names in order. The slice is a copy.
func (r *Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Row) Len() int {
	return len(r.fields)
}

// Clone returns a deep-enough copy: the key order and field map are copied,
// nested Array/Object values are copied recursively.
func (r *Row) Clone() *Row {
	out := &Row{
		num:    r.num,
		keys:   make([]string, len(r.keys)),
		fields: make(map[string]Value, len(r.fields)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.fields {
		out.fields[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

// Fingerprint hashes the row's fields in key order. Two rows with equal
// fields and ordering share a fingerprint; used as a diff fast path and as
// the checkpoint content fingerprint.
func (r *Row) Fingerprint() uint64 {
	var buf bytes.Buffer
	for _, k := range r.keys {
		buf.WriteString(k)
		buf.WriteByte(0x1f)
		buf.WriteString(Render(r.fields[k]))
		buf.WriteByte(0x1e)
	}
	return xxh3.Hash(buf.Bytes())
}

// String implements fmt.Stringer for debugging output.
func (r *Row) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "(row=%d", r.num)
	for _, k := range r.keys {
		fmt.Fprintf(&buf, " %s=%s", k, Render(r.fields[k]))
	}
	buf.WriteByte(')')
	return buf.String()
}

// Batch is an ordered sequence of rows processed together. Ordering is
// preserved unless a step explicitly reorders.
type Batch []*Row

// BatchFromMaps builds a batch from plain maps with field order taken from
// the keys slice, numbering rows from startNum. Fields absent from a map
// are left absent from the row.
func BatchFromMaps(startNum int, keys []string, maps []map[string]any) (Batch, error) {
	batch := make(Batch, 0, len(maps))
	for i, m := range maps {
		row := NewRow(startNum + i)
		for _, k := range keys {
			raw, present := m[k]
			if !present {
				continue
			}
			v, err := FromGo(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d field %q: %w", startNum+i, k, err)
			}
			row.Set(k, v)
		}
		batch = append(batch, row)
	}
	return batch, nil
}

// Clone deep-copies every row.
func (b Batch) Clone() Batch {
	out := make(Batch, len(b))
	for i, r := range b {
		out[i] = r.Clone()
	}
	return out
}

// Headers returns the union of field names across all rows, in first-seen
// order.
func (b Batch) Headers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range b {
		for _, k := range r.keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Renumber assigns fresh row numbers starting at 1. Called once at pipeline
// entry; never called between phases, so numbers stay stable for diffing.
func (b Batch) Renumber() {
	for i, r := range b {
		r.num = i + 1
	}
}

// Fingerprint combines all row fingerprints in order.
func (b Batch) Fingerprint() uint64 {
	buf := make([]byte, 0, len(b)*8)
	for _, r := range b {
		fp := r.Fingerprint()
		for shift := 56; shift >= 0; shift -= 8 {
			buf = append(buf, byte(fp>>shift))
		}
	}
	return xxh3.Hash(buf)
}
