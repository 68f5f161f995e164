// Package data defines the in-memory representation of tabular records:
// a sealed Value union for cell contents, ordered Rows, Batches, and a
// columnar Table view. Every other package moves these types around;
// none of them invent their own cell representation.
package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"
)

// DateLayout is the rendering layout for Date values.
const DateLayout = "2006-01-02"

// DateTimeLayout is the rendering layout for DateTime values.
const DateTimeLayout = time.RFC3339

// Value is a sealed interface over the scalar and nested types a cell may
// hold. Only Null, Bool, Int, Float, String, Date, DateTime, Array, and
// Object implement it. Keeping the set closed makes cast and validation
// logic exhaustive.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent or null cell value.
// Using an explicit type keeps every cell a non-nil Value.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a string cell value.
type String string

func (String) value() {}

// Int represents an integer cell value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating-point cell value.
type Float float64

func (Float) value() {}

// Bool represents a boolean cell value.
type Bool bool

func (Bool) value() {}

// Date represents a calendar date with no time component.
// The underlying time.Time is truncated to midnight UTC.
type Date time.Time

func (Date) value() {}

// DateTime represents a timestamp cell value.
type DateTime time.Time

func (DateTime) value() {}

// Array represents a nested sequence of values.
type Array []Value

func (Array) value() {}

// Object represents a nested string-keyed mapping of values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// NewDate constructs a Date from year, month, and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates a timestamp to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// IsNull reports whether a value is absent for validation purposes.
// A nil Value, an explicit Null, and a NaN Float all count as null;
// saved files sometimes round-trip NaN cells through "NULL" markers.
func IsNull(v Value) bool {
	switch val := v.(type) {
	case nil:
		return true
	case Null:
		return true
	case Float:
		return math.IsNaN(float64(val))
	}
	return false
}

// Equal reports deep equality of two values. Nulls (including NaN floats)
// compare equal to each other. An Int never equals a Float even when the
// numeric values coincide; casting normalizes kinds before comparison.
func Equal(a, b Value) bool {
	if IsNull(a) && IsNull(b) {
		return true
	}
	if IsNull(a) || IsNull(b) {
		return false
	}
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Float:
		bv, ok := b.(Float)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Date:
		bv, ok := b.(Date)
		return ok && time.Time(av).Equal(time.Time(bv))
	case DateTime:
		bv, ok := b.(DateTime)
		return ok && time.Time(av).Equal(time.Time(bv))
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, present := bv[k]
			if !present || !Equal(v, ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two scalar values of the same kind. Returns -1, 0, or 1.
// Used for min/max range checks and sort steps. Mixed or nested kinds
// return an error rather than an arbitrary order.
func Compare(a, b Value) (int, error) {
	switch av := a.(type) {
	case String:
		if bv, ok := b.(String); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case Int:
		if bv, ok := b.(Int); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case Float:
		if bv, ok := b.(Float); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	case Date:
		if bv, ok := b.(Date); ok {
			return time.Time(av).Compare(time.Time(bv)), nil
		}
	case DateTime:
		if bv, ok := b.(DateTime); ok {
			return time.Time(av).Compare(time.Time(bv)), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// Render returns the cell's display form, used for CSV output and diff
// rendering. Null renders as the empty string.
func Render(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		if math.IsNaN(float64(val)) {
			return ""
		}
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Date:
		return time.Time(val).Format(DateLayout)
	case DateTime:
		return time.Time(val).Format(DateTimeLayout)
	default:
		b, err := MarshalValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// SortedKeys returns keys in ascending byte order for deterministic output.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalValue marshals a Value to JSON bytes. Dates and datetimes encode
// as their layout strings; they round-trip through string cells and are
// re-cast on load.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		if math.IsNaN(float64(val)) {
			return []byte("null"), nil
		}
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Date:
		return json.Marshal(time.Time(val).Format(DateLayout))
	case DateTime:
		return json.Marshal(time.Time(val).Format(DateTimeLayout))
	case Array:
		return marshalArray(val)
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// MarshalJSON implements json.Marshaler for Object with sorted keys.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalArray(arr Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := MarshalValue(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalValue decodes JSON bytes into a Value. Numbers without a
// fraction or exponent decode as Int, others as Float. Strings stay
// strings; date casting is the column layer's job.
func UnmarshalValue(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return FromGo(v)
}

// FromGo converts a decoded Go value (as produced by encoding/json with
// UseNumber) into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number out of range: %s", val)
		}
		return Float(f), nil
	case float64:
		if val == math.Trunc(val) && !math.IsInf(val, 0) {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case int:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case time.Time:
		return DateTime(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	case Value:
		return val, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
