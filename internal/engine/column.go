package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/refinery/internal/data"
)

// Kind is the semantic type a column casts its values to.
type Kind string

const (
	KindString   Kind = "string"
	KindInt      Kind = "int"
	KindFloat    Kind = "float"
	KindBool     Kind = "bool"
	KindDate     Kind = "date"
	KindDateTime Kind = "datetime"
)

// Policy selects how a column-level validation failure is resolved.
type Policy string

const (
	// PolicyWarn logs a WARNING and keeps the row with whatever value
	// resulted (default, original raw value, or partial fix).
	PolicyWarn Policy = "warn"

	// PolicyDropRow marks the row dropped and logs DROPPED_ROW.
	PolicyDropRow Policy = "drop_row"

	// PolicyFail aborts the phase. No checkpoint is emitted.
	PolicyFail Policy = "fail"
)

// FixFunc is one pure value-fixing function. Fix functions run in declared
// order, each taking and returning a value of the column's already-cast
// kind.
type FixFunc func(data.Value) (data.Value, error)

var titleCaser = cases.Title(language.Und)

// namedFixes are the string-shape fix functions available by name in
// column declarations and scenario files.
var namedFixes = map[string]FixFunc{
	"strip":  stringFix(strings.TrimSpace),
	"lstrip": stringFix(func(s string) string { return strings.TrimLeft(s, " \t\r\n") }),
	"rstrip": stringFix(func(s string) string { return strings.TrimRight(s, " \t\r\n") }),
	"lower":  stringFix(strings.ToLower),
	"upper":  stringFix(strings.ToUpper),
	"title":  stringFix(titleCaser.String),
}

func stringFix(fn func(string) string) FixFunc {
	return func(v data.Value) (data.Value, error) {
		if data.IsNull(v) {
			return v, nil
		}
		s, ok := v.(data.String)
		if !ok {
			return nil, fmt.Errorf("fix function expects a string, got %T", v)
		}
		return data.String(fn(string(s))), nil
	}
}

// boolWords are the recognized spellings for boolean casting, lowercased.
var (
	boolTruthy = map[string]bool{"t": true, "true": true, "1": true, "yes": true, "y": true}
	boolFalsy  = map[string]bool{"f": true, "false": true, "0": true, "no": true, "n": true}
)

// dateTimeLayouts are tried in order when a column declares no explicit
// layout.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// Column is the declarative description of one field: its name, semantic
// kind, and constraints. Columns apply independently per row in declaration
// order; within a column the operation order is fixed (locate, cast, fix,
// null/default, range/allowed, rename) and only the fix-function order is
// configurable.
type Column struct {
	name      string
	kind      Kind
	rename    string
	altNames  []string
	required  bool
	nullOK    bool
	blankOK   bool
	def       data.Value
	min       data.Value
	max       data.Value
	allowed   []data.Value
	fixFns    []FixFunc
	fixNames  []string
	save      bool
	onError   Policy
	layout    string
	loc       *time.Location
	configErr error
}

// ColumnOption configures a column declaration.
type ColumnOption func(*Column)

// Rename sets the output key that replaces the declared name after all
// checks keyed by the original name have run.
func Rename(target string) ColumnOption {
	return func(c *Column) { c.rename = target }
}

// AltNames lists alternate source-header spellings that fold into the
// declared name when the batch enters the phase.
func AltNames(names ...string) ColumnOption {
	return func(c *Column) { c.altNames = append(c.altNames, names...) }
}

// Optional marks the column as not required; absent fields are left absent
// unless a default is declared.
func Optional() ColumnOption {
	return func(c *Column) { c.required = false }
}

// DisallowNull makes null values a validation failure.
func DisallowNull() ColumnOption {
	return func(c *Column) { c.nullOK = false }
}

// DisallowBlank makes whitespace-only string values a validation failure.
func DisallowBlank() ColumnOption {
	return func(c *Column) { c.blankOK = false }
}

// Default declares a substitute for missing or null values.
func Default(v any) ColumnOption {
	return func(c *Column) {
		val, err := data.FromGo(v)
		if err != nil {
			c.configErr = fmt.Errorf("default for column %q: %w", c.name, err)
			return
		}
		c.def = val
	}
}

// MinValue declares the inclusive lower bound checked after casting.
func MinValue(v any) ColumnOption {
	return func(c *Column) {
		val, err := data.FromGo(v)
		if err != nil {
			c.configErr = fmt.Errorf("min_value for column %q: %w", c.name, err)
			return
		}
		c.min = val
	}
}

// MaxValue declares the inclusive upper bound checked after casting.
func MaxValue(v any) ColumnOption {
	return func(c *Column) {
		val, err := data.FromGo(v)
		if err != nil {
			c.configErr = fmt.Errorf("max_value for column %q: %w", c.name, err)
			return
		}
		c.max = val
	}
}

// AllowedValues restricts the column to a value set, checked after casting.
// For an int column declare ints, not their string spellings.
func AllowedValues(vals ...any) ColumnOption {
	return func(c *Column) {
		for _, v := range vals {
			val, err := data.FromGo(v)
			if err != nil {
				c.configErr = fmt.Errorf("allowed_values for column %q: %w", c.name, err)
				return
			}
			c.allowed = append(c.allowed, val)
		}
	}
}

// FixWith appends fix functions in order. Each argument is either the name
// of a built-in fix ("strip", "lower", ...) or a FixFunc.
func FixWith(fns ...any) ColumnOption {
	return func(c *Column) {
		for _, fn := range fns {
			switch f := fn.(type) {
			case string:
				named, ok := namedFixes[f]
				if !ok {
					c.configErr = fmt.Errorf("column %q: unknown fix function %q", c.name, f)
					return
				}
				c.fixFns = append(c.fixFns, named)
				c.fixNames = append(c.fixNames, f)
			case FixFunc:
				c.fixFns = append(c.fixFns, f)
				c.fixNames = append(c.fixNames, "custom")
			case func(data.Value) (data.Value, error):
				c.fixFns = append(c.fixFns, f)
				c.fixNames = append(c.fixNames, "custom")
			default:
				c.configErr = fmt.Errorf("column %q: fix function must be a name or FixFunc, got %T", c.name, fn)
				return
			}
		}
	}
}

// NoSave excludes the column from the phase's persisted output. The field
// stays visible to every step within the phase.
func NoSave() ColumnOption {
	return func(c *Column) { c.save = false }
}

// OnError selects the column's validation-failure policy.
func OnError(p Policy) ColumnOption {
	return func(c *Column) { c.onError = p }
}

// DateLayout sets an explicit parse layout for date and datetime columns,
// replacing the built-in layout list.
func DateLayout(layout string) ColumnOption {
	return func(c *Column) { c.layout = layout }
}

// DefaultTimezone sets the zone assumed when a parsed value carries none.
func DefaultTimezone(loc *time.Location) ColumnOption {
	return func(c *Column) { c.loc = loc }
}

func newColumn(name string, kind Kind, opts []ColumnOption) *Column {
	c := &Column{
		name:     strings.TrimSpace(name),
		kind:     kind,
		required: true,
		nullOK:   true,
		blankOK:  true,
		save:     true,
		onError:  PolicyFail,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StringColumn declares a general-purpose column whose values stay strings.
func StringColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, KindString, opts)
}

// IntColumn declares a column cast to integers. Fractions truncate toward
// zero, so "1.0" casts to 1.
func IntColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, KindInt, opts)
}

// FloatColumn declares a column cast to floats.
func FloatColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, KindFloat, opts)
}

// BoolColumn declares a column cast from the usual truthy and falsy
// spellings. Null values are disallowed by default; declare a default or
// allow null explicitly for sparse data.
func BoolColumn(name string, opts ...ColumnOption) *Column {
	c := newColumn(name, KindBool, opts)
	return c
}

// DateColumn declares a column cast to calendar dates.
func DateColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, KindDate, opts)
}

// DateTimeColumn declares a column cast to timestamps.
func DateTimeColumn(name string, opts ...ColumnOption) *Column {
	return newColumn(name, KindDateTime, opts)
}

// Name returns the declared (pre-rename) name.
func (c *Column) Name() string { return c.name }

// OutputName returns the key the field carries after validation.
func (c *Column) OutputName() string {
	if c.rename != "" {
		return c.rename
	}
	return c.name
}

// Save reports whether the column is projected into the checkpoint.
func (c *Column) Save() bool { return c.save }

// Validate checks the declaration itself. Called once at phase
// configuration time; any problem is a ConfigError surfaced before a row
// is processed.
func (c *Column) Validate() error {
	if c.configErr != nil {
		return Configf("%v", c.configErr)
	}
	if c.name == "" {
		return Configf("column name may not be empty")
	}
	if strings.ContainsAny(c.name, "\n\t") {
		return Configf("column name %q contains a forbidden character", c.name)
	}
	if !c.nullOK && c.def != nil && !data.IsNull(c.def) {
		return Configf("column %q disallows null values but declares a non-null default", c.name)
	}
	switch c.onError {
	case PolicyWarn, PolicyDropRow, PolicyFail:
	default:
		return Configf("column %q: unsupported on_error policy %q", c.name, c.onError)
	}
	if c.kind == KindFloat {
		// Whole-number bounds arrive as ints; compare them as floats.
		if i, ok := c.min.(data.Int); ok {
			c.min = data.Float(float64(i))
		}
		if i, ok := c.max.(data.Int); ok {
			c.max = data.Float(float64(i))
		}
		for n, a := range c.allowed {
			if i, ok := a.(data.Int); ok {
				c.allowed[n] = data.Float(float64(i))
			}
		}
	}
	if c.def != nil && !data.IsNull(c.def) {
		// Defaults are substituted after the cast pass, so they must
		// already hold the column's kind.
		cast, err := c.cast(c.def)
		if err != nil {
			return Configf("column %q: default: %v", c.name, err)
		}
		c.def = cast
	}
	if c.kind == KindString {
		return nil
	}
	for _, fn := range c.fixNames {
		if _, named := namedFixes[fn]; named && fn != "custom" {
			return Configf("column %q: fix function %q operates on strings but column casts to %s", c.name, fn, c.kind)
		}
	}
	return nil
}

// applyToRow runs the fixed per-row pipeline for this column: locate, cast,
// fix, null/blank/default, range and allowed values, then rename last. Any
// failure returns a ValidationError for the phase to resolve per the
// column's policy; the row is left with the original raw value in that
// case.
func (c *Column) applyToRow(row *data.Row) error {
	raw, present := row.Get(c.name)
	if !present {
		if c.required {
			return &ValidationError{Column: c.name, Message: "required column missing from row"}
		}
		if c.def != nil {
			row.Set(c.name, c.def)
			c.applyRename(row)
		}
		return nil
	}

	v, err := c.cast(raw)
	if err != nil {
		return &ValidationError{Column: c.name, Message: err.Error()}
	}

	for i, fix := range c.fixFns {
		v, err = fix(v)
		if err != nil {
			return &ValidationError{Column: c.name, Message: fmt.Sprintf("fix function %s: %v", c.fixNames[i], err)}
		}
	}

	if data.IsNull(v) {
		if c.def != nil {
			v = c.def
		} else if !c.nullOK {
			return &ValidationError{Column: c.name, Message: "null value found"}
		}
	}
	if !c.blankOK {
		if s, ok := v.(data.String); ok && strings.TrimSpace(string(s)) == "" {
			return &ValidationError{Column: c.name, Message: "blank value found"}
		}
	}

	if !data.IsNull(v) {
		if err := c.checkRange(v); err != nil {
			return err
		}
		if err := c.checkAllowed(v); err != nil {
			return err
		}
	}

	row.Set(c.name, v)
	c.applyRename(row)
	return nil
}

func (c *Column) applyRename(row *data.Row) {
	if c.rename != "" {
		row.RenameField(c.name, c.rename)
	}
}

func (c *Column) checkRange(v data.Value) error {
	if c.min != nil {
		cmp, err := data.Compare(v, c.min)
		if err != nil {
			return &ValidationError{Column: c.name, Message: err.Error()}
		}
		if cmp < 0 {
			return &ValidationError{
				Column:  c.name,
				Message: fmt.Sprintf("value %s is less than min %s", data.Render(v), data.Render(c.min)),
			}
		}
	}
	if c.max != nil {
		cmp, err := data.Compare(v, c.max)
		if err != nil {
			return &ValidationError{Column: c.name, Message: err.Error()}
		}
		if cmp > 0 {
			return &ValidationError{
				Column:  c.name,
				Message: fmt.Sprintf("value %s is more than max %s", data.Render(v), data.Render(c.max)),
			}
		}
	}
	return nil
}

func (c *Column) checkAllowed(v data.Value) error {
	if len(c.allowed) == 0 {
		return nil
	}
	for _, a := range c.allowed {
		if data.Equal(v, a) {
			return nil
		}
	}
	return &ValidationError{
		Column:  c.name,
		Message: fmt.Sprintf("value %s not found in allowed values", data.Render(v)),
	}
}

// nullMarkers are string spellings treated as null when casting typed
// columns; files saved by other tools sometimes carry them.
func isNullish(v data.Value) bool {
	if data.IsNull(v) {
		return true
	}
	if s, ok := v.(data.String); ok {
		t := strings.TrimSpace(string(s))
		return t == "" || t == "NULL" || t == "None"
	}
	return false
}

func (c *Column) cast(v data.Value) (data.Value, error) {
	switch c.kind {
	case KindString:
		if data.IsNull(v) {
			return data.Null{}, nil
		}
		return v, nil
	case KindInt:
		return castInt(v)
	case KindFloat:
		return castFloat(v)
	case KindBool:
		return castBool(v)
	case KindDate:
		t, err := c.castTime(v)
		if err != nil || data.IsNull(t) {
			return t, err
		}
		if dt, ok := t.(data.DateTime); ok {
			return data.DateOf(time.Time(dt)), nil
		}
		return t, nil
	case KindDateTime:
		return c.castTime(v)
	default:
		return nil, fmt.Errorf("unknown column kind %q", c.kind)
	}
}

func castInt(v data.Value) (data.Value, error) {
	if isNullish(v) {
		return data.Null{}, nil
	}
	switch val := v.(type) {
	case data.Int:
		return val, nil
	case data.Float:
		return data.Int(int64(float64(val))), nil
	case data.String:
		d, err := decimal.NewFromString(strings.TrimSpace(string(val)))
		if err != nil {
			return nil, fmt.Errorf("value %q cannot be cast to int", string(val))
		}
		return data.Int(d.IntPart()), nil
	default:
		return nil, fmt.Errorf("value %s cannot be cast to int", data.Render(v))
	}
}

func castFloat(v data.Value) (data.Value, error) {
	if isNullish(v) {
		return data.Null{}, nil
	}
	switch val := v.(type) {
	case data.Float:
		return val, nil
	case data.Int:
		return data.Float(float64(val)), nil
	case data.String:
		d, err := decimal.NewFromString(strings.TrimSpace(string(val)))
		if err != nil {
			return nil, fmt.Errorf("value %q cannot be cast to float", string(val))
		}
		return data.Float(d.InexactFloat64()), nil
	default:
		return nil, fmt.Errorf("value %s cannot be cast to float", data.Render(v))
	}
}

func castBool(v data.Value) (data.Value, error) {
	if isNullish(v) {
		return data.Null{}, nil
	}
	switch val := v.(type) {
	case data.Bool:
		return val, nil
	case data.Int:
		switch val {
		case 0:
			return data.Bool(false), nil
		case 1:
			return data.Bool(true), nil
		}
		return nil, fmt.Errorf("value %d not recognized as a boolean", int64(val))
	case data.String:
		word := strings.ToLower(strings.TrimSpace(string(val)))
		if boolTruthy[word] {
			return data.Bool(true), nil
		}
		if boolFalsy[word] {
			return data.Bool(false), nil
		}
		return nil, fmt.Errorf("value %q not recognized as a boolean", string(val))
	default:
		return nil, fmt.Errorf("value %s not recognized as a boolean", data.Render(v))
	}
}

func (c *Column) castTime(v data.Value) (data.Value, error) {
	if isNullish(v) {
		return data.Null{}, nil
	}
	switch val := v.(type) {
	case data.DateTime:
		return val, nil
	case data.Date:
		return data.DateTime(time.Time(val)), nil
	case data.String:
		raw := strings.TrimSpace(string(val))
		loc := c.loc
		if loc == nil {
			loc = time.UTC
		}
		if c.layout != "" {
			t, err := time.ParseInLocation(c.layout, raw, loc)
			if err != nil {
				return nil, fmt.Errorf("value %q does not match date layout %q", raw, c.layout)
			}
			return data.DateTime(t), nil
		}
		for _, layout := range dateTimeLayouts {
			if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
				return data.DateTime(t), nil
			}
		}
		return nil, fmt.Errorf("value %q not recognized as a date", raw)
	default:
		return nil, fmt.Errorf("value %s not recognized as a date", data.Render(v))
	}
}

// strictName folds a header for lenient matching: lowercase, underscores
// and tabs become spaces, runs of spaces collapse. Hand-edited spreadsheets
// often vary exactly this way.
func strictName(name string) string {
	folded := strings.ToLower(name)
	folded = strings.NewReplacer("_", " ", "\t", " ", "\n", " ").Replace(folded)
	return strings.Join(strings.Fields(folded), " ")
}
