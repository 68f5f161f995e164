package engine

import (
	"sort"

	"github.com/roach88/refinery/internal/data"
)

// Extra is a named side-channel container, independent of the main row
// flow. The two shapes are ExtraMapping (keyed) and ExtraRecords
// (appended). An extra is owned by the phase that declares it in
// extra_outputs and visible to a later phase only if that phase re-declares
// the name; there is no ambient global registry.
type Extra interface {
	Name() string
}

// ExtraMapping is a keyed side-channel, presented as key -> value.
type ExtraMapping struct {
	name    string
	entries map[string]data.Value
}

// NewExtraMapping creates an empty keyed side-channel.
func NewExtraMapping(name string) *ExtraMapping {
	return &ExtraMapping{
		name:    name,
		entries: make(map[string]data.Value),
	}
}

// Name returns the declared name.
func (m *ExtraMapping) Name() string { return m.name }

// Get returns the value for a key and whether it is present.
func (m *ExtraMapping) Get(key string) (data.Value, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Set stores a value under a key, replacing any previous value.
func (m *ExtraMapping) Set(key string, v data.Value) {
	m.entries[key] = v
}

// Len returns the number of keys.
func (m *ExtraMapping) Len() int { return len(m.entries) }

// Keys returns the keys in sorted order for deterministic output.
func (m *ExtraMapping) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExtraRecords is an appended side-channel, presented as an ordered
// sequence of records.
type ExtraRecords struct {
	name    string
	records []data.Object
}

// NewExtraRecords creates an empty appended side-channel.
func NewExtraRecords(name string) *ExtraRecords {
	return &ExtraRecords{name: name}
}

// Name returns the declared name.
func (r *ExtraRecords) Name() string { return r.name }

// Append adds a record to the end of the sequence.
func (r *ExtraRecords) Append(rec data.Object) {
	r.records = append(r.records, rec)
}

// Records returns the ordered sequence. The slice is a copy; the records
// are shared.
func (r *ExtraRecords) Records() []data.Object {
	out := make([]data.Object, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of records.
func (r *ExtraRecords) Len() int { return len(r.records) }

// extraRegistry is the pipeline-scoped container holding every declared
// extra. Created at pipeline start, torn down at pipeline end. Phases and
// steps never touch it directly; they receive scoped ExtraView instances
// restricted to the names they declared.
type extraRegistry struct {
	entries map[string]Extra
}

func newExtraRegistry() *extraRegistry {
	return &extraRegistry{entries: make(map[string]Extra)}
}

func (r *extraRegistry) get(name string) (Extra, bool) {
	e, ok := r.entries[name]
	return e, ok
}

func (r *extraRegistry) put(e Extra) {
	r.entries[e.Name()] = e
}

// ExtraView is the per-step window onto the registry, restricted to the
// names the step declared. Access to an undeclared name is the system's
// sole access-control discipline and returns an error.
type ExtraView struct {
	sources map[string]Extra
	outputs map[string]Extra
}

// Source returns a declared extra source by name.
func (v *ExtraView) Source(name string) (Extra, error) {
	if v != nil {
		if e, ok := v.sources[name]; ok {
			return e, nil
		}
	}
	return nil, Configf("extra source %q not declared by this step", name)
}

// Output returns a declared extra output by name.
func (v *ExtraView) Output(name string) (Extra, error) {
	if v != nil {
		if e, ok := v.outputs[name]; ok {
			return e, nil
		}
	}
	return nil, Configf("extra output %q not declared by this step", name)
}

// SourceMapping returns a declared source as a keyed mapping.
func (v *ExtraView) SourceMapping(name string) (*ExtraMapping, error) {
	e, err := v.Source(name)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*ExtraMapping)
	if !ok {
		return nil, Configf("extra %q is not a mapping", name)
	}
	return m, nil
}

// SourceRecords returns a declared source as an appended sequence.
func (v *ExtraView) SourceRecords(name string) (*ExtraRecords, error) {
	e, err := v.Source(name)
	if err != nil {
		return nil, err
	}
	r, ok := e.(*ExtraRecords)
	if !ok {
		return nil, Configf("extra %q is not a record sequence", name)
	}
	return r, nil
}

// OutputMapping returns a declared output as a keyed mapping.
func (v *ExtraView) OutputMapping(name string) (*ExtraMapping, error) {
	e, err := v.Output(name)
	if err != nil {
		return nil, err
	}
	m, ok := e.(*ExtraMapping)
	if !ok {
		return nil, Configf("extra %q is not a mapping", name)
	}
	return m, nil
}

// OutputRecords returns a declared output as an appended sequence.
func (v *ExtraView) OutputRecords(name string) (*ExtraRecords, error) {
	e, err := v.Output(name)
	if err != nil {
		return nil, err
	}
	r, ok := e.(*ExtraRecords)
	if !ok {
		return nil, Configf("extra %q is not a record sequence", name)
	}
	return r, nil
}
