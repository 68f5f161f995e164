package cli

import (
	"fmt"
	"sort"

	"github.com/roach88/refinery/internal/engine"
)

// Factory builds a declared pipeline. The CLI supplies run-scoped options
// (working directory, save format, ledger) from the job file; the factory
// supplies the phases and everything else declared in code.
type Factory func(opts ...engine.PipelineOption) *engine.Pipeline

// Registry maps pipeline names to their factories. Pipelines are declared
// in Go and registered at startup; job files select them by name.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named pipeline factory, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Build constructs the named pipeline with the given run options.
func (r *Registry) Build(name string, opts ...engine.PipelineOption) (*engine.Pipeline, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q (registered: %v)", name, r.Names())
	}
	return f(opts...), nil
}

// Names lists the registered pipeline names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
