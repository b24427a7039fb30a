package effects

import (
	"sort"
	"sync"
)

// Source labels where a registered effect came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceCustom  Source = "custom"
)

// Registration is a registry listing entry.
type Registration struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
}

// Registry maps effect names to callable implementations tagged by
// provenance. Custom registrations happen after builtins, so a custom
// effect sharing a builtin's name overwrites it.
type Registry struct {
	mu      sync.RWMutex
	funcs   map[string]Func
	sources map[string]Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs:   make(map[string]Func),
		sources: make(map[string]Source),
	}
}

// Register adds an effect function under the given name. An existing entry
// with the same name is overwritten.
func (r *Registry) Register(name string, fn Func, source Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
	r.sources[name] = source
}

// Get returns the effect function registered under name.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has returns true if the name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// List returns all registrations sorted by name.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, Registration{Name: name, Source: r.sources[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered effects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funcs)
}
