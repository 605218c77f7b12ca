package transform

import (
	"sort"
	"sync"
)

// Registry maps the transform names used in configuration to implementations.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transforms: make(map[string]Transform)}
}

// DefaultRegistry creates a registry holding every built-in variant.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewCopy())
	r.Register(NewConcat())
	r.Register(NewMinify())
	r.Register(NewLint())
	r.Register(NewAnnotate())
	r.Register(NewImage())
	r.Register(NewExec())
	return r
}

// Register adds t under its name, replacing any previous registration.
func (r *Registry) Register(t Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[t.Name()] = t
}

// Lookup returns the transform registered under name.
func (r *Registry) Lookup(name string) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[name]
	return t, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
