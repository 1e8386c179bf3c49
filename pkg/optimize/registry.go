package optimize

import (
	"fmt"
	"sort"
	"sync"
)

// Registry stores passes by name so chains can be assembled from
// configuration.
type Registry[T any] struct {
	mu     sync.RWMutex
	passes map[string]Pass[T]
}

// NewRegistry creates an empty registry, optionally seeded with passes.
func NewRegistry[T any](passes ...Pass[T]) *Registry[T] {
	r := &Registry[T]{
		passes: make(map[string]Pass[T]),
	}
	for _, p := range passes {
		r.MustRegister(p)
	}
	return r
}

// Register adds a pass by its Name(). Duplicate names return an error.
func (r *Registry[T]) Register(pass Pass[T]) error {
	if pass == nil {
		return fmt.Errorf("optimize: pass is required")
	}
	name := pass.Name()
	if name == "" {
		return fmt.Errorf("optimize: pass name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.passes[name]; exists {
		return fmt.Errorf("optimize: pass %q already registered", name)
	}
	r.passes[name] = pass
	return nil
}

// MustRegister panics on registration failure.
func (r *Registry[T]) MustRegister(pass Pass[T]) {
	if err := r.Register(pass); err != nil {
		panic(err)
	}
}

// Get retrieves a pass by name.
func (r *Registry[T]) Get(name string) (Pass[T], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pass, ok := r.passes[name]
	if !ok {
		return nil, fmt.Errorf("optimize: pass %q not found", name)
	}
	return pass, nil
}

// List returns the sorted pass names.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.passes))
	for name := range r.passes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a pass is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.passes[name]
	return ok
}

// Resolve builds a chain from names, preserving their order.
func (r *Registry[T]) Resolve(names []string) (Chain[T], error) {
	chain := make(Chain[T], 0, len(names))
	for _, name := range names {
		pass, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, pass)
	}
	return chain, nil
}
