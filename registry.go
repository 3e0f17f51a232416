package tangguh

import (
	"fmt"
	"sync"
)

// DefaultMaxRegistryEntries caps name-keyed registries. Operation names are
// often derived from request attributes, so an unbounded registry is a memory
// leak waiting for a high-cardinality or adversarial key source.
const DefaultMaxRegistryEntries = 1000

// Registry maps sanitized operation names to lazily-created instances, with
// a hard cap on entry count. It is safe for concurrent use.
type Registry[T any] struct {
	mu         sync.RWMutex
	entries    map[string]T
	maxEntries int
	create     func(name string) (T, error)
}

// NewRegistry creates a registry that builds missing entries with create.
// maxEntries <= 0 selects DefaultMaxRegistryEntries.
func NewRegistry[T any](maxEntries int, create func(name string) (T, error)) *Registry[T] {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxRegistryEntries
	}
	return &Registry[T]{
		entries:    make(map[string]T),
		maxEntries: maxEntries,
		create:     create,
	}
}

// Get returns the instance for name, creating it on first lookup. The name
// is sanitized before use; Get fails when sanitization rejects the name or
// when creating a new entry would exceed the registry's maximum size.
func (r *Registry[T]) Get(name string) (T, error) {
	var zero T

	key, err := SanitizeOperationName(name)
	if err != nil {
		return zero, err
	}

	r.mu.RLock()
	existing, ok := r.entries[key]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another caller may have created it between the locks.
	if existing, ok := r.entries[key]; ok {
		return existing, nil
	}

	if len(r.entries) >= r.maxEntries {
		return zero, fmt.Errorf("%w: %d entries, cannot create %q", ErrRegistryFull, r.maxEntries, key)
	}

	created, err := r.create(key)
	if err != nil {
		return zero, err
	}
	r.entries[key] = created
	return created, nil
}

// Len returns the current number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Delete removes the entry for name, if present. The name is sanitized the
// same way Get sanitizes it so the two always agree on keys.
func (r *Registry[T]) Delete(name string) bool {
	key, err := SanitizeOperationName(name)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// Clear removes every entry.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]T)
}
