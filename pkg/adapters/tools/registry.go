package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/conduitci/conduit/pkg/ports"
)

// Registry maps adapter names, as referenced by pipeline definitions, to
// stage adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ports.StageAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]ports.StageAdapter)}
}

// Register adds an adapter under its own name.
func (r *Registry) Register(adapter ports.StageAdapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := adapter.Name()
	if name == "" {
		return fmt.Errorf("adapter has no name")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter already registered: %q", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get resolves an adapter by name.
func (r *Registry) Get(name string) (ports.StageAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
