package channels

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the adapters the router can deliver through, keyed by
// channel name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry constructs an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter under its Name.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter is required")
	}
	return r.RegisterAs(a.Name(), a)
}

// RegisterAs adds an adapter under an explicit channel name.
func (r *Registry) RegisterAs(name string, a Adapter) error {
	if a == nil {
		return fmt.Errorf("adapter is required")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("adapter name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}

	r.adapters[name] = a
	return nil
}

// Get returns the adapter registered for a channel.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.TrimSpace(name)]
	return a, ok
}

// IsRegistered returns true when an adapter exists for the channel.
func (r *Registry) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns sorted registered channel names.
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

// Available returns sorted names of adapters that are currently usable.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name, a := range r.adapters {
		if a.Available() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
