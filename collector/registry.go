package collector

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrUnknownCollector is returned when a name has no registered factory.
	ErrUnknownCollector = errors.New("unknown collector")

	// ErrDuplicateCollector is returned when a name is registered twice.
	ErrDuplicateCollector = errors.New("collector already registered")
)

// Factory builds a collector from the shared capabilities.
type Factory func(caps Capabilities) (Collector, error)

// Registry maps collector names to factories. It is populated explicitly at
// process start; there is no self-registration through package init.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("collector name is required")
	}
	if factory == nil {
		return errors.New("collector factory is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCollector, name)
	}
	r.factories[name] = factory
	return nil
}

// Create builds the named collector with the given capabilities.
func (r *Registry) Create(name string, caps Capabilities) (Collector, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollector, name)
	}
	return factory(caps)
}

// Names lists the registered collector names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
