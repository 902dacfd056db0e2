package collab

import (
	"fmt"
	"sort"
	"sync"
)

// Settings carries backend-specific configuration (opaque to the runtime).
type Settings map[string]any

// Factory constructs a collaborator backend from its settings.
type Factory func(Settings) (Collaborator, error)

// Registry maintains the known collaborator backends by name, so deployments
// can select one in configuration without the runner importing it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a backend factory. Returns an error if the name exists.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("collab: backend name is required")
	}
	if factory == nil {
		return fmt.Errorf("collab: factory is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("collab: backend %s already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs a backend by name.
func (r *Registry) Resolve(name string, settings Settings) (Collaborator, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("collab: unknown backend %s", name)
	}
	return factory(settings)
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry preloaded with the backends that ship in-tree.
func Builtin() *Registry {
	reg := NewRegistry()
	reg.MustRegister("scripted", func(s Settings) (Collaborator, error) {
		return NewScript(), nil
	})
	return reg
}
