package responder

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when a requested responder kind is not registered.
var ErrUnknownKind = errors.New("responder: unknown responder kind") //nolint:gochecknoglobals // sentinel error

// Registry manages responder factories by kind ("genai", "scripted", ...).
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory for a responder kind.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Create instantiates a responder of the given kind for identity.
func (r *Registry) Create(kind string, identity Identity) (Responder, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("responder.Registry.Create(%q): %w", kind, ErrUnknownKind)
	}

	resp, err := factory(identity)
	if err != nil {
		return nil, fmt.Errorf("responder.Registry.Create(%q): %w", kind, err)
	}

	return resp, nil
}

// Factory returns a Factory bound to kind, suitable for handing to the arena.
func (r *Registry) Factory(kind string) Factory {
	return func(identity Identity) (Responder, error) {
		return r.Create(kind, identity)
	}
}

// Available returns registered kinds in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := slices.Collect(func(yield func(string) bool) {
		for name := range r.factories {
			if !yield(name) {
				return
			}
		}
	})
	sort.Strings(names)

	return names
}
