package stream

import (
	"context"
	"sort"
)

// Listener receives the changes of one kind.
type Listener func(ctx context.Context, change Change) error

// Registry holds the listeners for each kind.
type Registry struct {
	listeners map[string][]Listener
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string][]Listener),
	}
}

// Register adds a listener for kind. Listeners run in registration order.
// This should be called before the handler receives events.
func (r *Registry) Register(kind string, l Listener) {
	r.listeners[kind] = append(r.listeners[kind], l)
}

// ListenersOf returns the listeners registered for kind.
func (r *Registry) ListenersOf(kind string) []Listener {
	return r.listeners[kind]
}

// HasListeners returns true if kind has any registered listener.
func (r *Registry) HasListeners(kind string) bool {
	return len(r.listeners[kind]) > 0
}

// Kinds returns the kinds with listeners, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.listeners))
	for kind := range r.listeners {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
