package pipeline

import (
	"fmt"
	"slices"
)

// Registry maps step names to their handlers. It is populated during
// startup and must not be mutated once the orchestrator is running; reads
// are therefore lock-free.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds a handler under its name.
func (r *Registry) Register(h Handler) error {
	name := h.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrUnknownStep)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateStep, name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Validate checks that every step in the sequence has a registered handler,
// so that bad plans are rejected at ingress instead of inside a worker.
func (r *Registry) Validate(steps []string) error {
	for _, s := range steps {
		if _, ok := r.handlers[s]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStep, s)
		}
	}
	return nil
}

// Steps returns the registered step names, sorted.
func (r *Registry) Steps() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
