package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"Qless/internal/domain/models"
	"Qless/internal/queue"
)

// Handler performs a job.
type Handler interface {
	Perform(ctx context.Context, job *queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *queue.Job) error

func (f HandlerFunc) Perform(ctx context.Context, job *queue.Job) error {
	return f(ctx, job)
}

// Factory builds a handler for an identifier.
type Factory func() (Handler, error)

// Registry maps handler identifiers (job klass names) to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under id. The factory is invoked once here so a
// broken factory is rejected at registration instead of at dispatch.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return models.InvalidConfiguration("handler identifier is required")
	}
	if factory == nil {
		return models.InvalidConfiguration("handler %q has no factory", id)
	}
	h, err := factory()
	if err != nil {
		return fmt.Errorf("%w: handler %q: %v", models.ErrInvalidConfiguration, id, err)
	}
	if h == nil {
		return models.InvalidConfiguration("handler %q factory returned nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
	return nil
}

// RegisterHandler registers a single shared handler instance under id.
func (r *Registry) RegisterHandler(id string, h Handler) error {
	if h == nil {
		return models.InvalidConfiguration("handler %q is nil", id)
	}
	return r.Register(id, func() (Handler, error) { return h, nil })
}

// Resolve builds the handler registered under id.
func (r *Registry) Resolve(id string) (Handler, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", models.ErrUnresolvableHandler, id)
	}
	h, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", models.ErrUnresolvableHandler, id, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %q resolved to nil", models.ErrUnresolvableHandler, id)
	}
	return h, nil
}

// Names lists registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for id := range r.factories {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}
