package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry maps task names to their implementations.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[Name]Func
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[Name]Func),
	}
}

// Register binds fn to name, replacing any previous binding.
func (r *Registry) Register(name Name, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterTyped registers a strongly typed task function. The wrapper
// rejects inputs of the wrong type and returns the concrete payload as a
// [Payload].
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterTyped[I Input, O Payload](r *Registry, name Name, fn func(ctx context.Context, in I) (O, error)) {
	r.Register(name, func(ctx context.Context, in Input) (Payload, error) {
		typed, ok := in.(I)
		if !ok {
			return nil, fmt.Errorf("task %s: unexpected input type %T", name, in)
		}
		return fn(ctx, typed)
	})
}

// Get returns the function registered for name.
// Returns false if no function is registered.
func (r *Registry) Get(name Name) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns all registered task names, sorted.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]Name, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
