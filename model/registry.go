package model

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrDuplicateName = errors.New("model name already registered to a different type")
	ErrEmptyName     = errors.New("model name cannot be empty")
)

// Registry maps model names to types so that fields can refer to a
// model declared later, or in another package, by name.
type Registry struct {
	mu sync.RWMutex
	m  map[string]reflect.Type
}

// DefaultRegistry backs the package-level Register function and every
// Arena created without its own registry.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]reflect.Type)}
}

// Register binds name to t. Registering the same pair twice is a no-op.
func (r *Registry) Register(name string, t reflect.Type) error {
	if name == "" {
		return ErrEmptyName
	}
	t = Indirect(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.m[name]; ok && existing != t {
		return fmt.Errorf("%w: %s is %s", ErrDuplicateName, name, existing)
	}
	r.m[name] = t
	return nil
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.m[name]
	return t, ok
}

// Register binds M under name in the DefaultRegistry. An empty name
// uses the Go type name.
func Register[M any](name string) error {
	t := reflect.TypeOf((*M)(nil)).Elem()
	if name == "" {
		name = Indirect(t).Name()
	}
	return DefaultRegistry.Register(name, t)
}
