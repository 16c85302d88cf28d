// Package transform provides the built-in transform steps and the registry
// that resolves configured step names into instances at DAG construction.
//
// Steps are pure: one payload in, zero or more payloads out, no shared
// mutable state. The built-in set is deliberately small — project, filter,
// split, rename — enough to express field selection, predicate drops, and
// one-to-many fan-out without custom code.
package transform

import (
	"fmt"
	"sync"

	"github.com/weftlabs/weft/internal/dag"
)

// Factory creates a configured step instance from node parameters.
type Factory func(params map[string]any) (dag.TransformStep, error)

// Registry maps step names to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Builtin returns a registry pre-populated with the built-in steps.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register("project", newProject)
	r.Register("filter", newFilter)
	r.Register("split", newSplit)
	r.Register("rename", newRename)
	return r
}

// Register adds a factory under name. Panics on duplicate registration:
// two implementations claiming one name is a programming error, not a
// runtime condition.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f == nil {
		panic(fmt.Sprintf("transform: Register factory is nil for %q", name))
	}
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("transform: Register called twice for %q", name))
	}
	r.factories[name] = f
}

// New instantiates the named step with params.
func (r *Registry) New(name string, params map[string]any) (dag.TransformStep, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown transform step %q", name)
	}
	return f(params)
}

// Resolver adapts the registry to the dag.StepResolver contract.
func (r *Registry) Resolver() dag.StepResolver {
	return func(spec dag.NodeSpec) (dag.TransformStep, error) {
		return r.New(spec.Step, spec.Params)
	}
}

// Names returns the registered step names. Useful for error messages.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	return names
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, v)
	}
	return s, nil
}

// stringsParam extracts a required list-of-strings parameter.
func stringsParam(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, fmt.Errorf("missing parameter %q", key)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a list of strings, got %T", key, v)
	}
	out := make([]string, len(list))
	for i, elem := range list {
		s, ok := elem.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q[%d] must be a string, got %T", key, i, elem)
		}
		out[i] = s
	}
	return out, nil
}
