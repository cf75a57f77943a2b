package macro

import (
	"fmt"
	"maps"
	"sync"
)

// Environment is the flat variable mapping of one run. Keys are case
// sensitive and values are strings, float64 numbers or booleans.
type Environment struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewEnvironment returns an environment seeded with vars. Values that are
// not a string, number or boolean are rejected.
func NewEnvironment(vars map[string]any) (*Environment, error) {
	env := &Environment{vars: make(map[string]any, len(vars))}
	for k, v := range vars {
		if err := env.Set(k, v); err != nil {
			return nil, err
		}
	}
	return env, nil
}

// Merge returns a new environment holding base overridden by overrides.
func Merge(base *Environment, overrides map[string]any) (*Environment, error) {
	var seed map[string]any
	if base != nil {
		seed = base.Snapshot()
	} else {
		seed = map[string]any{}
	}
	for k, v := range overrides {
		seed[k] = v
	}
	return NewEnvironment(seed)
}

// Set stores value under name.
func (e *Environment) Set(name string, value any) error {
	v, err := NormalizeValue(value)
	if err != nil {
		return &ValidationError{Field: "variable " + name, Reason: err.Error()}
	}
	e.mu.Lock()
	e.vars[name] = v
	e.mu.Unlock()
	return nil
}

// Get returns the value stored under name.
func (e *Environment) Get(name string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[name]
	return v, ok
}

// Delete removes name.
func (e *Environment) Delete(name string) {
	e.mu.Lock()
	delete(e.vars, name)
	e.mu.Unlock()
}

// Len returns the number of variables.
func (e *Environment) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.vars)
}

// Snapshot returns a copy of the current mapping.
func (e *Environment) Snapshot() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.vars)
}

// NormalizeValue maps v onto string, float64 or bool.
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string, bool:
		return x, nil
	case nil:
		return "", nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}
