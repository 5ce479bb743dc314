package api

import (
	"fmt"
	"sort"
)

// State is the parameter namespace a step sees while it runs.
//
// Parameters are typed, named slots scoped to a process instance: created on
// first assignment, readable and writable by any step, and never removed
// except explicitly via Delete. One request drives one instance at a time,
// so State is not synchronized.
type State struct {
	params map[string]any
}

// NewState creates a State seeded with the given parameters. The map is
// used directly; pass a copy if the caller retains it.
func NewState(params map[string]any) *State {
	if params == nil {
		params = make(map[string]any)
	}
	return &State{params: params}
}

// Set assigns a parameter, creating it on first assignment.
func (s *State) Set(name string, value any) {
	s.params[name] = value
}

// Get returns the raw value of a parameter and whether it exists.
func (s *State) Get(name string) (any, bool) {
	v, ok := s.params[name]
	return v, ok
}

// Has reports whether the parameter exists, regardless of its value.
func (s *State) Has(name string) bool {
	_, ok := s.params[name]
	return ok
}

// Delete explicitly removes a parameter. Deleting a missing parameter is a
// no-op.
func (s *State) Delete(name string) {
	delete(s.params, name)
}

// Names returns the parameter names in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.params))
	for n := range s.params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of parameters.
func (s *State) Len() int {
	return len(s.params)
}

// Snapshot returns a shallow copy of the parameter map, suitable for
// persisting on the instance.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// Param returns a parameter converted to T. It errors if the parameter is
// missing or holds a value of a different type.
func Param[T any](s *State, name string) (T, error) {
	var zero T
	v, ok := s.params[name]
	if !ok {
		return zero, fmt.Errorf("parameter %q not set", name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("parameter %q has type %T, want %T", name, v, zero)
	}
	return t, nil
}

// ParamOr returns a parameter converted to T, or fallback if the parameter
// is missing or of a different type.
func ParamOr[T any](s *State, name string, fallback T) T {
	v, ok := s.params[name]
	if !ok {
		return fallback
	}
	if t, ok := v.(T); ok {
		return t
	}
	return fallback
}
