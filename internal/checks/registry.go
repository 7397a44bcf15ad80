package checks

import "fmt"

// Registry is the fixed, ordered set of checkers run against every account.
type Registry interface {
	// Register adds c. Panics on a duplicate check name.
	Register(c Checker)

	// All returns the registered checkers in registration order.
	All() []Checker

	// Len returns the number of registered checkers.
	Len() int
}

// DefaultRegistry is a simple, ordered, in-memory registry.
// Register panics on duplicate check names to catch wiring mistakes at startup.
type DefaultRegistry struct {
	checkers []Checker
	index    map[string]struct{}
}

// NewDefaultRegistry returns a registry holding cs, in order.
func NewDefaultRegistry(cs ...Checker) *DefaultRegistry {
	r := &DefaultRegistry{index: make(map[string]struct{})}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

// Register adds c to the registry. Panics if the same name is registered twice.
func (r *DefaultRegistry) Register(c Checker) {
	if _, exists := r.index[c.Name()]; exists {
		panic(fmt.Sprintf("duplicate check name: %q", c.Name()))
	}
	r.checkers = append(r.checkers, c)
	r.index[c.Name()] = struct{}{}
}

// All returns a copy of the registered checkers in registration order.
func (r *DefaultRegistry) All() []Checker {
	out := make([]Checker, len(r.checkers))
	copy(out, r.checkers)
	return out
}

// Len returns the number of registered checkers.
func (r *DefaultRegistry) Len() int {
	return len(r.checkers)
}
