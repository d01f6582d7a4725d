package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"reviewline/internal/domain"
)

// EvaluateFunc decides whether a feature holds for an (actor, target)
// pair. actor is nil for anonymous callers. Evaluators are pure apart from
// read-only lookups; a returned error is captured by the resolver and
// surfaced as EvaluationFailed, never propagated raw.
type EvaluateFunc func(ctx context.Context, actor *domain.Actor, target Target) (Decision, error)

// Registry maps feature names to evaluators. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	features map[string]EvaluateFunc
}

func NewRegistry() *Registry {
	return &Registry{features: map[string]EvaluateFunc{}}
}

// Register adds a feature. Duplicate names and names containing an
// underscore are configuration errors.
func (r *Registry) Register(name string, fn EvaluateFunc) error {
	if name == "" {
		return fmt.Errorf("feature name is required")
	}
	if strings.Contains(name, "_") {
		return fmt.Errorf("feature name %q: underscores not allowed", name)
	}
	if fn == nil {
		return fmt.Errorf("feature %q: nil evaluator", name)
	}
	if _, dup := r.features[name]; dup {
		return fmt.Errorf("feature %q: already registered", name)
	}
	r.features[name] = fn
	return nil
}

// MustRegister is Register for startup wiring, where a bad registration is
// fatal.
func (r *Registry) MustRegister(name string, fn EvaluateFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

func (r *Registry) Find(name string) (EvaluateFunc, bool) {
	fn, ok := r.features[name]
	return fn, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.features))
	for n := range r.features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
