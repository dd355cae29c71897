package factors

import (
	"context"
	"fmt"
)

// Registry aggregates a fixed, ordered set of Factor implementations.
// Order is significant: a factor may read the already-prepared builder of
// any factor declared earlier in the same Registry, never a later one.
type Registry struct {
	order   []string
	byName  map[string]Factor
	appSt   map[string]any
	configs map[string]any // backing store consulted by RuntimeConfig
}

// NewRegistry builds a Registry from factors in the given declaration
// order. Registering the same factor name twice is a programmer error and
// panics immediately, the same way the teacher's config package treats a
// duplicate runtime-config key registration as unrecoverable at startup.
func NewRegistry(fs ...Factor) *Registry {
	r := &Registry{byName: map[string]Factor{}, appSt: map[string]any{}}
	for _, f := range fs {
		if _, exists := r.byName[f.Name()]; exists {
			panic(fmt.Sprintf("factors: duplicate factor name %q", f.Name()))
		}
		r.byName[f.Name()] = f
		r.order = append(r.order, f.Name())
	}
	return r
}

// Init runs every factor's Init phase in declaration order against
// linker. The first error is fatal and stops the walk.
func (r *Registry) Init(linker Linker) error {
	for _, name := range r.order {
		if err := r.byName[name].Init(linker); err != nil {
			return fmt.Errorf("factor %q init: %w", name, err)
		}
	}
	return nil
}

// ConfigureApp runs every factor's ConfigureApp phase in declaration
// order, storing each factor's app state for later Prepare/Build calls
// and for appConfigCtx's ComponentMetadata lookups by subsequent factors.
func (r *Registry) ConfigureApp(ctx context.Context, appCtx AppConfigContext) error {
	for _, name := range r.order {
		st, err := r.byName[name].ConfigureApp(ctx, appCtx)
		if err != nil {
			return fmt.Errorf("factor %q configure_app: %w", name, err)
		}
		r.appSt[name] = st
	}
	return nil
}

// AppState returns the app state a prior ConfigureApp call produced for
// the named factor.
func (r *Registry) AppState(name string) (any, error) {
	if _, ok := r.byName[name]; !ok {
		return nil, &RegistryError{Kind: NoSuchFactor, Name: name}
	}
	st, ok := r.appSt[name]
	if !ok {
		return nil, &RegistryError{Kind: DependencyOrderingError, Name: name}
	}
	return st, nil
}

// PrepareAll runs every factor's Prepare phase in declaration order for
// one event, returning the ordered map of builders. componentID and a
// dependency accessor are supplied via newPrepareCtx, which the caller
// (internal/executor) constructs per event.
func (r *Registry) PrepareAll(newPrepareCtx func(builders *BuilderSet) PrepareContext) (*BuilderSet, error) {
	builders := &BuilderSet{order: r.order, byName: map[string]any{}}
	for _, name := range r.order {
		pc := newPrepareCtx(builders)
		appSt, err := r.AppState(name)
		if err != nil {
			return nil, &FactorBuildError{Factor: name, Err: err}
		}
		b, err := r.byName[name].Prepare(appSt, pc)
		if err != nil {
			return nil, &FactorBuildError{Factor: name, Err: err}
		}
		builders.byName[name] = b
	}
	return builders, nil
}

// BuildAll runs every factor's Build phase in declaration order,
// producing the ordered InstanceState set embedded in the store.
func (r *Registry) BuildAll(ctx context.Context, builders *BuilderSet) (*StateSet, error) {
	states := &StateSet{order: r.order, byName: map[string]any{}}
	for _, name := range r.order {
		b, err := builders.Get(name)
		if err != nil {
			return nil, &FactorBuildError{Factor: name, Err: err}
		}
		st, err := r.byName[name].Build(ctx, b)
		if err != nil {
			return nil, &FactorBuildError{Factor: name, Err: err}
		}
		states.byName[name] = st
	}
	return states, nil
}

// BuilderSet is the instance-builder tuple produced by one PrepareAll
// call: one builder per factor, keyed by factor name, readable in
// declaration order only (earlier factors by index j < i are visible to
// factor i's Prepare call; later ones are not yet built).
type BuilderSet struct {
	order  []string
	byName map[string]any
}

// Get returns the builder for the named factor, or a RegistryError if the
// factor is unknown or has not been prepared yet this event.
func (b *BuilderSet) Get(name string) (any, error) {
	found := false
	for _, n := range b.order {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, &RegistryError{Kind: NoSuchFactor, Name: name}
	}
	v, ok := b.byName[name]
	if !ok {
		return nil, &RegistryError{Kind: DependencyOrderingError, Name: name}
	}
	return v, nil
}

// StateSet is the final per-instance state: one sub-state per factor,
// embedded in the wasm store's host data.
type StateSet struct {
	order  []string
	byName map[string]any
}

// Get returns the instance state for the named factor.
func (s *StateSet) Get(name string) (any, error) {
	v, ok := s.byName[name]
	if !ok {
		return nil, &RegistryError{Kind: NoSuchFactor, Name: name}
	}
	return v, nil
}

// Names returns the registry's factor names in declaration order.
func (s *StateSet) Names() []string { return append([]string(nil), s.order...) }
