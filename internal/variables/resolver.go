package variables

import (
	"context"
	"fmt"
	"sync"

	"github.com/wasmfactors/runtime/pkg/manifest"
)

// Provider is an external variable source (environment, key vault, secret
// store). Get returns ("", false) when the provider has no value for key,
// never an error for a plain miss — callers distinguish "not found" from
// "lookup failed" via the returned error.
type Provider interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func(ctx context.Context, key string) (string, bool, error)

func (f ProviderFunc) Get(ctx context.Context, key string) (string, bool, error) {
	return f(ctx, key)
}

// Error distinguishes the resolver's three failure modes.
type Error struct {
	Kind ErrorKind
	Name string
	Msg  string
}

type ErrorKind int

const (
	InvalidName ErrorKind = iota
	Undefined
	ProviderFailure
)

func (e *Error) Error() string {
	switch e.Kind {
	case InvalidName:
		return fmt.Sprintf("invalid variable name %q: %s", e.Name, e.Msg)
	case Undefined:
		return fmt.Sprintf("undefined variable %q", e.Name)
	default:
		return fmt.Sprintf("provider error resolving %q: %s", e.Name, e.Msg)
	}
}

// Resolver evaluates `{{ key }}` templates against a per-component scope,
// then the provider chain, then app-level variable defaults.
// Resolution results are memoized per (componentID, key) for the lifetime
// of the Resolver and no method clears the memo: a Resolver shared across
// events (the variables factor builds one per configured app) keeps
// returning the first value it resolved for a key even if a provider's
// value changes later.
type Resolver struct {
	appVars   map[string]manifest.Variable
	scopes    map[string]map[string]string
	providers []Provider
	mu        sync.Mutex
	cache     map[cacheKey]string
}

type cacheKey struct {
	component string
	key       string
}

// NewResolver builds a Resolver seeded with app-level variable
// declarations (name -> default/required/secret).
func NewResolver(appVars map[string]manifest.Variable) *Resolver {
	return &Resolver{
		appVars: appVars,
		scopes:  map[string]map[string]string{},
		cache:   map[cacheKey]string{},
	}
}

// AddComponentVariables registers the component-scoped variable map
// (already-templated string values, pre-resolution) for componentID.
func (r *Resolver) AddComponentVariables(componentID string, vars map[string]string) {
	r.scopes[componentID] = vars
}

// AddProvider appends p to the provider chain. Providers are consulted in
// registration order, after the component scope and before app defaults,
// so a provider value overrides a declared default.
func (r *Resolver) AddProvider(p Provider) {
	r.providers = append(r.providers, p)
}

// Resolve looks up key within componentID's scope and returns its
// resolved string value.
func (r *Resolver) Resolve(ctx context.Context, componentID, key string) (string, error) {
	if err := manifest.ValidateID(key, manifest.SnakeCase); err != nil {
		return "", &Error{Kind: InvalidName, Name: key, Msg: err.Error()}
	}

	r.mu.Lock()
	if v, ok := r.cache[cacheKey{componentID, key}]; ok {
		r.mu.Unlock()
		return v, nil
	}
	r.mu.Unlock()

	v, err := r.lookup(ctx, componentID, key)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cache[cacheKey{componentID, key}] = v
	r.mu.Unlock()
	return v, nil
}

func (r *Resolver) lookup(ctx context.Context, componentID, key string) (string, error) {
	if scope, ok := r.scopes[componentID]; ok {
		if v, ok := scope[key]; ok {
			return v, nil
		}
	}
	decl, declared := r.appVars[key]
	for _, p := range r.providers {
		v, ok, err := p.Get(ctx, key)
		if err != nil {
			return "", &Error{Kind: ProviderFailure, Name: key, Msg: err.Error()}
		}
		if ok {
			return v, nil
		}
	}
	if declared && decl.Default != nil {
		return *decl.Default, nil
	}
	return "", &Error{Kind: Undefined, Name: key}
}

// ResolveTemplate expands every expression part of tpl against
// componentID's scope and concatenates the result.
func (r *Resolver) ResolveTemplate(ctx context.Context, componentID string, tpl Template) (string, error) {
	var out []byte
	for _, p := range tpl.parts {
		if p.kind == partLit {
			out = append(out, p.text...)
			continue
		}
		v, err := r.Resolve(ctx, componentID, p.key)
		if err != nil {
			return "", err
		}
		out = append(out, v...)
	}
	return string(out), nil
}

// ResolveAll expands every component-scoped variable template registered
// for componentID and returns the resolved (name, value) pairs.
func (r *Resolver) ResolveAll(ctx context.Context, componentID string) ([]KV, error) {
	scope := r.scopes[componentID]
	out := make([]KV, 0, len(scope))
	for name, raw := range scope {
		tpl, err := ParseTemplate(raw)
		if err != nil {
			return nil, &Error{Kind: InvalidName, Name: name, Msg: err.Error()}
		}
		v, err := r.ResolveTemplate(ctx, componentID, tpl)
		if err != nil {
			return nil, err
		}
		out = append(out, KV{Name: name, Value: v})
	}
	return out, nil
}

// KV is a resolved name/value pair.
type KV struct {
	Name  string
	Value string
}

// IsSecret reports whether name is declared as a secret app variable;
// callers must never include the resolved value in logs or error
// messages when this returns true.
func (r *Resolver) IsSecret(name string) bool {
	decl, ok := r.appVars[name]
	return ok && decl.Secret
}
