// Package variables adapts internal/variables.Resolver to the factor
// lifecycle: configure_app compiles one Resolver for the whole app
// (app-level declarations plus every component's variable-template
// scope); prepare/build simply pass it through with the component id.
// Nothing is resolved eagerly per event, and the guest-facing `get`
// import registered by Init is a stub, so guest calls do not reach the
// Resolver.
package variables

import (
	"context"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/variables"
)

const Name = "variables"

// Provider is supplied by the embedder (environment, vault, …) and
// appended to the resolver's provider chain at configure time.
type Provider = variables.Provider

type Factor struct {
	providers []Provider
}

// New builds a variables factor with the given provider chain, appended
// in order after every component's declared scope.
func New(providers ...Provider) *Factor {
	return &Factor{providers: providers}
}

// AppState is the compiled resolver shared read-only across instances.
type AppState struct {
	Resolver *variables.Resolver
}

// InstanceBuilder/InstanceState just carry the component id and the
// shared Resolver through, so later factors know which scope to resolve
// against.
type InstanceBuilder struct {
	ComponentID string
	Resolver    *variables.Resolver
}

type InstanceState struct {
	ComponentID string
	Resolver    *variables.Resolver
}

func (f *Factor) Name() string { return Name }

// Init registers the fermyon:spin/variables `get` import as
// variablesGetStub. Nothing in the runtime replaces the stub, so a guest
// call returns 0 without calling Resolver.Resolve.
func (f *Factor) Init(linker factors.Linker) error {
	return linker.AddImport("fermyon:spin/variables@2.0.0", "get", variablesGetStub)
}

// variablesGetStub is the function value registered for the guest `get`
// import during the single process-wide linker pass; it takes no
// arguments and always returns 0.
func variablesGetStub() uint32 { return 0 }

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	r := variables.NewResolver(appCtx.AppVariables())
	for _, id := range appCtx.ComponentIDs() {
		meta, ok := appCtx.ComponentMetadata(id)
		if !ok {
			continue
		}
		r.AddComponentVariables(id, meta.Variables)
	}
	for _, p := range f.providers {
		r.AddProvider(p)
	}
	return &AppState{Resolver: r}, nil
}

func (f *Factor) Prepare(appState any, prepCtx factors.PrepareContext) (any, error) {
	st := appState.(*AppState)
	return &InstanceBuilder{ComponentID: prepCtx.ComponentID(), Resolver: st.Resolver}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{ComponentID: b.ComponentID, Resolver: b.Resolver}, nil
}
