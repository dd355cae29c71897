// Package factors implements the uniform lifecycle every host capability
// (WASI, variables, key-value, SQLite, outbound networking, ...) goes
// through: init once per process, configure_app once per app load,
// prepare once per event (synchronous), build once per event (may await).
// The Registry type aggregates a fixed, ordered set of Factor
// implementations and drives all four phases in declaration order.
package factors

import (
	"context"

	"github.com/wasmfactors/runtime/pkg/manifest"
)

// Linker is the minimal surface a Factor needs to add host-function
// imports during Init. The concrete linker (wrapping the embedder's Wasm
// engine) is supplied by internal/executor; factors only need to name an
// interface and register a handler against it.
type Linker interface {
	// AddImport registers fn as the implementation of interfaceName/name,
	// replacing any previous registration for the same pair (last writer
	// wins across linked interface versions, per spec.md §6's "newer
	// versions delegate to older handlers" note).
	AddImport(interfaceName, name string, fn any) error
}

// AppConfigContext is what configure_app sees: the locked app plus a
// handle to this factor's slice of runtime configuration.
type AppConfigContext interface {
	// ComponentMetadata returns the per-component allow-list/label bag
	// for componentID (key_value_stores, sqlite_databases, ai_models,
	// allowed_outbound_hosts) as the locked app recorded it.
	ComponentMetadata(componentID string) (ComponentMetadata, bool)
	// ComponentIDs lists every component id in the locked app, in a
	// stable order.
	ComponentIDs() []string
	// AppVariables returns the app-level variable declarations (default,
	// required, secret), keyed by name.
	AppVariables() map[string]manifest.Variable
	// RuntimeConfig returns the raw runtime-config value registered
	// under key, consuming it (a second read of the same key is an
	// error — see RuntimeConfigTracker).
	RuntimeConfig(key string) (any, error)
}

// ComponentMetadata is the subset of a locked component a factor's
// configure_app phase needs.
type ComponentMetadata struct {
	AllowedOutboundHosts []string
	KeyValueStores       []string
	SQLiteDatabases      []string
	AIModels             []string
	Variables            map[string]string
	Environment          map[string]string
}

// PrepareContext is what a factor's prepare phase sees: the component
// being instantiated, and read access to the builders already produced
// by earlier-declared factors in the same event.
type PrepareContext interface {
	ComponentID() string
	// Builder returns the InstanceBuilder a previously-prepared factor
	// (identified by name, declared earlier in the registry) produced
	// for this event. Returns DependencyOrderingError if name names a
	// factor declared later, and NoSuchFactor if name is not registered
	// at all.
	Builder(name string) (any, error)
}

// Factor is the uniform interface every host capability implements. T is
// left to the concrete type via `any` returns because Go has no
// associated-type polymorphism; callers type-assert the returned value to
// the concrete AppState/InstanceBuilder/InstanceState type they expect,
// the same "tagged dispatch, checked at registration" design spec.md §9
// calls for.
type Factor interface {
	// Name is the unique string key this factor is registered under, and
	// the key its RuntimeConfig section is read from (e.g.
	// "key_value_store").
	Name() string

	// Init mutates the linker to add this factor's host-function
	// imports. Called once per process. A non-nil error is fatal at the
	// process level.
	Init(linker Linker) error

	// ConfigureApp inspects the locked app and produces this factor's
	// shared app state. Called once per app load. A non-nil error is
	// fatal for the app.
	ConfigureApp(ctx context.Context, appCtx AppConfigContext) (any, error)

	// Prepare produces this factor's instance builder for one event.
	// Must be synchronous and non-blocking (spec.md §5): no I/O.
	Prepare(appState any, prepCtx PrepareContext) (any, error)

	// Build finalizes the builder into the sub-state embedded in the
	// store. May await (connection checkout, pool wait).
	Build(ctx context.Context, builder any) (any, error)
}
