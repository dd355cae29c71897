// Package host wires the locked app, the factor registry, and the
// engine/executor together into the one long-lived object cmd/hostctl
// drives: App. It is the glue layer factor packages' Init/ConfigureApp
// expect but never construct themselves.
package host

import (
	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/lockedapp"
	"github.com/wasmfactors/runtime/pkg/manifest"
)

// appConfigContext adapts a *lockedapp.App plus a runtime-config tracker
// to factors.AppConfigContext.
type appConfigContext struct {
	app     *lockedapp.App
	ids     []string
	tracker *factors.RuntimeConfigTracker
}

func newAppConfigContext(app *lockedapp.App, tracker *factors.RuntimeConfigTracker) *appConfigContext {
	ids := make([]string, 0, len(app.Components))
	for id := range app.Components {
		ids = append(ids, id)
	}
	return &appConfigContext{app: app, ids: ids, tracker: tracker}
}

func (c *appConfigContext) ComponentIDs() []string {
	return append([]string(nil), c.ids...)
}

func (c *appConfigContext) ComponentMetadata(componentID string) (factors.ComponentMetadata, bool) {
	comp, ok := c.app.Components[componentID]
	if !ok {
		return factors.ComponentMetadata{}, false
	}
	return factors.ComponentMetadata{
		AllowedOutboundHosts: comp.AllowedOutboundHosts,
		KeyValueStores:       comp.KeyValueStores,
		SQLiteDatabases:      comp.SQLiteDatabases,
		AIModels:             comp.AIModels,
		Variables:            comp.Variables,
		Environment:          comp.Environment,
	}, true
}

func (c *appConfigContext) AppVariables() map[string]manifest.Variable {
	return c.app.Variables
}

func (c *appConfigContext) RuntimeConfig(key string) (any, error) {
	return c.tracker.Get(key)
}
