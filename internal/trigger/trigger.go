// Package trigger defines the generic contract trigger implementations
// (in this module: HTTP, Redis pub/sub, websocket) satisfy to dispatch external events
// into prepared component instances. The executor itself is agnostic of
// event shape; a trigger chooses which guest export to invoke and in
// what priority order to probe for it.
package trigger

import (
	"context"
	"fmt"

	"github.com/wasmfactors/runtime/internal/executor"
	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/lockedapp"
)

// Trigger is implemented once per trigger type (http, redis, websocket).
// Each implementation's own Options, passed to its constructor, are
// trigger-specific and opaque to the executor.
type Trigger interface {
	// Type returns the trigger type tag matched against
	// lockedapp.Trigger.Type entries in the manifest.
	Type() string
	// UpdateLinker optionally adds trigger-specific host imports (e.g.
	// the inbound-http handler surface) before the engine's linker is
	// finalized. Most triggers only consume guest exports and can leave
	// this a no-op.
	UpdateLinker(linker factors.Linker) error
	// Run drives the event loop against exec until ctx is cancelled,
	// dispatching each external event to the component(s) named by cfg.
	Run(ctx context.Context, exec *executor.Executor, cfg Config) error
}

// Config is the slice of a locked app a Run call needs: the trigger
// entries. It carries no component metadata beyond the ids the entries
// reference, since export names are probed against the instantiated
// module directly.
type Config struct {
	Triggers []lockedapp.Trigger
}

// ExportProbe names one guest export a trigger is willing to invoke,
// most to least preferred.
type ExportProbe struct {
	Name        string
	Description string
}

// ErrNoCompatibleExport is returned when none of a trigger's candidate
// exports is present on an instantiated component. Exports are probed
// per event, after Instantiate, not at app load: the triggers in this
// module fail only the current event with it (an HTTP 502, a websocket
// error reply, a logged Redis dispatch failure) and keep serving.
type ErrNoCompatibleExport struct {
	ComponentID string
	TriggerType string
	Tried       []string
}

func (e *ErrNoCompatibleExport) Error() string {
	return fmt.Sprintf("trigger %q: component %q exports none of %v", e.TriggerType, e.ComponentID, e.Tried)
}

// ProbeExport returns the first name in probes (in priority order) that
// inst exports, or ErrNoCompatibleExport.
func ProbeExport(inst *executor.Instance, triggerType string, probes []ExportProbe) (string, error) {
	names := make([]string, 0, len(probes))
	for _, p := range probes {
		names = append(names, p.Name)
		if fn := inst.Module.ExportedFunction(p.Name); fn != nil {
			return p.Name, nil
		}
	}
	return "", &ErrNoCompatibleExport{ComponentID: inst.ComponentID, TriggerType: triggerType, Tried: names}
}
