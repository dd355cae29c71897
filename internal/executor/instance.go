package executor

import (
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wasmfactors/runtime/internal/factor/wasi"
	"github.com/wasmfactors/runtime/internal/factors"
)

// State names the position of one instance within its lifecycle.
// Only Running -> Completed|Failed is observable to a trigger; every
// other transition is internal bookkeeping.
type State int

const (
	StatePrepared State = iota
	StateBuilt
	StateInstantiated
	StateRunning
	StateCompleted
	StateFailed
	StateDropped
)

func (s State) String() string {
	switch s {
	case StatePrepared:
		return "prepared"
	case StateBuilt:
		return "built"
	case StateInstantiated:
		return "instantiated"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// ComponentSource supplies one component's compiled-wasm bytes plus a
// cache key (content digest, or local path for dev-mode sources).
type ComponentSource struct {
	Digest string
	Bytes  []byte
}

// ComponentProvider resolves a locked component id to its wasm bytes.
// Implemented by the embedder (reads from disk, an OCI layer cache,
// etc.) — out of scope for the executor itself.
type ComponentProvider interface {
	Source(ctx context.Context, componentID string) (ComponentSource, error)
}

// InstanceCloser lets a factor's per-instance state release resources
// (close its resource.Table, return pooled connections) when the owning
// Instance drops. Factor states that hold nothing instance-scoped need
// not implement it.
type InstanceCloser interface {
	CloseInstance()
}

// Executor is built once per configured app and used to prepare and
// instantiate every event's component instance.
type Executor struct {
	engine     *Engine
	registry   *factors.Registry
	components ComponentProvider
	stdio      StdioConfig
}

// NewExecutor assembles an Executor. engine must already have had
// FinalizeLinker called against it.
func NewExecutor(engine *Engine, registry *factors.Registry, components ComponentProvider, stdio StdioConfig) *Executor {
	return &Executor{engine: engine, registry: registry, components: components, stdio: stdio}
}

// InstanceBuilder is the transient per-event value produced by Prepare:
// every factor's builder, not yet turned into instance state.
type InstanceBuilder struct {
	componentID string
	builders    *factors.BuilderSet
	exec        *Executor
	state       State
}

// Prepare runs every factor's Prepare phase (synchronous, non-blocking)
// for one event targeting componentID. newPrepareCtx builds the
// PrepareContext each factor receives; it is supplied by the caller (a
// trigger) since it is the trigger that knows which concrete component
// the event targets.
func (e *Executor) Prepare(componentID string, newPrepareCtx func(*factors.BuilderSet) factors.PrepareContext) (*InstanceBuilder, error) {
	builders, err := e.registry.PrepareAll(newPrepareCtx)
	if err != nil {
		return nil, err
	}
	return &InstanceBuilder{componentID: componentID, builders: builders, exec: e, state: StatePrepared}, nil
}

// Instance is one live, instantiated component, owned by exactly one
// task from Instantiate to Drop.
type Instance struct {
	ComponentID string
	Module      api.Module
	States      *factors.StateSet
	state       State
	stdio       *Stdio
}

// State reports the instance's current lifecycle position.
func (inst *Instance) State() State { return inst.state }

// SetRunning transitions Prepared/Built/Instantiated -> Running; callers
// (triggers) mark this immediately before invoking the exported entry
// point, and SetCompleted/SetFailed immediately after.
func (inst *Instance) SetRunning()   { inst.state = StateRunning }
func (inst *Instance) SetCompleted() { inst.state = StateCompleted }
func (inst *Instance) SetFailed()    { inst.state = StateFailed }

// Instantiate runs every factor's Build phase, compiles (or reuses a
// cached compile of) the component, and instantiates it against the
// engine's wazero runtime with multiplexed stdio and the wasi factor's
// per-component environment applied. The component's file mounts are
// not attached: the module config exposes no host directory to the
// guest. May block on I/O (factor Build, wasm compilation).
func (ib *InstanceBuilder) Instantiate(ctx context.Context) (*Instance, error) {
	states, err := ib.exec.registry.BuildAll(ctx, ib.builders)
	if err != nil {
		return nil, err
	}

	src, err := ib.exec.components.Source(ctx, ib.componentID)
	if err != nil {
		return nil, fmt.Errorf("executor: resolving component %q source: %w", ib.componentID, err)
	}
	cm, err := ib.exec.engine.CompiledModule(ctx, src.Digest, src.Bytes)
	if err != nil {
		return nil, err
	}

	stdio, err := NewStdio(ib.componentID, ib.exec.stdio, os.Stdout, os.Stderr)
	if err != nil {
		return nil, err
	}

	modCfg := wazero.NewModuleConfig().
		WithName(ib.componentID).
		WithStdout(stdio.Stdout).
		WithStderr(stdio.Stderr)
	if st, err := states.Get(wasi.Name); err == nil {
		if ws, ok := st.(*wasi.InstanceState); ok {
			for k, v := range ws.Environment {
				modCfg = modCfg.WithEnv(k, v)
			}
		}
	}

	mod, err := ib.exec.engine.runtime.InstantiateModule(ctx, cm, modCfg)
	if err != nil {
		_ = stdio.Close()
		return nil, fmt.Errorf("executor: instantiating component %q: %w", ib.componentID, err)
	}

	return &Instance{
		ComponentID: ib.componentID,
		Module:      mod,
		States:      states,
		state:       StateInstantiated,
		stdio:       stdio,
	}, nil
}

// Drop releases every resource the instance holds: every factor state
// implementing InstanceCloser is closed, the wasm module instance is
// closed, and the stdio log file (if any) is flushed and closed. Safe to
// call exactly once; called unconditionally on Completed, Failed, or
// cancellation.
func (inst *Instance) Drop(ctx context.Context) error {
	var firstErr error
	for _, name := range inst.States.Names() {
		st, err := inst.States.Get(name)
		if err != nil {
			continue
		}
		if closer, ok := st.(InstanceCloser); ok {
			closer.CloseInstance()
		}
	}
	if err := inst.Module.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := inst.stdio.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	inst.state = StateDropped
	return firstErr
}
