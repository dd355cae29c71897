// Package executor turns a configured app plus a component id into a
// ready-to-invoke WebAssembly instance on every trigger event. It owns
// the wazero runtime, the per-configured-app linker, and the
// InstancePre (compiled module) cache, and implements the
// Prepared -> Built -> Instantiated -> Running -> Completed|Failed ->
// Dropped lifecycle described alongside the factor registry.
package executor

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/wasmfactors/runtime/internal/factors"
)

// EngineConfig bounds the resources any one instance may consume. Zero
// values fall back to the defaults below.
type EngineConfig struct {
	// MemoryLimitPages caps linear memory growth per instance (64KiB
	// pages); 0 means wazero's default.
	MemoryLimitPages uint32
	// InstancePreCacheSize bounds how many compiled modules are kept
	// warm across events, keyed by component source digest.
	InstancePreCacheSize int
}

const defaultInstancePreCacheSize = 64

// Engine wraps one wazero.Runtime shared by every instance of a single
// configured app. It is built once when the app is configured and torn
// down when the app is unloaded.
type Engine struct {
	runtime  wazero.Runtime
	linker   *Linker
	preCache *lru.Cache[string, wazero.CompiledModule]
}

// NewEngine constructs the wasm runtime, applies cfg's resource limits,
// and returns an Engine with an empty, not-yet-populated Linker. Callers
// must run every factor's Init against Linker() and then call
// FinalizeLinker before the first Prepare call.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	rtCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	// WASI preview1 is a single builtin host module wazero ships whole,
	// unlike the per-function imports every other factor registers
	// through Linker.AddImport; it is wired directly against the
	// runtime here rather than through the factor's Init phase.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		return nil, fmt.Errorf("executor: instantiating wasi_snapshot_preview1: %w", err)
	}

	size := cfg.InstancePreCacheSize
	if size <= 0 {
		size = defaultInstancePreCacheSize
	}
	cache, err := lru.New[string, wazero.CompiledModule](size)
	if err != nil {
		return nil, fmt.Errorf("executor: building instance-pre cache: %w", err)
	}

	return &Engine{
		runtime:  rt,
		linker:   newLinker(rt),
		preCache: cache,
	}, nil
}

// Linker returns the engine's Linker, implementing factors.Linker, so
// the factor registry's Init phase can populate host-function imports
// into it.
func (e *Engine) Linker() factors.Linker { return e.linker }

// FinalizeLinker instantiates every host module every factor registered
// during Init. Must be called exactly once, after Registry.Init, before
// any component is instantiated against this engine.
func (e *Engine) FinalizeLinker(ctx context.Context) error {
	return e.linker.instantiate(ctx)
}

// CompiledModule returns the cached wazero.CompiledModule for digest,
// compiling wasmBytes and inserting into the cache on a miss. digest is
// the component's resolved source digest (or local path, for a
// dev-mode, non-content-addressed source) — compiling is skipped on
// every subsequent event for the same component.
func (e *Engine) CompiledModule(ctx context.Context, digest string, wasmBytes []byte) (wazero.CompiledModule, error) {
	if cm, ok := e.preCache.Get(digest); ok {
		return cm, nil
	}
	cm, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("executor: compiling component %q: %w", digest, err)
	}
	e.preCache.Add(digest, cm)
	return cm, nil
}

// Close releases the wazero runtime and every cached compiled module.
// Called when the configured app unloads.
func (e *Engine) Close(ctx context.Context) error {
	for _, digest := range e.preCache.Keys() {
		if cm, ok := e.preCache.Peek(digest); ok {
			_ = cm.Close(ctx)
		}
	}
	return e.runtime.Close(ctx)
}
