// Package wasi implements the wasi factor: per-component environment
// variables and the (empty) argv the guest sees. The WASI preview1
// host-function surface itself is instantiated once against the wazero
// runtime by internal/executor (a single builtin host module, unlike the
// per-function imports every other factor registers), so this factor's
// Init is a no-op; it only carries per-component environment through the
// lifecycle so internal/executor can apply it at wazero.ModuleConfig
// construction time.
package wasi

import (
	"context"

	"github.com/wasmfactors/runtime/internal/factors"
)

const Name = "wasi"

// AppState is the per-component environment map computed at configure
// time from appCtx.ComponentMetadata: the manifest's environment values
// verbatim, with no variable templates expanded.
type AppState struct {
	Environment map[string]map[string]string // component id -> env
}

// InstanceBuilder is this factor's per-event output: the environment map
// for the one component being instantiated.
type InstanceBuilder struct {
	Environment map[string]string
}

// InstanceState is identical to InstanceBuilder; wasi has no I/O-bound
// build step.
type InstanceState struct {
	Environment map[string]string
}

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(factors.Linker) error { return nil }

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	st := &AppState{Environment: map[string]map[string]string{}}
	for _, id := range appCtx.ComponentIDs() {
		meta, _ := appCtx.ComponentMetadata(id)
		st.Environment[id] = meta.Environment
	}
	return st, nil
}

func (f *Factor) Prepare(appState any, prepCtx factors.PrepareContext) (any, error) {
	st := appState.(*AppState)
	return &InstanceBuilder{Environment: st.Environment[prepCtx.ComponentID()]}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{Environment: b.Environment}, nil
}
