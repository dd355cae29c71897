package factors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmfactors/runtime/pkg/manifest"
)

type stubFactor struct {
	name       string
	readsOther string
}

func (f *stubFactor) Name() string                 { return f.name }
func (f *stubFactor) Init(Linker) error             { return nil }
func (f *stubFactor) ConfigureApp(context.Context, AppConfigContext) (any, error) {
	return f.name + "-app-state", nil
}
func (f *stubFactor) Prepare(appState any, pc PrepareContext) (any, error) {
	if f.readsOther != "" {
		if _, err := pc.Builder(f.readsOther); err != nil {
			return nil, err
		}
	}
	return f.name + "-builder", nil
}
func (f *stubFactor) Build(context.Context, any) (any, error) {
	return f.name + "-state", nil
}

type stubAppCtx struct{}

func (stubAppCtx) ComponentMetadata(string) (ComponentMetadata, bool) { return ComponentMetadata{}, false }
func (stubAppCtx) ComponentIDs() []string                             { return nil }
func (stubAppCtx) RuntimeConfig(string) (any, error)                  { return nil, nil }
func (stubAppCtx) AppVariables() map[string]manifest.Variable         { return nil }

type stubPrepareCtx struct {
	builders *BuilderSet
}

func (s stubPrepareCtx) ComponentID() string { return "c1" }
func (s stubPrepareCtx) Builder(name string) (any, error) {
	return s.builders.Get(name)
}

func TestRegistryPrepareRespectsDependencyOrder(t *testing.T) {
	r := NewRegistry(
		&stubFactor{name: "wasi"},
		&stubFactor{name: "outbound-http", readsOther: "wasi"},
	)
	require.NoError(t, r.Init(nil))
	require.NoError(t, r.ConfigureApp(context.Background(), stubAppCtx{}))

	builders, err := r.PrepareAll(func(b *BuilderSet) PrepareContext { return stubPrepareCtx{builders: b} })
	require.NoError(t, err)

	states, err := r.BuildAll(context.Background(), builders)
	require.NoError(t, err)
	v, err := states.Get("outbound-http")
	require.NoError(t, err)
	assert.Equal(t, "outbound-http-state", v)
}

func TestRegistryPrepareRejectsForwardDependency(t *testing.T) {
	r := NewRegistry(
		&stubFactor{name: "a", readsOther: "b"},
		&stubFactor{name: "b"},
	)
	require.NoError(t, r.Init(nil))
	require.NoError(t, r.ConfigureApp(context.Background(), stubAppCtx{}))

	_, err := r.PrepareAll(func(b *BuilderSet) PrepareContext { return stubPrepareCtx{builders: b} })
	require.Error(t, err)
	var buildErr *FactorBuildError
	require.ErrorAs(t, err, &buildErr)
	var regErr *RegistryError
	require.ErrorAs(t, buildErr.Err, &regErr)
	assert.Equal(t, DependencyOrderingError, regErr.Kind)
}

func TestRegistryDuplicateNamePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry(&stubFactor{name: "dup"}, &stubFactor{name: "dup"})
	})
}

func TestRuntimeConfigTrackerReportsUnusedKeys(t *testing.T) {
	src := mapConfigSource{"key_value_store": 1, "sqlite_database": 2}
	tr := NewRuntimeConfigTracker(src)
	_, err := tr.Get("key_value_store")
	require.NoError(t, err)
	err = tr.Finalize()
	require.Error(t, err)
	var rcErr *RuntimeConfigError
	require.ErrorAs(t, err, &rcErr)
	assert.Equal(t, []string{"sqlite_database"}, rcErr.UnusedKeys)
}

type mapConfigSource map[string]any

func (m mapConfigSource) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
func (m mapConfigSource) Value(key string) any { return m[key] }
