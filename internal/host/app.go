package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wasmfactors/runtime/internal/executor"
	"github.com/wasmfactors/runtime/internal/factor/keyvalue"
	"github.com/wasmfactors/runtime/internal/factor/llm"
	"github.com/wasmfactors/runtime/internal/factor/outboundhttp"
	"github.com/wasmfactors/runtime/internal/factor/outboundmqtt"
	"github.com/wasmfactors/runtime/internal/factor/outboundmysql"
	"github.com/wasmfactors/runtime/internal/factor/outboundpg"
	"github.com/wasmfactors/runtime/internal/factor/outboundredis"
	"github.com/wasmfactors/runtime/internal/factor/sqlite"
	"github.com/wasmfactors/runtime/internal/factor/variables"
	"github.com/wasmfactors/runtime/internal/factor/wasi"
	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/lockedapp"
	"github.com/wasmfactors/runtime/internal/runtimeconfig"
	"github.com/wasmfactors/runtime/pkg/manifest"
)

// App is one loaded, configured application: the locked app descriptor,
// the fixed factor registry, the wazero engine, and the executor every
// trigger dispatches through.
type App struct {
	Locked   *lockedapp.App
	Registry *factors.Registry
	Engine   *executor.Engine
	Executor *executor.Executor

	OutboundHTTPState *outboundhttp.AppState
}

// Options collects everything needed to load and configure one app.
type Options struct {
	ManifestPath      string
	RuntimeConfigPath string
	Engine            runtimeconfig.EngineConfig
	Stdio             runtimeconfig.StdioConfig
	VariableProviders []variables.Provider
	SQLiteBackends    map[string]keyvalue.BackendFactory
}

// Load reads and locks the manifest, builds the fixed factor registry
// (declaration order: wasi, variables, key_value_store, sqlite_database,
// outbound_http, outbound_redis, outbound_mqtt, outbound_pg,
// outbound_mysql, llm_compute — later factors may depend on earlier
// ones, never the reverse), finalizes the wazero linker, and runs
// ConfigureApp for every factor.
func Load(ctx context.Context, opts Options) (*App, error) {
	manifestBytes, err := os.ReadFile(opts.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("host: reading manifest: %w", err)
	}
	m, err := manifest.Parse(manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("host: parsing manifest: %w", err)
	}

	locked, err := lockedapp.Load(m, resolveLocalSource(opts.ManifestPath))
	if err != nil {
		return nil, fmt.Errorf("host: locking app: %w", err)
	}

	var rcBytes []byte
	if opts.RuntimeConfigPath != "" {
		rcBytes, err = os.ReadFile(opts.RuntimeConfigPath)
		if err != nil {
			return nil, fmt.Errorf("host: reading runtime config: %w", err)
		}
	}
	rcSource, err := runtimeconfig.LoadSource(rcBytes)
	if err != nil {
		return nil, err
	}
	tracker := factors.NewRuntimeConfigTracker(rcSource)

	outboundHTTP := outboundhttp.New()
	registry := factors.NewRegistry(
		wasi.New(),
		variables.New(opts.VariableProviders...),
		keyvalue.New(keyvalueBackends(opts.SQLiteBackends)),
		sqlite.New(),
		outboundHTTP,
		outboundredis.New(),
		outboundmqtt.New(),
		outboundpg.New(),
		outboundmysql.New(),
		llm.New(),
	)

	engine, err := executor.NewEngine(ctx, executor.EngineConfig{
		MemoryLimitPages:     opts.Engine.MemoryLimitPages,
		InstancePreCacheSize: opts.Engine.InstancePreCacheLRU,
	})
	if err != nil {
		return nil, fmt.Errorf("host: building engine: %w", err)
	}

	if err := registry.Init(engine.Linker()); err != nil {
		_ = engine.Close(ctx)
		return nil, fmt.Errorf("host: factor init: %w", err)
	}
	if err := engine.FinalizeLinker(ctx); err != nil {
		_ = engine.Close(ctx)
		return nil, fmt.Errorf("host: finalizing linker: %w", err)
	}

	appCtx := newAppConfigContext(locked, tracker)
	if err := registry.ConfigureApp(ctx, appCtx); err != nil {
		_ = engine.Close(ctx)
		return nil, fmt.Errorf("host: configure app: %w", err)
	}
	if err := tracker.Finalize(); err != nil {
		_ = engine.Close(ctx)
		return nil, err
	}

	httpState, err := registry.AppState(outboundhttp.Name)
	if err != nil {
		_ = engine.Close(ctx)
		return nil, err
	}

	stdioCfg := executor.StdioConfig{
		LogDir:     opts.Stdio.LogDir,
		FollowSet:  toFollowSet(opts.Stdio.Follow),
		MaxSizeMB:  opts.Stdio.MaxSizeMB,
		MaxBackups: opts.Stdio.MaxBackups,
		MaxAgeDays: opts.Stdio.MaxAgeDays,
	}
	exec := executor.NewExecutor(engine, registry, newFileComponentProvider(locked), stdioCfg)

	return &App{
		Locked:            locked,
		Registry:          registry,
		Engine:            engine,
		Executor:          exec,
		OutboundHTTPState: httpState.(*outboundhttp.AppState),
	}, nil
}

// keyvalueBackends merges the caller-supplied backend overrides over
// this runtime's built-in ones ("sqlite"), so an embedder can still
// substitute its own sqlite wiring without losing the "memory" default
// key_value_store factor.ConfigureApp falls back to for unconfigured
// labels.
func keyvalueBackends(overrides map[string]keyvalue.BackendFactory) map[string]keyvalue.BackendFactory {
	backends := map[string]keyvalue.BackendFactory{
		"sqlite": keyvalue.DefaultSQLiteBackend,
	}
	for name, fn := range overrides {
		backends[name] = fn
	}
	return backends
}

// LockManifest parses and locks the manifest at manifestPath without
// building an engine or configuring any factor — used by `hostctl lock`
// to print the locked-app JSON for inspection.
func LockManifest(manifestPath string) (*lockedapp.App, error) {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("host: reading manifest: %w", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("host: parsing manifest: %w", err)
	}
	return lockedapp.Load(m, resolveLocalSource(manifestPath))
}

// Close releases the wazero engine and every cached compiled module.
func (a *App) Close(ctx context.Context) error {
	return a.Engine.Close(ctx)
}

func toFollowSet(follow []string) map[string]bool {
	set := make(map[string]bool, len(follow))
	for _, id := range follow {
		set[id] = true
	}
	return set
}

// resolveLocalSource implements lockedapp.Load's resolve callback for
// the common case: every component source is a local file path already
// present on disk, resolved relative to the manifest's directory.
func resolveLocalSource(manifestPath string) func(manifest.Source) (lockedapp.ResolvedSource, error) {
	dir := filepath.Dir(manifestPath)
	return func(src manifest.Source) (lockedapp.ResolvedSource, error) {
		switch src.Kind {
		case manifest.SourceLocalFile:
			path := src.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			return lockedapp.ResolvedSource{LocalPath: path}, nil
		case manifest.SourceRemoteURL:
			return lockedapp.ResolvedSource{}, fmt.Errorf("host: remote component sources are not fetched by this runtime (url %q)", src.URL)
		default:
			return lockedapp.ResolvedSource{}, fmt.Errorf("host: registry component sources are not fetched by this runtime (package %q)", src.Package)
		}
	}
}
