// Package websocket implements the websocket trigger: each inbound
// client message dispatches one event to the route's target component,
// with the component's dispatch outcome pushed back down the same
// connection — adapted from the teacher's dashboard/silence WebSocket
// hubs (cmd/server/handlers/silence_ws.go, dashboard_ws.go), which push
// EventBus-sourced notifications to browser clients over the same
// gorilla/websocket connection type.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wasmfactors/runtime/internal/executor"
	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/observability/logging"
	"github.com/wasmfactors/runtime/internal/trigger"
)

const Type = "websocket"

// candidateExports is the guest export this trigger invokes per inbound
// client message. There's no wasi:websocket standard to target, so this
// names a runtime-owned handler surface the way the teacher named its
// own inbound-redis equivalent.
var candidateExports = []trigger.ExportProbe{
	{Name: "wasmfactors:websocket/inbound-handler@1.0.0#handle-message", Description: "websocket inbound message handler"},
}

type Options struct {
	ListenAddr      string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Trigger serves one websocket endpoint per locked trigger entry.
type Trigger struct {
	opts     Options
	upgrader websocket.Upgrader
}

func New(opts Options) *Trigger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Trigger{
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func (t *Trigger) Type() string { return Type }

func (t *Trigger) UpdateLinker(_ factors.Linker) error { return nil }

type routeTarget struct {
	path        string
	componentID string
}

// Run serves every websocket-typed trigger entry's path on a shared
// listener until ctx is cancelled.
func (t *Trigger) Run(ctx context.Context, exec *executor.Executor, cfg trigger.Config) error {
	targets, err := routeTargets(cfg)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return nil
	}

	mux := http.NewServeMux()
	for _, rt := range targets {
		rt := rt
		mux.HandleFunc(rt.path, func(w http.ResponseWriter, r *http.Request) {
			t.serve(r.Context(), exec, rt.componentID, w, r)
		})
	}

	srv := &http.Server{Addr: t.opts.ListenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		t.opts.Logger.Info("websocket trigger listening", "addr", t.opts.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), t.opts.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func routeTargets(cfg trigger.Config) ([]routeTarget, error) {
	var targets []routeTarget
	for _, lt := range cfg.Triggers {
		if lt.Type != Type {
			continue
		}
		componentID, ok := lt.Components[""]
		if !ok {
			return nil, fmt.Errorf("websocket trigger %q: no component reference", lt.ID)
		}
		path, _ := lt.Config["path"].(string)
		if path == "" {
			path = "/ws"
		}
		targets = append(targets, routeTarget{path: path, componentID: componentID})
	}
	return targets, nil
}

// serve upgrades one connection and dispatches one event per inbound
// client message for as long as the connection stays open.
func (t *Trigger) serve(ctx context.Context, exec *executor.Executor, componentID string, w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.opts.Logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		result, dispatchErr := t.dispatch(ctx, exec, componentID)
		if dispatchErr != nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("error: "+dispatchErr.Error()))
			continue
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("ok:%d", result)))
	}
}

// dispatch prepares, instantiates, runs and drops one instance, the
// same Prepare→Instantiate→probe→invoke→Drop shape every trigger in
// this runtime follows.
func (t *Trigger) dispatch(ctx context.Context, exec *executor.Executor, componentID string) (int32, error) {
	invID := logging.GenerateInvocationID()
	ctx = logging.WithInvocationID(ctx, invID)
	log := logging.ForComponent(t.opts.Logger, componentID).With("invocation_id", invID)

	ib, err := exec.Prepare(componentID, func(builders *factors.BuilderSet) factors.PrepareContext {
		return prepareContext{componentID: componentID, builders: builders}
	})
	if err != nil {
		log.Error("prepare failed", "error", err)
		return 0, err
	}
	inst, err := ib.Instantiate(ctx)
	if err != nil {
		log.Error("instantiate failed", "error", err)
		return 0, err
	}
	defer func() {
		if err := inst.Drop(ctx); err != nil {
			log.Warn("drop failed", "error", err)
		}
	}()

	exportName, err := trigger.ProbeExport(inst, Type, candidateExports)
	if err != nil {
		inst.SetFailed()
		log.Error("no compatible export", "error", err)
		return 0, err
	}

	inst.SetRunning()
	fn := inst.Module.ExportedFunction(exportName)
	results, err := fn.Call(ctx)
	if err != nil {
		inst.SetFailed()
		log.Error("handler trapped", "error", err)
		return 0, err
	}
	inst.SetCompleted()

	var result int32
	if len(results) > 0 {
		result = int32(results[0])
	}
	return result, nil
}

type prepareContext struct {
	componentID string
	builders    *factors.BuilderSet
}

func (c prepareContext) ComponentID() string { return c.componentID }
func (c prepareContext) Builder(name string) (any, error) {
	return c.builders.Get(name)
}
