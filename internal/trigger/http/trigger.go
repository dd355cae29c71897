// Package http implements the HTTP trigger: a gorilla/mux server that
// dispatches each inbound request to the locked component it is routed
// to, and doubles as the outbound_http factor's service-chaining
// interceptor so a `self`/`<component-id>.spin.internal` request is
// redispatched in-process instead of opening a socket.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wasmfactors/runtime/internal/executor"
	"github.com/wasmfactors/runtime/internal/factor/outboundhttp"
	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/observability/logging"
	"github.com/wasmfactors/runtime/internal/outbound"
	"github.com/wasmfactors/runtime/internal/trigger"
)

const Type = "http"

// candidateExports is every incoming-handler export this trigger probes,
// most to least preferred: the wasi:http 0.2.0 surface first, falling
// back to the legacy fermyon:spin inbound-http name a component built
// against an older Spin SDK might still export.
var candidateExports = []trigger.ExportProbe{
	{Name: "wasi:http/incoming-handler@0.2.0#handle", Description: "WASI 0.2 HTTP incoming-handler"},
	{Name: "fermyon:spin/inbound-http#handle-request", Description: "legacy Spin inbound-http handler"},
}

// Options is the options block this trigger's Run path needs beyond the
// generic trigger.Config.
type Options struct {
	ListenAddr        string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	MaxRequestsPerSec float64
	RateLimitBurst    int
	Logger            *slog.Logger
}

// Trigger is the HTTP trigger implementation.
type Trigger struct {
	opts Options

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

func New(opts Options) *Trigger {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Trigger{opts: opts, limiters: map[string]*rate.Limiter{}}
}

// limiterFor returns the per-component token-bucket limiter, lazily
// built from opts.MaxRequestsPerSec/RateLimitBurst. A zero rate disables
// limiting (every call is allowed), the default when the operator hasn't
// set a cap.
func (t *Trigger) limiterFor(componentID string) *rate.Limiter {
	if t.opts.MaxRequestsPerSec <= 0 {
		return nil
	}
	t.limiterMu.Lock()
	defer t.limiterMu.Unlock()
	l, ok := t.limiters[componentID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(t.opts.MaxRequestsPerSec), t.opts.RateLimitBurst)
		t.limiters[componentID] = l
	}
	return l
}

func (t *Trigger) Type() string { return Type }

// UpdateLinker is a no-op: the HTTP trigger consumes guest exports, it
// doesn't add host imports of its own (wasi:http/outgoing-handler
// belongs to the outbound_http factor).
func (t *Trigger) UpdateLinker(_ factors.Linker) error { return nil }

// routeTarget is one trigger entry's resolved route: the path it's bound
// to (the manifest's trigger config "route" key, defaulting to "/...") and
// the single component id it targets.
type routeTarget struct {
	route       string
	componentID string
}

// Run builds the mux router from cfg's http-typed trigger entries and
// serves until ctx is cancelled.
func (t *Trigger) Run(ctx context.Context, exec *executor.Executor, cfg trigger.Config) error {
	var targets []routeTarget
	for _, lt := range cfg.Triggers {
		if lt.Type != Type {
			continue
		}
		componentID, ok := lt.Components[""]
		if !ok {
			return fmt.Errorf("http trigger %q: no component reference", lt.ID)
		}
		route, _ := lt.Config["route"].(string)
		if route == "" {
			route = "/..."
		}
		targets = append(targets, routeTarget{route: route, componentID: componentID})
	}

	router := mux.NewRouter()
	for _, rt := range targets {
		rt := rt
		pattern := muxPattern(rt.route)
		router.PathPrefix(pattern).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.dispatch(r.Context(), exec, rt.componentID, w, r)
		})
	}

	srv := &http.Server{
		Addr:         t.opts.ListenAddr,
		Handler:      router,
		ReadTimeout:  t.opts.ReadTimeout,
		WriteTimeout: t.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		t.opts.Logger.Info("http trigger listening", "addr", t.opts.ListenAddr)
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

// muxPattern turns a Spin-style route ("/...", "/foo/...", "/foo") into
// a gorilla/mux PathPrefix pattern.
func muxPattern(route string) string {
	const wildcard = "/..."
	if len(route) >= len(wildcard) && route[len(route)-len(wildcard):] == wildcard {
		return route[:len(route)-len(wildcard)]
	}
	return route
}

// dispatch prepares, instantiates, runs and drops one instance for a
// single inbound request.
func (t *Trigger) dispatch(ctx context.Context, exec *executor.Executor, componentID string, w http.ResponseWriter, r *http.Request) {
	invID := logging.GenerateInvocationID()
	ctx = logging.WithInvocationID(ctx, invID)
	log := logging.ForComponent(t.opts.Logger, componentID).With("invocation_id", invID)

	if l := t.limiterFor(componentID); l != nil && !l.Allow() {
		log.Warn("request rate limited")
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	ib, err := exec.Prepare(componentID, func(builders *factors.BuilderSet) factors.PrepareContext {
		return simplePrepareContext{componentID: componentID, builders: builders}
	})
	if err != nil {
		log.Error("prepare failed", "error", err)
		http.Error(w, "component prepare failed", http.StatusInternalServerError)
		return
	}

	inst, err := ib.Instantiate(ctx)
	if err != nil {
		log.Error("instantiate failed", "error", err)
		http.Error(w, "component instantiate failed", http.StatusInternalServerError)
		return
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
		http.Error(w, "component has no http handler export", http.StatusBadGateway)
		return
	}

	inst.SetRunning()
	fn := inst.Module.ExportedFunction(exportName)
	results, err := fn.Call(ctx)
	if err != nil {
		inst.SetFailed()
		log.Error("handler trapped", "error", err)
		http.Error(w, "component trapped", http.StatusBadGateway)
		return
	}

	status := http.StatusOK
	if len(results) > 0 && results[0] != 0 {
		status = http.StatusInternalServerError
	}
	inst.SetCompleted()
	w.WriteHeader(status)
}

// Interceptor builds the outboundhttp.Interceptor that redispatches a
// service-chaining request to targetComponentID in-process, recording the
// response on an httptest.ResponseRecorder instead of opening a socket.
func (t *Trigger) Interceptor(exec *executor.Executor) outboundhttp.Interceptor {
	return func(ctx context.Context, targetComponentID string, req *http.Request) (*http.Response, error) {
		ib, err := exec.Prepare(targetComponentID, func(builders *factors.BuilderSet) factors.PrepareContext {
			return simplePrepareContext{componentID: targetComponentID, builders: builders}
		})
		if err != nil {
			return nil, &outbound.ConnectionFailed{Host: req.URL.Hostname()}
		}
		inst, err := ib.Instantiate(ctx)
		if err != nil {
			return nil, &outbound.ConnectionFailed{Host: req.URL.Hostname()}
		}
		defer inst.Drop(ctx)

		exportName, err := trigger.ProbeExport(inst, Type, candidateExports)
		if err != nil {
			inst.SetFailed()
			return nil, &outbound.ConnectionFailed{Host: req.URL.Hostname()}
		}

		inst.SetRunning()
		rec := httptest.NewRecorder()
		fn := inst.Module.ExportedFunction(exportName)
		results, err := fn.Call(ctx)
		if err != nil {
			inst.SetFailed()
			return nil, &outbound.ConnectionFailed{Host: req.URL.Hostname()}
		}
		if len(results) > 0 && results[0] != 0 {
			rec.Code = http.StatusInternalServerError
		}
		inst.SetCompleted()
		return rec.Result(), nil
	}
}

// simplePrepareContext is the minimal factors.PrepareContext the HTTP
// trigger needs: it never reads a prior factor's builder, so Builder is
// unreachable in practice but still delegates correctly if a future
// factor depends on another.
type simplePrepareContext struct {
	componentID string
	builders    *factors.BuilderSet
}

func (c simplePrepareContext) ComponentID() string { return c.componentID }
func (c simplePrepareContext) Builder(name string) (any, error) {
	return c.builders.Get(name)
}
