// Package outboundhttp implements the wasi:http/outgoing-handler factor:
// per-component allow-list gating via internal/outbound, plus the
// service-chaining interceptor hook the HTTP trigger installs so
// `http://<component-id>.spin.internal` requests dispatch in-process
// instead of opening a socket.
package outboundhttp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/outbound"
)

const Name = "outbound_http"

// Interceptor handles a service-chaining request in-process. Installed
// by the HTTP trigger at app-configure time; absent, a `self` request
// fails per spec.md §4.4.
type Interceptor func(ctx context.Context, targetComponentID string, req *http.Request) (*http.Response, error)

// AppState holds the compiled outbound.Policy per component and the
// (optional) service-chaining interceptor.
type AppState struct {
	policies    map[string]*outbound.Policy
	interceptor Interceptor
}

// SetInterceptor installs the HTTP trigger's in-process dispatch hook.
// Safe to call once after ConfigureApp, before the first event.
func (s *AppState) SetInterceptor(i Interceptor) { s.interceptor = i }

type InstanceBuilder struct {
	componentID string
	policy      *outbound.Policy
	interceptor Interceptor
}

type InstanceState struct {
	componentID string
	policy      *outbound.Policy
	interceptor Interceptor
}

// Do evaluates req against this component's allow-list (and intercepts
// service-chaining authorities) before ever reaching a real transport.
func (s *InstanceState) Do(ctx context.Context, req *http.Request, client *http.Client) (*http.Response, error) {
	port := req.URL.Port()
	portNum := 80
	if req.URL.Scheme == "https" {
		portNum = 443
	}
	if port != "" {
		fmt.Sscanf(port, "%d", &portNum)
	}

	if target, ok := s.policy.ServiceChainTarget(req.URL.Hostname()); ok {
		if s.interceptor == nil {
			return nil, &outbound.ConnectionFailed{Host: req.URL.Hostname()}
		}
		return s.interceptor(ctx, target, req)
	}

	reqMatch := outbound.Request{Scheme: req.URL.Scheme, Host: req.URL.Hostname(), Port: portNum}
	if err := s.policy.Check(reqMatch, nil); err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req.WithContext(ctx))
}

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	return linker.AddImport("wasi:http/outgoing-handler@0.2.0", "handle", outboundHTTPStub)
}

func outboundHTTPStub() uint32 { return 0 }

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	st := &AppState{policies: map[string]*outbound.Policy{}}
	allIDs := appCtx.ComponentIDs()
	for _, id := range allIDs {
		meta, ok := appCtx.ComponentMetadata(id)
		if !ok {
			continue
		}
		policy, err := outbound.CompilePolicy(id, meta.AllowedOutboundHosts, allIDs)
		if err != nil {
			return nil, err
		}
		st.policies[id] = policy
	}
	return st, nil
}

func (f *Factor) Prepare(appState any, prepCtx factors.PrepareContext) (any, error) {
	st := appState.(*AppState)
	id := prepCtx.ComponentID()
	return &InstanceBuilder{componentID: id, policy: st.policies[id], interceptor: st.interceptor}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{componentID: b.componentID, policy: b.policy, interceptor: b.interceptor}, nil
}
