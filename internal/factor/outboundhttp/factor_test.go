package outboundhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wasmfactors/runtime/internal/outbound"
)

func TestDoAllowsMatchingHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	policy, err := outbound.CompilePolicy("comp-a", []string{"http://" + srv.Listener.Addr().String()}, []string{"comp-a"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	state := &InstanceState{componentID: "comp-a", policy: policy}

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := state.Do(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error for allowed host: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("expected the real server's response to pass through, got status %d", resp.StatusCode)
	}
}

func TestDoDeniesUnlistedHost(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", []string{"http://only-this-host.example.com"}, []string{"comp-a"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	state := &InstanceState{componentID: "comp-a", policy: policy}

	req, _ := http.NewRequest(http.MethodGet, "http://not-allowed.example.com/", nil)
	if _, err := state.Do(context.Background(), req, nil); err == nil {
		t.Fatalf("expected Do to deny a host outside the allow-list")
	}
}

func TestDoServiceChainsWithoutInterceptorFails(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", nil, []string{"comp-a", "comp-b"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	state := &InstanceState{componentID: "comp-a", policy: policy}

	req, _ := http.NewRequest(http.MethodGet, "http://comp-b.spin.internal/path", nil)
	if _, err := state.Do(context.Background(), req, nil); err == nil {
		t.Fatalf("expected Do to fail a service-chain request with no interceptor installed")
	}
}

func TestDoServiceChainsThroughInterceptor(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", nil, []string{"comp-a", "comp-b"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}

	var gotTarget string
	interceptor := Interceptor(func(ctx context.Context, targetComponentID string, req *http.Request) (*http.Response, error) {
		gotTarget = targetComponentID
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	state := &InstanceState{componentID: "comp-a", policy: policy, interceptor: interceptor}

	req, _ := http.NewRequest(http.MethodGet, "http://comp-b.spin.internal/path", nil)
	resp, err := state.Do(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("unexpected error service-chaining through interceptor: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the interceptor's response to pass through")
	}
	if gotTarget != "comp-b" {
		t.Fatalf("expected target component id %q, got %q", "comp-b", gotTarget)
	}
}

func TestDoWithSelfPatternStillFailsClosedOnUnknownComponent(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", []string{"http://self"}, []string{"comp-a"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	dialed := false
	state := &InstanceState{componentID: "comp-a", policy: policy}

	req, _ := http.NewRequest(http.MethodGet, "http://typo-id.spin.internal/", nil)
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		dialed = true
		return &http.Response{StatusCode: http.StatusOK}, nil
	})}
	if _, err := state.Do(context.Background(), req, client); err == nil {
		t.Fatalf("expected a self pattern not to grant a typo'd .spin.internal host that matches no real component")
	}
	if dialed {
		t.Fatalf("expected the request never to reach a real transport")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestDoServiceChainToUnknownComponentFailsClosed(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", nil, []string{"comp-a"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	called := false
	interceptor := Interceptor(func(ctx context.Context, targetComponentID string, req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusOK}, nil
	})
	state := &InstanceState{componentID: "comp-a", policy: policy, interceptor: interceptor}

	req, _ := http.NewRequest(http.MethodGet, "http://unknown-id.spin.internal/path", nil)
	if _, err := state.Do(context.Background(), req, nil); err == nil {
		t.Fatalf("expected Do to deny a service-chain authority naming an unknown component")
	}
	if called {
		t.Fatalf("expected the interceptor not to be invoked for an unknown service-chain target")
	}
}
