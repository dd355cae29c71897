package outboundpg

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wasmfactors/runtime/internal/outbound"
	"github.com/wasmfactors/runtime/internal/resource"
)

func TestOpenDeniesDisallowedHost(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", []string{"postgres://only-this-host.example.com"}, []string{"comp-a"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	state := &InstanceState{
		componentID: "comp-a",
		policy:      policy,
		pools:       map[string]*pgxpool.Pool{},
		handles:     resource.NewTable(0),
	}

	_, err = state.Open(context.Background(), "not-allowed.example.com", 5432, "postgres://not-allowed.example.com:5432/db")
	if err == nil {
		t.Fatalf("expected Open to deny a host outside the allow-list")
	}
	if _, ok := err.(*outbound.ConnectionFailed); !ok {
		t.Fatalf("expected a policy denial to surface as *outbound.ConnectionFailed, got %T", err)
	}
	if len(state.pools) != 0 {
		t.Fatalf("expected a denied Open to never construct a connection pool")
	}
}

func TestReleaseUnknownHandleErrors(t *testing.T) {
	state := &InstanceState{handles: resource.NewTable(0)}
	if err := state.Release(999); err == nil {
		t.Fatalf("expected Release to error for a handle that was never inserted")
	}
}
