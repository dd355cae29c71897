package outboundmqtt

import (
	"testing"

	"github.com/wasmfactors/runtime/internal/outbound"
	"github.com/wasmfactors/runtime/internal/resource"
)

func TestOpenDeniesDisallowedBroker(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", []string{"mqtt://only-this-broker.example.com"}, []string{"comp-a"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	appState := &AppState{clients: map[string]*pooledClient{}, policyByID: map[string]*outbound.Policy{"comp-a": policy}}
	state := &InstanceState{componentID: "comp-a", policy: policy, appState: appState, handles: resource.NewTable(0)}

	if _, err := state.Open("not-allowed.example.com", 1883); err == nil {
		t.Fatalf("expected Open to deny a broker address outside the allow-list")
	}
	if len(appState.clients) != 0 {
		t.Fatalf("expected a denied Open to never construct a pooled client")
	}
}

func TestCloseInstanceClosesHandleTableWithoutPanicking(t *testing.T) {
	policy, err := outbound.CompilePolicy("comp-a", nil, []string{"comp-a"})
	if err != nil {
		t.Fatalf("compiling policy: %v", err)
	}
	state := &InstanceState{
		componentID: "comp-a",
		policy:      policy,
		appState:    &AppState{clients: map[string]*pooledClient{}, policyByID: map[string]*outbound.Policy{}},
		handles:     resource.NewTable(0),
	}
	state.CloseInstance()
}
