// Package outboundmqtt implements the fermyon:spin/mqtt factor:
// per-component allow-list gated outbound MQTT connections via
// eclipse/paho.mqtt.golang, one client per distinct broker address
// shared across instances (mutex-guarded, single-connection backend per
// spec.md §5).
package outboundmqtt

import (
	"context"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/outbound"
	"github.com/wasmfactors/runtime/internal/resource"
)

const Name = "outbound_mqtt"

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	for _, fn := range []string{"publish", "subscribe"} {
		if err := linker.AddImport("fermyon:spin/mqtt@2.0.0", fn, mqttStub); err != nil {
			return err
		}
	}
	return nil
}

func mqttStub() uint32 { return 0 }

// pooledClient guards a single *mqtt.Client shared across instances with
// an explicit mutex, matching spec.md §5's "mutex for single-connection
// backends" shared-resource policy.
type pooledClient struct {
	mu     sync.Mutex
	client mqtt.Client
}

type AppState struct {
	mu         sync.Mutex
	clients    map[string]*pooledClient
	policyByID map[string]*outbound.Policy
}

type InstanceBuilder struct {
	componentID string
	policy      *outbound.Policy
	appState    *AppState
}

type InstanceState struct {
	componentID string
	policy      *outbound.Policy
	appState    *AppState
	handles     *resource.Table
}

func (s *InstanceState) CloseInstance() { s.handles.CloseAll(nil) }

// Open dials (or reuses) the broker at addr:port, gated by the policy,
// and returns a handle to the pooled client.
func (s *InstanceState) Open(addr string, port int) (uint32, error) {
	if err := s.policy.Check(outbound.Request{Scheme: "mqtt", Host: addr, Port: port}, nil); err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s:%d", addr, port)

	s.appState.mu.Lock()
	pc, ok := s.appState.clients[key]
	if !ok {
		opts := mqtt.NewClientOptions().AddBroker(fmt.Sprintf("tcp://%s", key))
		pc = &pooledClient{client: mqtt.NewClient(opts)}
		s.appState.clients[key] = pc
	}
	s.appState.mu.Unlock()

	pc.mu.Lock()
	if !pc.client.IsConnected() {
		if tok := pc.client.Connect(); tok.Wait() && tok.Error() != nil {
			pc.mu.Unlock()
			return 0, fmt.Errorf("outboundmqtt: connecting to %q: %w", key, tok.Error())
		}
	}
	pc.mu.Unlock()

	return s.handles.Insert(pc)
}

func (s *InstanceState) Client(handle uint32) (mqtt.Client, error) {
	v, err := s.handles.Get(handle)
	if err != nil {
		return nil, err
	}
	return v.(*pooledClient).client, nil
}

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	st := &AppState{clients: map[string]*pooledClient{}, policyByID: map[string]*outbound.Policy{}}
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
		st.policyByID[id] = policy
	}
	return st, nil
}

func (f *Factor) Prepare(appState any, prepCtx factors.PrepareContext) (any, error) {
	st := appState.(*AppState)
	id := prepCtx.ComponentID()
	return &InstanceBuilder{componentID: id, policy: st.policyByID[id], appState: st}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{componentID: b.componentID, policy: b.policy, appState: b.appState, handles: resource.NewTable(0)}, nil
}
