// Package outboundredis implements the fermyon:spin/redis factor:
// per-component allow-list gated outbound Redis connections, pooled via
// redis/go-redis's own multiplexed client (lock-free, per spec.md §5's
// "multiplexed connection" shared-resource policy).
package outboundredis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/outbound"
	"github.com/wasmfactors/runtime/internal/resource"
)

const Name = "outbound_redis"

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	for _, fn := range []string{"publish", "get", "set", "execute"} {
		if err := linker.AddImport("fermyon:spin/redis@2.0.0", fn, redisStub); err != nil {
			return err
		}
	}
	return nil
}

func redisStub() uint32 { return 0 }

// AppState caches one *redis.Client per distinct connection URL, shared
// across components and instances that target the same server.
type AppState struct {
	clients    map[string]*redis.Client
	policyByID map[string]*outbound.Policy
}

type InstanceBuilder struct {
	componentID string
	policy      *outbound.Policy
	clients     map[string]*redis.Client
}

type InstanceState struct {
	componentID string
	policy      *outbound.Policy
	clients     map[string]*redis.Client
	handles     *resource.Table
}

func (s *InstanceState) CloseInstance() { s.handles.CloseAll(nil) }

// Open resolves addr against the policy and returns a handle to a
// (possibly newly dialed) *redis.Client for it.
func (s *InstanceState) Open(addr string, port int) (uint32, error) {
	if err := s.policy.Check(outbound.Request{Scheme: "redis", Host: addr, Port: port}, nil); err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s:%d", addr, port)
	client, ok := s.clients[key]
	if !ok {
		client = redis.NewClient(&redis.Options{Addr: key})
		s.clients[key] = client
	}
	return s.handles.Insert(client)
}

func (s *InstanceState) Client(handle uint32) (*redis.Client, error) {
	v, err := s.handles.Get(handle)
	if err != nil {
		return nil, err
	}
	return v.(*redis.Client), nil
}

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	st := &AppState{clients: map[string]*redis.Client{}, policyByID: map[string]*outbound.Policy{}}
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
	return &InstanceBuilder{componentID: id, policy: st.policyByID[id], clients: st.clients}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{componentID: b.componentID, policy: b.policy, clients: b.clients, handles: resource.NewTable(0)}, nil
}
