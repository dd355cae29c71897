// Package outboundpg implements the fermyon:spin/postgres factor:
// per-component allow-list gated outbound Postgres connections via
// jackc/pgx/v5's pgxpool, one bounded pool per distinct connection
// string shared across instances.
package outboundpg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/outbound"
	"github.com/wasmfactors/runtime/internal/resource"
)

const Name = "outbound_pg"

// ErrorKind mirrors the HostCallError taxonomy for this factor; on pool
// exhaustion the host call surfaces TooManyConnections rather than
// blocking indefinitely, per spec.md §5.
type ErrorKind int

const (
	ConnectionFailed ErrorKind = iota
	TooManyConnections
)

type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	return linker.AddImport("fermyon:spin/postgres@2.0.0", "query", pgStub)
}

func pgStub() uint32 { return 0 }

type AppState struct {
	pools      map[string]*pgxpool.Pool
	policyByID map[string]*outbound.Policy
}

type InstanceBuilder struct {
	componentID string
	policy      *outbound.Policy
	pools       map[string]*pgxpool.Pool
}

type InstanceState struct {
	componentID string
	policy      *outbound.Policy
	pools       map[string]*pgxpool.Pool
	handles     *resource.Table
}

func (s *InstanceState) CloseInstance() { s.handles.CloseAll(nil) }

// Open acquires a pooled connection for the given host/port/database,
// dialing a new bounded pool on first use.
func (s *InstanceState) Open(ctx context.Context, host string, port int, connString string) (uint32, error) {
	if err := s.policy.Check(outbound.Request{Scheme: "postgres", Host: host, Port: port}, nil); err != nil {
		return 0, err
	}
	pool, ok := s.pools[connString]
	if !ok {
		var err error
		pool, err = pgxpool.New(ctx, connString)
		if err != nil {
			return 0, &Error{Kind: ConnectionFailed, Msg: err.Error()}
		}
		s.pools[connString] = pool
	}
	if stat := pool.Stat(); stat.AcquiredConns() >= stat.MaxConns() {
		return 0, &Error{Kind: TooManyConnections, Msg: fmt.Sprintf("postgres pool exhausted: %d of %d connections in use", stat.AcquiredConns(), stat.MaxConns())}
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, &Error{Kind: ConnectionFailed, Msg: err.Error()}
	}
	return s.handles.Insert(conn)
}

func (s *InstanceState) Release(handle uint32) error {
	v, err := s.handles.Remove(handle)
	if err != nil {
		return err
	}
	v.(interface{ Release() }).Release()
	return nil
}

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	st := &AppState{pools: map[string]*pgxpool.Pool{}, policyByID: map[string]*outbound.Policy{}}
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
	return &InstanceBuilder{componentID: id, policy: st.policyByID[id], pools: st.pools}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{componentID: b.componentID, policy: b.policy, pools: b.pools, handles: resource.NewTable(0)}, nil
}
