// Package outboundmysql implements the fermyon:spin/mysql factor:
// per-component allow-list gated outbound MySQL connections via
// database/sql with go-sql-driver/mysql, one bounded *sql.DB pool per
// distinct DSN shared across instances.
package outboundmysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/outbound"
	"github.com/wasmfactors/runtime/internal/resource"
)

const Name = "outbound_mysql"

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

// MaxOpenConnsPerPool bounds each distinct-DSN pool; exhaustion surfaces
// TooManyConnections rather than queueing indefinitely.
const MaxOpenConnsPerPool = 16

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	return linker.AddImport("fermyon:spin/mysql@2.0.0", "query", mysqlStub)
}

func mysqlStub() uint32 { return 0 }

type AppState struct {
	pools      map[string]*sql.DB
	policyByID map[string]*outbound.Policy
}

type InstanceBuilder struct {
	componentID string
	policy      *outbound.Policy
	pools       map[string]*sql.DB
}

type InstanceState struct {
	componentID string
	policy      *outbound.Policy
	pools       map[string]*sql.DB
	handles     *resource.Table
}

func (s *InstanceState) CloseInstance() { s.handles.CloseAll(nil) }

func (s *InstanceState) Open(host string, port int, dsn string) (uint32, error) {
	if err := s.policy.Check(outbound.Request{Scheme: "mysql", Host: host, Port: port}, nil); err != nil {
		return 0, err
	}
	db, ok := s.pools[dsn]
	if !ok {
		var err error
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return 0, &Error{Kind: ConnectionFailed, Msg: err.Error()}
		}
		db.SetMaxOpenConns(MaxOpenConnsPerPool)
		s.pools[dsn] = db
	}
	if db.Stats().InUse >= MaxOpenConnsPerPool {
		return 0, &Error{Kind: TooManyConnections, Msg: fmt.Sprintf("mysql pool %q at capacity", dsn)}
	}
	return s.handles.Insert(db)
}

func (s *InstanceState) DB(handle uint32) (*sql.DB, error) {
	v, err := s.handles.Get(handle)
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	st := &AppState{pools: map[string]*sql.DB{}, policyByID: map[string]*outbound.Policy{}}
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
