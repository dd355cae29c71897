// Package sqlite implements the fermyon:spin/sqlite factor: labeled
// databases backed by modernc.org/sqlite (pure Go, no cgo), gated per
// component by the sqlite_databases allow-list.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/resource"
)

const Name = "sqlite_database"

type ErrorKind int

const (
	AccessDenied ErrorKind = iota
	NoSuchDatabase
	Other
)

type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// AppState holds one *sql.DB per label, opened once and shared across
// instances with the pool's own internal locking (spec.md §5).
type AppState struct {
	dbs         map[string]*sql.DB
	allowedByID map[string]map[string]bool
}

type InstanceBuilder struct {
	allowed map[string]bool
	dbs     map[string]*sql.DB
}

type InstanceState struct {
	allowed map[string]bool
	dbs     map[string]*sql.DB
	handles *resource.Table
}

func (s *InstanceState) CloseInstance() { s.handles.CloseAll(nil) }

// Open resolves label to a *sql.DB handle for this instance.
func (s *InstanceState) Open(label string) (uint32, error) {
	if !s.allowed[label] {
		return 0, &Error{Kind: AccessDenied, Msg: fmt.Sprintf("sqlite database %q not allowed for this component", label)}
	}
	db, ok := s.dbs[label]
	if !ok {
		return 0, &Error{Kind: NoSuchDatabase, Msg: fmt.Sprintf("sqlite database %q is not configured", label)}
	}
	return s.handles.Insert(db)
}

func (s *InstanceState) DB(handle uint32) (*sql.DB, error) {
	v, err := s.handles.Get(handle)
	if err != nil {
		return nil, &Error{Kind: Other, Msg: err.Error()}
	}
	return v.(*sql.DB), nil
}

func (s *InstanceState) Close(handle uint32) error {
	_, err := s.handles.Remove(handle)
	if err != nil {
		return &Error{Kind: Other, Msg: err.Error()}
	}
	return nil
}

type Factor struct{}

func New() *Factor { return &Factor{} }

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	for _, fn := range []string{"open", "execute", "query", "close"} {
		if err := linker.AddImport("fermyon:spin/sqlite@2.0.0", fn, sqliteStub); err != nil {
			return err
		}
	}
	return nil
}

func sqliteStub() uint32 { return 0 }

func (f *Factor) ConfigureApp(_ context.Context, appCtx factors.AppConfigContext) (any, error) {
	raw, err := appCtx.RuntimeConfig(Name)
	if err != nil {
		return nil, err
	}
	cfg, _ := raw.(map[string]any)

	st := &AppState{dbs: map[string]*sql.DB{}, allowedByID: map[string]map[string]bool{}}
	for label, entry := range cfg {
		entryMap, _ := entry.(map[string]any)
		path, _ := entryMap["path"].(string)
		if path == "" {
			path = label + ".db"
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("sqlite: opening database %q at %q: %w", label, path, err)
		}
		st.dbs[label] = db
	}
	for _, id := range appCtx.ComponentIDs() {
		meta, ok := appCtx.ComponentMetadata(id)
		if !ok {
			continue
		}
		allowed := map[string]bool{}
		for _, label := range meta.SQLiteDatabases {
			allowed[label] = true
			if _, ok := st.dbs[label]; !ok {
				db, err := sql.Open("sqlite", ":memory:")
				if err != nil {
					return nil, fmt.Errorf("sqlite: opening default in-memory database %q: %w", label, err)
				}
				st.dbs[label] = db
			}
		}
		st.allowedByID[id] = allowed
	}
	return st, nil
}

func (f *Factor) Prepare(appState any, prepCtx factors.PrepareContext) (any, error) {
	st := appState.(*AppState)
	return &InstanceBuilder{allowed: st.allowedByID[prepCtx.ComponentID()], dbs: st.dbs}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{allowed: b.allowed, dbs: b.dbs, handles: resource.NewTable(0)}, nil
}
