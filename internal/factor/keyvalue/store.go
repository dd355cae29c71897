// Package keyvalue implements the fermyon:spin/key-value factor: labeled
// stores backed by an in-memory map or a modernc.org/sqlite-backed
// table, gated per component by the key_value_stores allow-list.
package keyvalue

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/wasmfactors/runtime/internal/factors"
	"github.com/wasmfactors/runtime/internal/lock"
	"github.com/wasmfactors/runtime/internal/resource"
)

const Name = "key_value_store"

// ErrorKind mirrors the HostCallError taxonomy for this factor.
type ErrorKind int

const (
	AccessDenied ErrorKind = iota
	NoSuchStore
	InvalidKey
	Other
)

type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Store is the backend-agnostic interface a label resolves to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// ListKeys returns keys in stable lexicographic order starting after
	// cursor (exclusive), up to a backend-chosen page size, and the
	// cursor to resume from (empty string when exhausted). Per Open
	// Question 2, cursor semantics are specified as a stable
	// lexicographic walk for every backend this factor ships.
	ListKeys(ctx context.Context, cursor string) (keys []string, nextCursor string, err error)
}

// BackendFactory builds a Store for one label given its runtime-config
// entry (already decoded by the caller into backend-specific fields via
// type assertion on the raw TOML value).
type BackendFactory func(ctx context.Context, label string, raw any) (Store, error)

// MemoryStore is an in-memory Store; ConfigureApp backs every allowed
// label that has no runtime-config entry with one.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{data: map[string][]byte{}} }

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *MemoryStore) ListKeys(_ context.Context, cursor string) ([]string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if k > cursor {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, "", nil
}

// SQLiteStore persists entries in a `kv_entries(store, key, value)` table
// of a shared *sql.DB (opened once per app via modernc.org/sqlite). When
// locker is non-nil, writes are serialized against it first — a cheap
// in-process sync.Mutex only protects this one runtime process, but two
// separate runtime processes pointed at the same database file (the
// multi-executor deployment this store is meant to support) still race
// on the underlying file unless they agree on an external lock.
type SQLiteStore struct {
	db     *sql.DB
	label  string
	locker *lock.DistributedLock
}

// NewSQLiteStore ensures the backing table exists and returns a Store
// scoped to label.
func NewSQLiteStore(ctx context.Context, db *sql.DB, label string) (*SQLiteStore, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv_entries (
		store TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (store, key)
	)`)
	if err != nil {
		return nil, fmt.Errorf("keyvalue: creating backing table: %w", err)
	}
	return &SQLiteStore{db: db, label: label}, nil
}

// WithLock attaches a cross-process write lock, returning s for
// chaining at construction time.
func (s *SQLiteStore) WithLock(l *lock.DistributedLock) *SQLiteStore {
	s.locker = l
	return s
}

// withWriteLock runs fn, holding s.locker (when configured) for its
// duration. Acquire failing to obtain the lock within its configured
// retries surfaces as a plain error, the same as any other write
// failure — the caller has no special "locked" HostCallError kind to
// report instead.
func (s *SQLiteStore) withWriteLock(ctx context.Context, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	ok, err := s.locker.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("keyvalue: acquiring write lock for store %q: %w", s.label, err)
	}
	if !ok {
		return fmt.Errorf("keyvalue: write lock for store %q held by another process", s.label)
	}
	defer s.locker.Release(ctx)
	return fn()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE store = ? AND key = ?`, s.label, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	return s.withWriteLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO kv_entries (store, key, value) VALUES (?, ?, ?)
			ON CONFLICT(store, key) DO UPDATE SET value = excluded.value`, s.label, key, value)
		return err
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	return s.withWriteLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE store = ? AND key = ?`, s.label, key)
		return err
	})
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *SQLiteStore) ListKeys(ctx context.Context, cursor string) ([]string, string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv_entries WHERE store = ? AND key > ? ORDER BY key`, s.label, cursor)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, "", err
		}
		keys = append(keys, k)
	}
	return keys, "", rows.Err()
}

// DefaultSQLiteBackend is the BackendFactory registered for
// `type = "sqlite"` runtime-config entries: it opens (or reuses) a
// database file at the entry's "path" key and, when "lock_redis_addr"
// is also set, attaches a DistributedLock scoped to this store's label
// so concurrent runtime processes sharing that file serialize their
// writes through Redis instead of racing on the file directly.
func DefaultSQLiteBackend(ctx context.Context, label string, raw any) (Store, error) {
	entry, _ := raw.(map[string]any)
	path, _ := entry["path"].(string)
	if path == "" {
		return nil, &Error{Kind: Other, Msg: fmt.Sprintf("key-value store %q: sqlite backend requires a \"path\"", label)}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("keyvalue: opening sqlite backend for store %q: %w", label, err)
	}
	store, err := NewSQLiteStore(ctx, db, label)
	if err != nil {
		return nil, err
	}

	if addr, _ := entry["lock_redis_addr"].(string); addr != "" {
		password, _ := entry["lock_redis_password"].(string)
		client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
		cfg := lock.DefaultConfig()
		if seconds, ok := entry["lock_ttl_seconds"].(int64); ok && seconds > 0 {
			cfg.TTL = time.Duration(seconds) * time.Second
		}
		store.WithLock(lock.New(client, "keyvalue:"+label, cfg, nil))
	}
	return store, nil
}

// AppState maps each component id to its set of accessible labels, and
// each label to its backend Store (shared across every component that
// names it).
type AppState struct {
	stores      map[string]Store          // label -> backend
	allowedByID map[string]map[string]bool // component id -> allowed labels
}

// InstanceBuilder is this factor's per-event output.
type InstanceBuilder struct {
	allowed map[string]bool
	stores  map[string]Store
}

// InstanceState embeds a resource.Table of open store handles, closed
// when the instance drops.
type InstanceState struct {
	allowed map[string]bool
	stores  map[string]Store
	handles *resource.Table
}

func (s *InstanceState) CloseInstance() {
	s.handles.CloseAll(nil)
}

// Open resolves label to a live handle for this instance, or
// AccessDenied/NoSuchStore.
func (s *InstanceState) Open(label string) (uint32, error) {
	if !s.allowed[label] {
		return 0, &Error{Kind: AccessDenied, Msg: fmt.Sprintf("key-value store %q not allowed for this component", label)}
	}
	store, ok := s.stores[label]
	if !ok {
		return 0, &Error{Kind: NoSuchStore, Msg: fmt.Sprintf("key-value store %q is not configured", label)}
	}
	return s.handles.Insert(store)
}

func (s *InstanceState) Store(handle uint32) (Store, error) {
	v, err := s.handles.Get(handle)
	if err != nil {
		return nil, &Error{Kind: Other, Msg: err.Error()}
	}
	return v.(Store), nil
}

func (s *InstanceState) Close(handle uint32) error {
	_, err := s.handles.Remove(handle)
	if err != nil {
		return &Error{Kind: Other, Msg: err.Error()}
	}
	return nil
}

// Factor implements factors.Factor.
type Factor struct {
	backends map[string]BackendFactory // backend type name -> constructor
}

// New builds a keyvalue factor with the given named backend
// constructors (e.g. "memory", "sqlite"); the runtime-config entry for
// each label names which one to use via its "type" field.
func New(backends map[string]BackendFactory) *Factor {
	return &Factor{backends: backends}
}

func (f *Factor) Name() string { return Name }

func (f *Factor) Init(linker factors.Linker) error {
	for _, fn := range []string{"open", "get", "set", "delete", "exists", "get-keys", "close"} {
		if err := linker.AddImport("fermyon:spin/key-value@2.0.0", fn, keyvalueStub); err != nil {
			return err
		}
	}
	return nil
}

func keyvalueStub() uint32 { return 0 }

func (f *Factor) ConfigureApp(ctx context.Context, appCtx factors.AppConfigContext) (any, error) {
	raw, err := appCtx.RuntimeConfig(Name)
	if err != nil {
		return nil, err
	}
	cfg, _ := raw.(map[string]any)

	st := &AppState{stores: map[string]Store{}, allowedByID: map[string]map[string]bool{}}
	for label, entry := range cfg {
		entryMap, _ := entry.(map[string]any)
		backendType, _ := entryMap["type"].(string)
		ctor, ok := f.backends[backendType]
		if !ok {
			return nil, &Error{Kind: Other, Msg: fmt.Sprintf("key-value store %q: unknown backend %q", label, backendType)}
		}
		store, err := ctor(ctx, label, entryMap)
		if err != nil {
			return nil, err
		}
		st.stores[label] = store
	}
	// Every declared label is always implicitly backed by an in-memory
	// store when no explicit runtime-config entry names it, matching
	// the KV round-trip seed scenario's "default" label with no
	// [key_value_store.default] section required.
	for _, id := range appCtx.ComponentIDs() {
		meta, ok := appCtx.ComponentMetadata(id)
		if !ok {
			continue
		}
		allowed := map[string]bool{}
		for _, label := range meta.KeyValueStores {
			allowed[label] = true
			if _, ok := st.stores[label]; !ok {
				st.stores[label] = NewMemoryStore()
			}
		}
		st.allowedByID[id] = allowed
	}
	return st, nil
}

func (f *Factor) Prepare(appState any, prepCtx factors.PrepareContext) (any, error) {
	st := appState.(*AppState)
	return &InstanceBuilder{allowed: st.allowedByID[prepCtx.ComponentID()], stores: st.stores}, nil
}

func (f *Factor) Build(_ context.Context, builder any) (any, error) {
	b := builder.(*InstanceBuilder)
	return &InstanceState{allowed: b.allowed, stores: b.stores, handles: resource.NewTable(0)}, nil
}
