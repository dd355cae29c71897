package keyvalue

import (
	"context"
	"database/sql"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wasmfactors/runtime/internal/lock"
	"github.com/wasmfactors/runtime/internal/resource"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected (v, true), got (%q, %v, %v)", v, ok, err)
	}
	exists, err := s.Exists(ctx, "k")
	if err != nil || !exists {
		t.Fatalf("expected key to exist, got %v, %v", exists, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, ok, err = s.Get(ctx, "k")
	if err != nil || ok {
		t.Fatalf("expected key gone after delete, got ok=%v err=%v", ok, err)
	}
	keys, _, err := s.ListKeys(ctx, "")
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys remaining, got %v, %v", keys, err)
	}
}

func TestInstanceStateDeniesUnlistedStore(t *testing.T) {
	st := &InstanceState{
		allowed: map[string]bool{"default": true},
		stores:  map[string]Store{"default": NewMemoryStore()},
		handles: resource.NewTable(0),
	}
	if _, err := st.Open("other"); err == nil {
		t.Fatal("expected AccessDenied for a store not in the allow-list")
	}
	h, err := st.Open("default")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := st.Store(h); err != nil {
		t.Fatalf("unexpected error resolving handle: %v", err)
	}
}

func TestSQLiteStoreWithLockSerializesWrites(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory sqlite db: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(ctx, db, "default")
	if err != nil {
		t.Fatalf("unexpected error building SQLiteStore: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store.WithLock(lock.New(client, "keyvalue:default", lock.DefaultConfig(), nil))

	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("unexpected error writing through the lock: %v", err)
	}
	v, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected (v, true), got (%q, %v, %v)", v, ok, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("unexpected error deleting through the lock: %v", err)
	}
}

func TestSQLiteStoreWithLockDeniesWriteWhileHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory sqlite db: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteStore(ctx, db, "default")
	if err != nil {
		t.Fatalf("unexpected error building SQLiteStore: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := lock.Config{TTL: 5000000000, MaxRetries: 0, RetryInterval: 1}
	holder := lock.New(client, "keyvalue:default", cfg, nil)
	if ok, err := holder.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected the competing holder to acquire first, ok=%v err=%v", ok, err)
	}
	defer holder.Release(ctx)

	store.WithLock(lock.New(client, "keyvalue:default", cfg, nil))
	if err := store.Set(ctx, "k", []byte("v")); err == nil {
		t.Fatalf("expected Set to fail while the write lock is held by another holder")
	}
}

func TestDefaultSQLiteBackendRequiresPath(t *testing.T) {
	if _, err := DefaultSQLiteBackend(context.Background(), "default", map[string]any{}); err == nil {
		t.Fatalf("expected DefaultSQLiteBackend to reject an entry with no path")
	}
}

func TestDefaultSQLiteBackendOpensAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	store, err := DefaultSQLiteBackend(ctx, "default", map[string]any{"path": ":memory:"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("unexpected error writing: %v", err)
	}
	v, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected (v, true), got (%q, %v, %v)", v, ok, err)
	}
}

func TestCloseInstanceEmptiesResourceTable(t *testing.T) {
	st := &InstanceState{
		allowed: map[string]bool{"default": true},
		stores:  map[string]Store{"default": NewMemoryStore()},
		handles: resource.NewTable(0),
	}
	if _, err := st.Open("default"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st.CloseInstance()
	if st.handles.Len() != 0 {
		t.Fatalf("expected resource table empty after CloseInstance, got %d", st.handles.Len())
	}
}
