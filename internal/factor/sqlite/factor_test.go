package sqlite

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/wasmfactors/runtime/internal/resource"
)

func TestOpenDeniesUnlistedLabel(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	state := &InstanceState{
		allowed: map[string]bool{"default": true},
		dbs:     map[string]*sql.DB{"default": db},
		handles: resource.NewTable(0),
	}

	if _, err := state.Open("other"); err == nil {
		t.Fatalf("expected Open to deny a label not in this component's allow-list")
	} else if serr, ok := err.(*Error); !ok || serr.Kind != AccessDenied {
		t.Fatalf("expected an AccessDenied *Error, got %#v", err)
	}
}

func TestOpenAndQueryAllowedLabel(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	state := &InstanceState{
		allowed: map[string]bool{"default": true},
		dbs:     map[string]*sql.DB{"default": db},
		handles: resource.NewTable(0),
	}

	handle, err := state.Open("default")
	if err != nil {
		t.Fatalf("unexpected error opening allowed label: %v", err)
	}

	got, err := state.DB(handle)
	if err != nil {
		t.Fatalf("unexpected error fetching db: %v", err)
	}
	if _, err := got.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("unexpected error exercising the resolved *sql.DB: %v", err)
	}

	if err := state.Close(handle); err != nil {
		t.Fatalf("unexpected error closing handle: %v", err)
	}
	if _, err := state.DB(handle); err == nil {
		t.Fatalf("expected DB to error for a handle already closed")
	}
}

func TestOpenUnconfiguredLabelErrors(t *testing.T) {
	state := &InstanceState{
		allowed: map[string]bool{"ghost": true},
		dbs:     map[string]*sql.DB{},
		handles: resource.NewTable(0),
	}
	if _, err := state.Open("ghost"); err == nil {
		t.Fatalf("expected Open to error for an allowed label with no backing database configured")
	} else if serr, ok := err.(*Error); !ok || serr.Kind != NoSuchDatabase {
		t.Fatalf("expected a NoSuchDatabase *Error, got %#v", err)
	}
}
