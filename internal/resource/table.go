// Package resource implements the per-instance resource table: a bounded
// map from u32 handles to opaque host objects (KV store handles, SQL
// connections, streams, pollables, MQTT connections, …). Every networked
// or stateful factor allocates its handles from one of these per
// instance; the table itself is single-threaded, matching the per-event
// ordering guarantee that each instance's host calls are serialized on
// the guest side (spec.md §5).
package resource

import (
	"fmt"
)

// DefaultCapacity is the table's default bound; a manifest-level override
// is not exposed, matching upstream's fixed default.
const DefaultCapacity = 1024

// Kind identifies the error condition for a Table operation failure.
type Kind int

const (
	// TableFull is returned when Insert is attempted on a table already
	// holding Capacity live entries.
	TableFull Kind = iota
	// InvalidHandle is returned when Get/Remove is given a handle not
	// currently live in the table (never allocated, already removed, or
	// belonging to a different instance's table entirely).
	InvalidHandle
)

// Error reports a resource-table operation failure.
type Error struct {
	Kind   Kind
	Handle uint32
}

func (e *Error) Error() string {
	switch e.Kind {
	case TableFull:
		return "resource table: at capacity"
	case InvalidHandle:
		return fmt.Sprintf("resource table: invalid handle %d", e.Handle)
	default:
		return "resource table: unknown error"
	}
}

// Table is a bounded, single-threaded handle allocator. It is owned by
// exactly one per-instance state and is never shared across instances
// (spec.md §5: "the resource table is per-instance; no cross-instance
// aliasing").
type Table struct {
	capacity int
	entries  map[uint32]any
	next     uint32 // next handle to try; wraps at capacity
}

// NewTable constructs a Table with the given capacity. A capacity <= 0
// falls back to DefaultCapacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{capacity: capacity, entries: map[uint32]any{}}
}

// Insert allocates a fresh handle for obj and returns it. Handles are
// assigned by scanning forward from the last-issued handle and wrapping
// around at capacity, so a freed handle is only reused once every other
// slot has been tried first — this keeps a handle's value maximally
// stable across a burst of alloc/free churn, matching the wrap-around
// reuse invariant in spec.md §3.
func (t *Table) Insert(obj any) (uint32, error) {
	if len(t.entries) >= t.capacity {
		return 0, &Error{Kind: TableFull}
	}
	for i := 0; i < t.capacity; i++ {
		h := t.next
		t.next = (t.next + 1) % uint32(t.capacity)
		if _, taken := t.entries[h]; !taken {
			t.entries[h] = obj
			return h, nil
		}
	}
	// len(entries) < capacity guarantees a free slot exists; reaching
	// here would mean the bookkeeping above is inconsistent.
	return 0, &Error{Kind: TableFull}
}

// Get returns the object owning handle, or an InvalidHandle error.
func (t *Table) Get(handle uint32) (any, error) {
	obj, ok := t.entries[handle]
	if !ok {
		return nil, &Error{Kind: InvalidHandle, Handle: handle}
	}
	return obj, nil
}

// Remove releases handle, returning the object that owned it so the
// caller can run any close/cleanup logic. Removing an unknown handle is
// an InvalidHandle error.
func (t *Table) Remove(handle uint32) (any, error) {
	obj, ok := t.entries[handle]
	if !ok {
		return nil, &Error{Kind: InvalidHandle, Handle: handle}
	}
	delete(t.entries, handle)
	return obj, nil
}

// Len reports the number of live handles.
func (t *Table) Len() int { return len(t.entries) }

// CloseAll removes every live entry, invoking closeFn (if non-nil) on
// each object in an unspecified order. Used when an instance's store
// drops: every table entry closes synchronously (spec.md §5 cancellation
// semantics), regardless of cancellation vs. normal completion.
func (t *Table) CloseAll(closeFn func(any)) {
	if closeFn != nil {
		for _, obj := range t.entries {
			closeFn(obj)
		}
	}
	t.entries = map[uint32]any{}
}
