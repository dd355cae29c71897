package resource

import "testing"

func TestInsertGetRemove(t *testing.T) {
	tbl := NewTable(4)
	h, err := tbl.Insert("obj-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := tbl.Get(h)
	if err != nil || got != "obj-a" {
		t.Fatalf("expected obj-a, got %v, err %v", got, err)
	}
	removed, err := tbl.Remove(h)
	if err != nil || removed != "obj-a" {
		t.Fatalf("expected remove to return obj-a, got %v, err %v", removed, err)
	}
	if _, err := tbl.Get(h); err == nil {
		t.Fatal("expected error getting removed handle")
	}
}

func TestTableFullAtCapacity(t *testing.T) {
	tbl := NewTable(2)
	if _, err := tbl.Insert("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tbl.Insert("b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := tbl.Insert("c")
	if err == nil {
		t.Fatal("expected TableFull error")
	}
	rerr, ok := err.(*Error)
	if !ok || rerr.Kind != TableFull {
		t.Fatalf("expected TableFull, got %v", err)
	}
}

func TestHandleReuseOnlyAfterWrapAround(t *testing.T) {
	tbl := NewTable(3)
	h0, _ := tbl.Insert("a")
	h1, _ := tbl.Insert("b")
	_, _ = tbl.Remove(h0)
	h2, err := tbl.Insert("c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2 == h0 {
		t.Fatalf("expected handle %d not to be reused before wrap-around", h0)
	}
	if h2 == h1 {
		t.Fatalf("new handle collided with still-live handle %d", h1)
	}
}

func TestCloseAllInvokesCallbackAndClears(t *testing.T) {
	tbl := NewTable(4)
	_, _ = tbl.Insert("a")
	_, _ = tbl.Insert("b")
	var closed []string
	tbl.CloseAll(func(obj any) {
		closed = append(closed, obj.(string))
	})
	if len(closed) != 2 {
		t.Fatalf("expected 2 objects closed, got %d", len(closed))
	}
	if tbl.Len() != 0 {
		t.Fatalf("expected table empty after CloseAll, got %d", tbl.Len())
	}
}

func TestInvalidHandleOnUnknown(t *testing.T) {
	tbl := NewTable(4)
	if _, err := tbl.Get(42); err == nil {
		t.Fatal("expected error for unknown handle")
	}
	if _, err := tbl.Remove(42); err == nil {
		t.Fatal("expected error for unknown handle remove")
	}
}
