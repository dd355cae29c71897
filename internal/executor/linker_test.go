package executor

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

func TestLinkerAddImportAndInstantiate(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	l := newLinker(rt)
	called := false
	err := l.AddImport("fermyon:spin/variables@2.0.0", "get", func() uint32 {
		called = true
		return 0
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.instantiate(ctx); err != nil {
		t.Fatalf("unexpected error instantiating host module: %v", err)
	}
	_ = called
}

func TestLinkerGroupsImportsByInterface(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	l := newLinker(rt)
	if err := l.AddImport("fermyon:spin/key-value@2.0.0", "open", func() uint32 { return 0 }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AddImport("fermyon:spin/key-value@2.0.0", "get", func() uint32 { return 0 }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(l.builders) != 1 {
		t.Fatalf("expected imports for the same interface to share one host module, got %d", len(l.builders))
	}
	if err := l.instantiate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
