package host

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/wasmfactors/runtime/internal/factors"
)

// minimalWasmModule hand-assembles the smallest valid core-wasm binary
// exporting a single zero-argument function named exportName that
// returns the i32 constant result. Building it by hand (rather than
// reading a compiled fixture) keeps this test self-contained: no
// external wasm toolchain is available in this environment.
func minimalWasmModule(exportName string, result int32) []byte {
	var buf []byte
	buf = append(buf, 0x00, 0x61, 0x73, 0x6d) // magic
	buf = append(buf, 0x01, 0x00, 0x00, 0x00) // version

	// Type section: one type, () -> (i32).
	buf = append(buf, 0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f)

	// Function section: one function, using type 0.
	buf = append(buf, 0x03, 0x02, 0x01, 0x00)

	// Export section: one export, func index 0, named exportName.
	nameBytes := []byte(exportName)
	exportBody := append([]byte{0x01}, encodeLEB128(uint32(len(nameBytes)))...)
	exportBody = append(exportBody, nameBytes...)
	exportBody = append(exportBody, 0x00, 0x00) // kind=func, index=0
	buf = append(buf, 0x07)
	buf = append(buf, encodeLEB128(uint32(len(exportBody)))...)
	buf = append(buf, exportBody...)

	// Code section: one function body, no locals, i32.const result, end.
	resultLEB := encodeSLEB128(result)
	body := append([]byte{0x00, 0x41}, resultLEB...)
	body = append(body, 0x0b)
	codeBody := append([]byte{0x01}, encodeLEB128(uint32(len(body)))...)
	codeBody = append(codeBody, body...)
	buf = append(buf, 0x0a)
	buf = append(buf, encodeLEB128(uint32(len(codeBody)))...)
	buf = append(buf, codeBody...)

	return buf
}

func encodeLEB128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func encodeSLEB128(v int32) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

const testHTTPExport = "wasi:http/incoming-handler@0.2.0#handle"

func writeTestApp(t *testing.T, manifestTOML string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "comp-a.wasm"), minimalWasmModule(testHTTPExport, 0), 0o644); err != nil {
		t.Fatalf("writing test wasm module: %v", err)
	}
	manifestPath := filepath.Join(dir, "spin.toml")
	if err := os.WriteFile(manifestPath, []byte(manifestTOML), 0o644); err != nil {
		t.Fatalf("writing test manifest: %v", err)
	}
	return manifestPath
}

const basicManifest = `
spin_manifest_version = 2

[application]
name = "test-app"
version = "0.1.0"

[component.comp-a]
source = "comp-a.wasm"

[[trigger.http]]
route = "/..."
component = "comp-a"
`

func TestLoadBuildsARunnableApp(t *testing.T) {
	manifestPath := writeTestApp(t, basicManifest)
	ctx := context.Background()

	app, err := Load(ctx, Options{ManifestPath: manifestPath})
	if err != nil {
		t.Fatalf("unexpected error loading app: %v", err)
	}
	defer app.Close(ctx)

	if app.Locked.Name != "test-app" {
		t.Fatalf("expected the locked app to carry the manifest's name, got %q", app.Locked.Name)
	}

	ib, err := app.Executor.Prepare("comp-a", func(b *factors.BuilderSet) factors.PrepareContext {
		return fakePrepareContext{componentID: "comp-a", builders: b}
	})
	if err != nil {
		t.Fatalf("unexpected error preparing instance: %v", err)
	}
	inst, err := ib.Instantiate(ctx)
	if err != nil {
		t.Fatalf("unexpected error instantiating: %v", err)
	}
	defer inst.Drop(ctx)

	fn := inst.Module.ExportedFunction(testHTTPExport)
	if fn == nil {
		t.Fatalf("expected the compiled module to export %q", testHTTPExport)
	}
	results, err := fn.Call(ctx)
	if err != nil {
		t.Fatalf("unexpected error calling export: %v", err)
	}
	if len(results) != 1 || results[0] != 0 {
		t.Fatalf("expected the handler to return 0, got %v", results)
	}
}

func TestLoadDeniesOutboundHostNotInAllowList(t *testing.T) {
	manifest := `
spin_manifest_version = 2

[application]
name = "test-app"
version = "0.1.0"

[component.comp-a]
source = "comp-a.wasm"
allowed_outbound_hosts = ["https://api.example.com"]

[[trigger.http]]
route = "/..."
component = "comp-a"
`
	manifestPath := writeTestApp(t, manifest)
	ctx := context.Background()

	app, err := Load(ctx, Options{ManifestPath: manifestPath})
	if err != nil {
		t.Fatalf("unexpected error loading app: %v", err)
	}
	defer app.Close(ctx)

	ib, err := app.Executor.Prepare("comp-a", func(b *factors.BuilderSet) factors.PrepareContext {
		return fakePrepareContext{componentID: "comp-a", builders: b}
	})
	if err != nil {
		t.Fatalf("unexpected error preparing instance: %v", err)
	}
	inst, err := ib.Instantiate(ctx)
	if err != nil {
		t.Fatalf("unexpected error instantiating: %v", err)
	}
	defer inst.Drop(ctx)

	httpState, err := inst.States.Get("outbound_http")
	if err != nil {
		t.Fatalf("unexpected error fetching outbound_http instance state: %v", err)
	}
	doer, ok := httpState.(interface {
		Do(ctx context.Context, req *http.Request, client *http.Client) (*http.Response, error)
	})
	if !ok {
		t.Fatalf("expected outbound_http instance state to expose Do")
	}

	req, _ := http.NewRequest(http.MethodGet, "https://not-allowed.example.com/", nil)
	if _, err := doer.Do(ctx, req, nil); err == nil {
		t.Fatalf("expected Do to deny a host outside comp-a's allow-list")
	}
}

func TestLockManifestDoesNotRequireAnEngine(t *testing.T) {
	manifestPath := writeTestApp(t, basicManifest)

	locked, err := LockManifest(manifestPath)
	if err != nil {
		t.Fatalf("unexpected error locking manifest: %v", err)
	}
	if _, ok := locked.Components["comp-a"]; !ok {
		t.Fatalf("expected the locked app to contain comp-a")
	}
	if len(locked.Triggers) != 1 || locked.Triggers[0].Components[""] != "comp-a" {
		t.Fatalf("expected one http trigger bound to comp-a, got %#v", locked.Triggers)
	}
}

func TestLoadSucceedsWithRequiredVariableUnresolvedUntilFirstUse(t *testing.T) {
	manifest := `
spin_manifest_version = 2

[application]
name = "test-app"
version = "0.1.0"

[variables]
api_key = { required = true }

[component.comp-a]
source = "comp-a.wasm"
[component.comp-a.variables]
key = "{{ api_key }}"

[[trigger.http]]
route = "/..."
component = "comp-a"
`
	manifestPath := writeTestApp(t, manifest)
	ctx := context.Background()

	app, err := Load(ctx, Options{ManifestPath: manifestPath})
	if err != nil {
		t.Fatalf("unexpected error loading app (required variables are validated lazily, not at configure time): %v", err)
	}
	defer app.Close(ctx)
}

type fakePrepareContext struct {
	componentID string
	builders    *factors.BuilderSet
}

func (c fakePrepareContext) ComponentID() string { return c.componentID }
func (c fakePrepareContext) Builder(name string) (any, error) {
	return c.builders.Get(name)
}
