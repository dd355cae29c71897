package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/wasmfactors/runtime/internal/executor"
	"github.com/wasmfactors/runtime/internal/lockedapp"
)

// fileComponentProvider resolves each locked component to the wasm bytes
// at its ResolvedSource.LocalPath, digesting the file's contents so the
// engine's compiled-module cache keys on content rather than path (a
// path can be reused across app reloads with different bytes).
type fileComponentProvider struct {
	app *lockedapp.App
}

func newFileComponentProvider(app *lockedapp.App) *fileComponentProvider {
	return &fileComponentProvider{app: app}
}

func (p *fileComponentProvider) Source(_ context.Context, componentID string) (executor.ComponentSource, error) {
	comp, ok := p.app.Components[componentID]
	if !ok {
		return executor.ComponentSource{}, fmt.Errorf("host: unknown component %q", componentID)
	}
	if comp.Source.LocalPath == "" {
		if comp.Source.Digest != "" {
			return executor.ComponentSource{}, fmt.Errorf("host: component %q has a remote digest %q but no local cache path resolved", componentID, comp.Source.Digest)
		}
		return executor.ComponentSource{}, fmt.Errorf("host: component %q has no resolved source", componentID)
	}
	bytes, err := os.ReadFile(comp.Source.LocalPath)
	if err != nil {
		return executor.ComponentSource{}, fmt.Errorf("host: reading component %q wasm bytes: %w", componentID, err)
	}
	sum := sha256.Sum256(bytes)
	return executor.ComponentSource{Digest: hex.EncodeToString(sum[:]), Bytes: bytes}, nil
}
