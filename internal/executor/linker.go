package executor

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// Linker implements factors.Linker over a wazero.Runtime. Every factor's
// Init phase calls AddImport once per host function it exposes; the
// resulting host modules (one per WIT-style interface name, e.g.
// "fermyon:spin/key-value@2.0.0") are only instantiated into the
// runtime's module namespace once, by instantiate, after every factor
// has registered — mirroring the "linker is built once per configured
// app" decision.
type Linker struct {
	runtime  wazero.Runtime
	builders map[string]wazero.HostModuleBuilder
}

func newLinker(rt wazero.Runtime) *Linker {
	return &Linker{runtime: rt, builders: map[string]wazero.HostModuleBuilder{}}
}

// AddImport registers fn as the host function `name` within interface
// interfaceName. fn must be a plain Go function whose parameter and
// result types wazero can reflect into wasm value types (uint32, uint64,
// int32, int64, float32, float64, or an api.Module-taking signature);
// this mirrors wazero's own WithFunc contract.
func (l *Linker) AddImport(interfaceName, name string, fn any) error {
	b, ok := l.builders[interfaceName]
	if !ok {
		b = l.runtime.NewHostModuleBuilder(interfaceName)
	}
	l.builders[interfaceName] = b.NewFunctionBuilder().WithFunc(fn).Export(name)
	return nil
}

func (l *Linker) instantiate(ctx context.Context) error {
	for name, b := range l.builders {
		if _, err := b.Instantiate(ctx); err != nil {
			return fmt.Errorf("executor: instantiating host module %q: %w", name, err)
		}
	}
	return nil
}
