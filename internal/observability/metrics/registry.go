// Package metrics provides centralized Prometheus metrics management for
// the runtime, organized by category the same way the domain registry
// this was adapted from splits metrics into business/technical/infra:
// here the three categories are executor (instance lifecycle), factor
// (per-factor host-call counters), and trigger (event dispatch).
//
// All metrics follow the naming convention:
// wasmfactors_<category>_<metric_name>_<unit>
package metrics

import "sync"

// Registry is the central registry for all runtime metrics, organized
// by category and lazily initialized via per-category sync.Once so an
// embedder that only drives one trigger type doesn't pay for metrics it
// never touches.
type Registry struct {
	namespace string

	executor *ExecutorMetrics
	factor   *FactorMetrics
	trigger  *TriggerMetrics

	executorOnce sync.Once
	factorOnce   sync.Once
	triggerOnce  sync.Once
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide singleton registry under the
// "wasmfactors" namespace.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry("wasmfactors")
	})
	return defaultRegistry
}

// NewRegistry builds a registry under the given namespace; used by tests
// and embedders wanting an isolated registry instead of the singleton.
func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace}
}

// Executor returns the instance-lifecycle metric set, initializing it on
// first use.
func (r *Registry) Executor() *ExecutorMetrics {
	r.executorOnce.Do(func() { r.executor = newExecutorMetrics(r.namespace) })
	return r.executor
}

// Factor returns the per-factor host-call metric set.
func (r *Registry) Factor() *FactorMetrics {
	r.factorOnce.Do(func() { r.factor = newFactorMetrics(r.namespace) })
	return r.factor
}

// Trigger returns the trigger-dispatch metric set.
func (r *Registry) Trigger() *TriggerMetrics {
	r.triggerOnce.Do(func() { r.trigger = newTriggerMetrics(r.namespace) })
	return r.trigger
}
