package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CircuitBreakerMetrics holds the Prometheus series for one label's
// circuit breaker.
type CircuitBreakerMetrics struct {
	State            prometheus.Gauge
	Failures         prometheus.Counter
	Successes        prometheus.Counter
	StateChanges     *prometheus.CounterVec
	RequestsBlocked  prometheus.Counter
	HalfOpenRequests prometheus.Counter
	SlowCalls        prometheus.Counter
	CallDuration     *prometheus.HistogramVec
}

// NewCircuitBreakerMetrics registers one label's metric set under the
// wasmfactors_llm namespace, subsystem named after the label so multiple
// AI model labels don't collide on registration.
func NewCircuitBreakerMetrics(label string) *CircuitBreakerMetrics {
	subsystem := "circuit_breaker_" + label
	return &CircuitBreakerMetrics{
		State: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "state",
			Help: "Current circuit breaker state (0=closed, 1=open, 2=half_open)",
		}),
		Failures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "failures_total",
			Help: "Total failed inference calls",
		}),
		Successes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "successes_total",
			Help: "Total successful inference calls",
		}),
		StateChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "state_changes_total",
			Help: "Total circuit breaker state transitions",
		}, []string{"from", "to"}),
		RequestsBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "requests_blocked_total",
			Help: "Requests blocked while the circuit was open",
		}),
		HalfOpenRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "half_open_requests_total",
			Help: "Test requests issued while half-open",
		}),
		SlowCalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "slow_calls_total",
			Help: "Calls exceeding the slow-call threshold",
		}),
		CallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wasmfactors_llm", Subsystem: subsystem, Name: "call_duration_seconds",
			Help:    "Inference call duration",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0, 30.0},
		}, []string{"result"}),
	}
}

func (m *CircuitBreakerMetrics) RecordStateChange(from, to CircuitBreakerState) {
	m.StateChanges.WithLabelValues(from.String(), to.String()).Inc()
	m.State.Set(float64(to))
}

func (m *CircuitBreakerMetrics) RecordSuccess(duration float64) {
	m.Successes.Inc()
	m.CallDuration.WithLabelValues("success").Observe(duration)
}

func (m *CircuitBreakerMetrics) RecordFailure(duration float64, slow bool) {
	m.Failures.Inc()
	if slow {
		m.SlowCalls.Inc()
	}
	m.CallDuration.WithLabelValues("failure").Observe(duration)
}
