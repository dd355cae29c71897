package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExecutorMetrics tracks component instance lifecycle transitions.
type ExecutorMetrics struct {
	InstancesBuilt    prometheus.Counter
	InstancesRunning  prometheus.Gauge
	InstancesFailed   prometheus.Counter
	InstanceBuildTime prometheus.Histogram
}

func newExecutorMetrics(namespace string) *ExecutorMetrics {
	subsystem := "executor"
	return &ExecutorMetrics{
		InstancesBuilt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "instances_built_total",
			Help: "Total component instances built",
		}),
		InstancesRunning: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "instances_running",
			Help: "Component instances currently in the running state",
		}),
		InstancesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "instances_failed_total",
			Help: "Total component instances that transitioned to failed",
		}),
		InstanceBuildTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "instance_build_seconds",
			Help:    "Time spent in Prepare+Build before a module is instantiated",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// FactorMetrics tracks per-factor host-call activity across all
// configured factors, labeled by factor name so one counter family
// covers key-value, outbound-http, outbound-redis, etc.
type FactorMetrics struct {
	HostCalls       *prometheus.CounterVec
	HostCallErrors  *prometheus.CounterVec
	OutboundDenied  *prometheus.CounterVec
	ResourceHandles *prometheus.GaugeVec
}

func newFactorMetrics(namespace string) *FactorMetrics {
	subsystem := "factor"
	return &FactorMetrics{
		HostCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "host_calls_total",
			Help: "Total host function invocations, labeled by factor",
		}, []string{"factor"}),
		HostCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "host_call_errors_total",
			Help: "Total host function invocations that returned an error, labeled by factor",
		}, []string{"factor"}),
		OutboundDenied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "outbound_denied_total",
			Help: "Outbound connection attempts rejected by allow-list policy, labeled by factor",
		}, []string{"factor"}),
		ResourceHandles: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "resource_handles_open",
			Help: "Open resource-table handles, labeled by factor",
		}, []string{"factor"}),
	}
}

// TriggerMetrics tracks inbound event dispatch across trigger types.
type TriggerMetrics struct {
	EventsDispatched *prometheus.CounterVec
	DispatchErrors   *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
}

func newTriggerMetrics(namespace string) *TriggerMetrics {
	subsystem := "trigger"
	return &TriggerMetrics{
		EventsDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "events_dispatched_total",
			Help: "Total inbound events dispatched to a component, labeled by trigger type",
		}, []string{"trigger_type"}),
		DispatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "dispatch_errors_total",
			Help: "Total dispatch attempts that ended in a failed instance, labeled by trigger type",
		}, []string{"trigger_type"}),
		DispatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "dispatch_duration_seconds",
			Help:    "Time from trigger receipt to instance completion",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger_type"}),
	}
}
