// Package metrics provides types.MetricsCollector implementations.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cwsmith/redev/types"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are registered lazily on first use, so constructing one has no
// side effects on the registry.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stateTransitions *prometheus.CounterVec
	stateDuration    *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	setupResults     *prometheus.CounterVec
	transportLatency *prometheus.HistogramVec
	blockBytes       *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "redev" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "redev"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coupler",
			Name:      "state_transitions_total",
			Help:      "Total coupler state transitions by source and target state.",
		}, []string{"from", "to"})

		p.stateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "coupler",
			Name:      "state_duration_seconds",
			Help:      "Time spent in a state before leaving it.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~4m
		}, []string{"state"})

		p.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "coupler",
			Name:      "stage_duration_seconds",
			Help:      "Duration of setup stages by stage and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage", "success"})

		p.setupResults = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "coupler",
			Name:      "setup_results_total",
			Help:      "Total setup outcomes by role.",
		}, []string{"role", "success"})

		p.transportLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "operation_seconds",
			Help:      "Latency of staged transport store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 3, 10),
		}, []string{"op"})

		p.blockBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "block_bytes_total",
			Help:      "Encoded block bytes moved through the transport by direction.",
		}, []string{"direction"})

		p.reg.MustRegister(p.stateTransitions)
		p.reg.MustRegister(p.stateDuration)
		p.reg.MustRegister(p.stageDuration)
		p.reg.MustRegister(p.setupResults)
		p.reg.MustRegister(p.transportLatency)
		p.reg.MustRegister(p.blockBytes)
	})
}

// RecordStateTransition counts the transition and observes time spent in from.
func (p *PrometheusCollector) RecordStateTransition(from, to types.State, duration float64) {
	p.ensureRegistered()
	p.stateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	p.stateDuration.WithLabelValues(from.String()).Observe(duration)
}

// RecordStageDuration observes a setup stage duration.
func (p *PrometheusCollector) RecordStageDuration(stage string, duration float64, success bool) {
	p.ensureRegistered()
	p.stageDuration.WithLabelValues(stage, strconv.FormatBool(success)).Observe(duration)
}

// RecordSetupResult counts a setup outcome.
func (p *PrometheusCollector) RecordSetupResult(role string, success bool) {
	p.ensureRegistered()
	p.setupResults.WithLabelValues(role, strconv.FormatBool(success)).Inc()
}

// RecordTransportOperation observes a store operation latency.
func (p *PrometheusCollector) RecordTransportOperation(operation string, duration float64) {
	p.ensureRegistered()
	p.transportLatency.WithLabelValues(operation).Observe(duration)
}

// RecordBlockBytes adds an encoded block size.
func (p *PrometheusCollector) RecordBlockBytes(direction string, size int) {
	p.ensureRegistered()
	p.blockBytes.WithLabelValues(direction).Add(float64(size))
}
