package metrics

import "github.com/cwsmith/redev/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	c, err := redev.NewCoupler(cfg, group, transport, ptn, redev.RoleRendezvous,
//	    redev.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// SetupMetrics implementation

// RecordStateTransition discards the state transition metric.
func (n *NopMetrics) RecordStateTransition(_ /* from */, _ /* to */ types.State, _ /* duration */ float64) {
}

// RecordStageDuration discards the stage duration metric.
func (n *NopMetrics) RecordStageDuration(_ /* stage */ string, _ /* duration */ float64, _ /* success */ bool) {
}

// RecordSetupResult discards the setup result metric.
func (n *NopMetrics) RecordSetupResult(_ /* role */ string, _ /* success */ bool) {}

// TransportMetrics implementation

// RecordTransportOperation discards the transport operation metric.
func (n *NopMetrics) RecordTransportOperation(_ /* operation */ string, _ /* duration */ float64) {}

// RecordBlockBytes discards the block size metric.
func (n *NopMetrics) RecordBlockBytes(_ /* direction */ string, _ /* size */ int) {}
