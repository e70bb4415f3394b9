package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cwsmith/redev/types"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")

	// Lazy registration: nothing is exported before first use.
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)

	p.RecordStateTransition(types.StateCreated, types.StateVersionChecked, 0.01)
	p.RecordStateTransition(types.StateCreated, types.StateVersionChecked, 0.02)
	p.RecordStageDuration(types.StageVersionCheck, 0.01, true)
	p.RecordSetupResult("rendezvous", true)
	p.RecordSetupResult("rendezvous", false)
	p.RecordTransportOperation("put", 0.001)
	p.RecordBlockBytes("put", 100)
	p.RecordBlockBytes("put", 28)

	require.InDelta(t, 2, testutil.ToFloat64(p.stateTransitions.WithLabelValues("Created", "VersionChecked")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.setupResults.WithLabelValues("rendezvous", "true")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.setupResults.WithLabelValues("rendezvous", "false")), 0)
	require.InDelta(t, 128, testutil.ToFloat64(p.blockBytes.WithLabelValues("put")), 0)

	families, err = reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "redev_coupler_state_transitions_total")
	require.Contains(t, names, "redev_transport_block_bytes_total")
}
