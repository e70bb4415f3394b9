package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	SetupMetrics
	TransportMetrics
}

// SetupMetrics defines metrics for the coupler setup sequence.
type SetupMetrics interface {
	// RecordStateTransition records a coupler state transition event.
	RecordStateTransition(from, to State, duration float64)

	// RecordStageDuration records the time taken by one setup stage.
	//
	// Parameters:
	//   - stage: Stage name (see types.Stage* constants)
	//   - duration: Time taken in seconds
	//   - success: true if the stage succeeded
	RecordStageDuration(stage string, duration float64, success bool)

	// RecordSetupResult records the outcome of a complete Setup call.
	//
	// Parameters:
	//   - role: "rendezvous" or "participant"
	//   - success: true if setup reached Ready
	RecordSetupResult(role string, success bool)
}

// TransportMetrics defines metrics for staged transport operations.
type TransportMetrics interface {
	// RecordTransportOperation records a store operation latency.
	//
	// Parameters:
	//   - operation: Operation type ("put", "get", "wait", "purge")
	//   - duration: Time taken in seconds
	RecordTransportOperation(operation string, duration float64)

	// RecordBlockBytes records the encoded size of a block moved through the transport.
	//
	// Parameters:
	//   - direction: "put" or "get"
	//   - size: Encoded size in bytes
	RecordBlockBytes(direction string, size int)
}
