// Package testing provides test utilities for the redev library.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers for integration testing of the staged transport and
// the NATS-backed process group. It follows Go's convention of providing
// testing utilities in a dedicated package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single NATS server with JetStream
//   - Connect: Extra client connection, one per simulated process
//   - CreateJetStreamKV / OpenJetStreamKV: KV bucket helpers
//   - NewTestLogger: Logger writing to testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    redevtest "github.com/cwsmith/redev/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := redevtest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
