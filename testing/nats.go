package testing

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StartEmbeddedNATS starts an embedded NATS server with JetStream enabled for testing.
//
// The server runs in-process and stores data in a temporary directory that is
// removed when the test completes. Both applications of a rendezvous test
// share this one server, exactly as two real process groups share a NATS
// deployment.
//
// The server uses a random available port to avoid conflicts in parallel tests.
//
// Parameters:
//   - t: Testing context for logging and cleanup
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected NATS client (closed automatically on test completion)
//
// Example:
//
//	func TestCoupler(t *testing.T) {
//	    _, nc := redevtest.StartEmbeddedNATS(t)
//	    kv := redevtest.CreateJetStreamKV(t, nc, "dataset")
//	    store := stage.NewNATSStore(kv)
//	}
func StartEmbeddedNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create embedded NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("Embedded NATS server not ready within timeout")
	}

	nc, err := Connect(t, ns)
	if err != nil {
		ns.Shutdown()
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}

	// Cleanups run LIFO: connections opened later by Connect close before shutdown.
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// Connect opens an additional client connection to an embedded server.
//
// Each simulated process (rank) of a multi-process test should use its own
// connection, the way separate OS processes would.
//
// Parameters:
//   - t: Testing context for cleanup
//   - ns: Server returned by StartEmbeddedNATS
//
// Returns:
//   - *nats.Conn: Connected client (closed automatically on test completion)
//   - error: Connection error
func Connect(t *testing.T, ns *server.Server) (*nats.Conn, error) {
	t.Helper()

	nc, err := nats.Connect(ns.ClientURL(),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(3),
	)
	if err != nil {
		return nil, err
	}
	t.Cleanup(nc.Close)

	return nc, nil
}

// CreateJetStreamKV creates a JetStream KV bucket for testing.
//
// The bucket uses memory storage and a one-minute TTL.
//
// Parameters:
//   - t: Testing context
//   - nc: NATS connection (from StartEmbeddedNATS)
//   - bucketName: Name of the KV bucket to create
//
// Returns:
//   - jetstream.KeyValue: The created KV bucket interface
func CreateJetStreamKV(t *testing.T, nc *nats.Conn, bucketName string) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to get JetStream context: %v", err)
	}

	kv, err := js.CreateKeyValue(t.Context(), jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Test KV bucket: %s", bucketName),
		TTL:         1 * time.Minute,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	})
	if err != nil {
		t.Fatalf("Failed to create KV bucket %s: %v", bucketName, err)
	}

	return kv
}

// OpenJetStreamKV opens an existing bucket on another connection.
//
// Parameters:
//   - t: Testing context
//   - nc: NATS connection
//   - bucketName: Bucket created earlier with CreateJetStreamKV
//
// Returns:
//   - jetstream.KeyValue: The bucket bound to nc
func OpenJetStreamKV(t *testing.T, nc *nats.Conn, bucketName string) jetstream.KeyValue {
	t.Helper()

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("Failed to get JetStream context: %v", err)
	}

	kv, err := js.KeyValue(t.Context(), bucketName)
	if err != nil {
		t.Fatalf("Failed to open KV bucket %s: %v", bucketName, err)
	}

	return kv
}
