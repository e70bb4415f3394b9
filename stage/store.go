package stage

import (
	"context"
	"errors"
	"time"

	"github.com/cwsmith/redev/types"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Store is the key-value backend of the staged transport.
//
// Keys are dot-separated tokens of [A-Za-z0-9_-]. Implementations must be
// safe for concurrent use by every rank of both applications.
type Store interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Wait blocks until key holds a value and returns it.
	Wait(ctx context.Context, key string) ([]byte, error)

	// Purge removes every key starting with prefix.
	Purge(ctx context.Context, prefix string) error
}

// instrumented records latency of every store operation.
type instrumented struct {
	Store
	metrics types.TransportMetrics
}

func (s instrumented) Put(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	defer func() { s.metrics.RecordTransportOperation("put", time.Since(start).Seconds()) }()

	return s.Store.Put(ctx, key, value)
}

func (s instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() { s.metrics.RecordTransportOperation("get", time.Since(start).Seconds()) }()

	return s.Store.Get(ctx, key)
}

func (s instrumented) Wait(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer func() { s.metrics.RecordTransportOperation("wait", time.Since(start).Seconds()) }()

	return s.Store.Wait(ctx, key)
}

func (s instrumented) Purge(ctx context.Context, prefix string) error {
	start := time.Now()
	defer func() { s.metrics.RecordTransportOperation("purge", time.Since(start).Seconds()) }()

	return s.Store.Purge(ctx, prefix)
}
