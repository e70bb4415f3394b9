package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/cwsmith/redev/internal/kvutil"
	"github.com/cwsmith/redev/internal/natsutil"
	"github.com/cwsmith/redev/types"
)

// NATSStore is a Store backed by a JetStream KV bucket.
//
// Both applications connect to the same NATS deployment and bucket. The store
// borrows the bucket handle; the NATS connection is owned by the caller.
type NATSStore struct {
	kv jetstream.KeyValue
}

// Compile-time assertion that NATSStore implements Store.
var _ Store = (*NATSStore)(nil)

// NewNATSStore wraps an open KV bucket.
func NewNATSStore(kv jetstream.KeyValue) *NATSStore {
	return &NATSStore{kv: kv}
}

// OpenNATSStore creates or opens the dataset bucket.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - bucket: Bucket name, e.g. "redev-dataset"
//   - ttl: Bucket TTL (0 = keep values until purged)
//
// Returns:
//   - *NATSStore: Store over the bucket
//   - error: ErrTransport if the bucket cannot be created or opened
func OpenNATSStore(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*NATSStore, error) {
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "redev staged datasets",
		History:     1,
		TTL:         ttl,
	}, 5)
	if err != nil {
		return nil, natsutil.Wrap("open dataset bucket "+bucket, err)
	}

	return NewNATSStore(kv), nil
}

// Put stores value under key.
func (s *NATSStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return natsutil.Wrap("put "+key, err)
	}

	return nil
}

// Get returns the value under key.
func (s *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return nil, natsutil.Wrap("get "+key, err)
	}

	return entry.Value(), nil
}

// Wait watches key until it holds a value.
func (s *NATSStore) Wait(ctx context.Context, key string) ([]byte, error) {
	watcher, err := s.kv.Watch(ctx, key)
	if err != nil {
		return nil, natsutil.Wrap("watch "+key, err)
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case entry, ok := <-watcher.Updates():
			if !ok {
				return nil, fmt.Errorf("%w: watch %s closed", types.ErrTransport, key)
			}
			// nil marks the end of the initial values
			if entry == nil || entry.Operation() != jetstream.KeyValuePut {
				continue
			}

			return entry.Value(), nil
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for %s: %w", types.ErrTransport, key, ctx.Err())
		}
	}
}

// Purge removes every key starting with prefix.
func (s *NATSStore) Purge(ctx context.Context, prefix string) error {
	if _, err := kvutil.DeletePrefix(ctx, s.kv, prefix); err != nil {
		return natsutil.Wrap("purge "+prefix, err)
	}

	return nil
}
