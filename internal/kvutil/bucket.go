// Package kvutil provides utilities for working with NATS JetStream KeyValue stores.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// EnsureBucket creates or opens a KV bucket with retry logic.
//
// Both applications of a rendezvous, and every rank within them, race to
// create the same dataset and group buckets at start-up. Creation that loses
// the race falls back to opening the existing bucket; transient failures are
// retried with exponential backoff.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Last error after all attempts
//
// Example:
//
//	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "redev-dataset",
//	    TTL:    10 * time.Minute,
//	}, 5)
func EnsureBucket(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := range maxRetries {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, config.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		// 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		config.Bucket, maxRetries, lastErr)
}

// DeletePrefix purges every key in the bucket that starts with prefix.
//
// Purge (rather than Delete) drops the key history as well, so a reader that
// watches a purged key does not observe a stale value from a previous session.
//
// Parameters:
//   - ctx: Context for cancellation
//   - kv: KV bucket
//   - prefix: Key prefix, e.g. "rendezvous."
//
// Returns:
//   - int: Number of keys purged
//   - error: List or purge failure
func DeletePrefix(ctx context.Context, kv jetstream.KeyValue, prefix string) (int, error) {
	lister, err := kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return 0, nil
		}

		return 0, fmt.Errorf("list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var matched []string
	for key := range lister.Keys() {
		if strings.HasPrefix(key, prefix) {
			matched = append(matched, key)
		}
	}

	for _, key := range matched {
		if err := kv.Purge(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return 0, fmt.Errorf("purge %s: %w", key, err)
		}
	}

	return len(matched), nil
}
