package kvutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	redevtest "github.com/cwsmith/redev/testing"
)

// TestEnsureBucket_Concurrent verifies that every rank of both applications can
// create-or-open the same bucket at once.
func TestEnsureBucket_Concurrent(t *testing.T) {
	_, nc := redevtest.StartEmbeddedNATS(t)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	const ranks = 8
	var wg sync.WaitGroup
	errs := make([]error, ranks)
	kvs := make([]jetstream.KeyValue, ranks)

	for i := range ranks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kvs[i], errs[i] = EnsureBucket(ctx, js, jetstream.KeyValueConfig{
				Bucket:  "test-concurrent-dataset",
				History: 1,
				TTL:     5 * time.Second,
			}, 5)
		}()
	}
	wg.Wait()

	for i := range ranks {
		require.NoError(t, errs[i], "rank %d", i)
		require.NotNil(t, kvs[i], "rank %d", i)
		require.Equal(t, "test-concurrent-dataset", kvs[i].Bucket())
	}
}

func TestEnsureBucket(t *testing.T) {
	_, nc := redevtest.StartEmbeddedNATS(t)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	t.Run("creates on first call and reopens on second", func(t *testing.T) {
		cfg := jetstream.KeyValueConfig{Bucket: "test-reopen", History: 1}

		kv1, err := EnsureBucket(t.Context(), js, cfg, 3)
		require.NoError(t, err)

		_, err = kv1.Put(t.Context(), "k", []byte("v"))
		require.NoError(t, err)

		kv2, err := EnsureBucket(t.Context(), js, cfg, 3)
		require.NoError(t, err)

		entry, err := kv2.Get(t.Context(), "k")
		require.NoError(t, err)
		require.Equal(t, []byte("v"), entry.Value())
	})

	t.Run("zero retries defaults to three", func(t *testing.T) {
		kv, err := EnsureBucket(t.Context(), js, jetstream.KeyValueConfig{Bucket: "test-default-retries"}, 0)
		require.NoError(t, err)
		require.NotNil(t, kv)
	})

	t.Run("cancelled context fails", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := EnsureBucket(ctx, js, jetstream.KeyValueConfig{Bucket: "test-cancelled"}, 3)
		require.Error(t, err)
	})
}

func TestDeletePrefix(t *testing.T) {
	_, nc := redevtest.StartEmbeddedNATS(t)
	kv := redevtest.CreateJetStreamKV(t, nc, "test-delete-prefix")
	ctx := t.Context()

	for _, key := range []string{"rendezvous.header", "rendezvous.1.0.commit.0", "other.header"} {
		_, err := kv.Put(ctx, key, []byte("x"))
		require.NoError(t, err)
	}

	n, err := DeletePrefix(ctx, kv, "rendezvous.")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = kv.Get(ctx, "rendezvous.header")
	require.ErrorIs(t, err, jetstream.ErrKeyNotFound)

	entry, err := kv.Get(ctx, "other.header")
	require.NoError(t, err)
	require.Equal(t, []byte("x"), entry.Value())

	t.Run("empty bucket", func(t *testing.T) {
		empty := redevtest.CreateJetStreamKV(t, nc, "test-delete-prefix-empty")
		n, err := DeletePrefix(ctx, empty, "rendezvous.")
		require.NoError(t, err)
		require.Zero(t, n)
	})
}
