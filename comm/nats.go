package comm

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/tinylib/msgp/msgp"

	"github.com/cwsmith/redev/internal/kvutil"
	"github.com/cwsmith/redev/internal/natsutil"
	"github.com/cwsmith/redev/types"
)

// NATS is a process group whose ranks are separate OS processes sharing a
// JetStream KV bucket.
//
// Each broadcast is a single KV put by the root under
//
//	{name}.bcast.{seq}
//
// and a watch on that key by every other rank. A watch delivers the current
// value first, so a rank arriving after the root still observes the put; the
// key is therefore both the payload and the barrier.
//
// Rank and size are static: the hosting application assigns them (from its
// launcher or environment) before constructing the group.
type NATS struct {
	kv   jetstream.KeyValue
	name string
	rank int
	size int
	seq  uint64
}

// Compile-time assertion that NATS implements Group.
var _ types.Group = (*NATS)(nil)

// NewNATS creates a NATS-backed group member.
//
// Parameters:
//   - kv: Bucket shared by all ranks of the group
//   - name: Group name, unique per application and session (e.g. "rendezvous-app")
//   - rank: This process's rank
//   - size: Number of ranks
//
// Returns:
//   - *NATS: Group member
//   - error: ErrConfiguration for an invalid rank, size or name
func NewNATS(kv jetstream.KeyValue, name string, rank, size int) (*NATS, error) {
	if kv == nil {
		return nil, fmt.Errorf("%w: KV bucket is required", types.ErrConfiguration)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", types.ErrConfiguration)
	}
	if size < 1 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d outside group of size %d", types.ErrConfiguration, rank, size)
	}

	return &NATS{kv: kv, name: name, rank: rank, size: size}, nil
}

// OpenNATS creates or opens the group bucket and returns a group member.
//
// Parameters:
//   - ctx: Context for bucket creation
//   - js: JetStream context
//   - bucket: Group bucket name
//   - ttl: Bucket TTL, bounds how long stale broadcasts linger (0 = none)
//   - name, rank, size: See NewNATS
//
// Returns:
//   - *NATS: Group member
//   - error: Bucket or configuration error
func OpenNATS(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration, name string, rank, size int) (*NATS, error) {
	kv, err := kvutil.EnsureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
		TTL:     ttl,
	}, 5)
	if err != nil {
		return nil, natsutil.Wrap("open group bucket", err)
	}

	return NewNATS(kv, name, rank, size)
}

// Rank returns this process's rank.
func (n *NATS) Rank() int {
	return n.rank
}

// Size returns the number of ranks.
func (n *NATS) Size() int {
	return n.size
}

// Reset purges every broadcast key of the group.
//
// Call it on one rank before the group is used if the group name is reused
// across runs and the bucket has no TTL.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: ErrTransport on purge failure
func (n *NATS) Reset(ctx context.Context) error {
	if _, err := kvutil.DeletePrefix(ctx, n.kv, n.name+".bcast."); err != nil {
		return natsutil.Wrap("reset group "+n.name, err)
	}

	return nil
}

// BroadcastBytes distributes the root's payload through the KV bucket.
func (n *NATS) BroadcastBytes(ctx context.Context, root int, payload []byte) ([]byte, error) {
	if err := checkRoot(root, n.size); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s.bcast.%d", n.name, n.seq)
	n.seq++

	if n.rank == root {
		value := msgp.AppendInt(nil, root)
		value = msgp.AppendBytes(value, payload)
		if _, err := n.kv.Put(ctx, key, value); err != nil {
			return nil, natsutil.Wrap("put "+key, err)
		}

		return append([]byte(nil), payload...), nil
	}

	value, err := n.await(ctx, key)
	if err != nil {
		return nil, err
	}

	sender, rest, err := msgp.ReadIntBytes(value)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", types.ErrTransport, key, err)
	}
	if sender != root {
		return nil, fmt.Errorf("%w: %s root mismatch: expected %d, got %d", types.ErrTransport, key, root, sender)
	}
	data, _, err := msgp.ReadBytesBytes(rest, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", types.ErrTransport, key, err)
	}

	return data, nil
}

// await blocks until key holds a value.
func (n *NATS) await(ctx context.Context, key string) ([]byte, error) {
	watcher, err := n.kv.Watch(ctx, key)
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
