// Package rankid records which process holds each rank of a named group.
//
// A process launched with a rank reserves {name}.rank.{rank} in the group
// bucket. A process launched without one tries n = 0, 1, ... size-1 and keeps
// the first key it creates. KV create is atomic, so each rank is held by
// exactly one process. Keys are never released; they expire with the bucket
// TTL. A group name reused within the TTL therefore fails at reservation,
// before any stale broadcast of the earlier run can be read.
package rankid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/cwsmith/redev/internal/logging"
	"github.com/cwsmith/redev/internal/natsutil"
	"github.com/cwsmith/redev/types"
)

var (
	// ErrNoAvailableRank is returned when every rank of the group is already claimed.
	ErrNoAvailableRank = errors.New("no available rank in group")

	// ErrRankTaken is returned when a reserved rank is already held.
	ErrRankTaken = errors.New("rank already taken")
)

// Claimer claims one rank of a named group.
type Claimer struct {
	kv     jetstream.KeyValue
	name   string
	size   int
	rank   int
	logger types.Logger
}

// NewClaimer creates a rank claimer.
//
// Parameters:
//   - kv: Group bucket shared by all processes of the application
//   - name: Group name, unique per run
//   - size: Number of ranks in the group
//   - logger: Logger for debug output (nil = no-op)
//
// Returns:
//   - *Claimer: Claimer with no rank claimed yet
//
// Example:
//
//	c := rankid.NewClaimer(kv, "job-17-participant", 4, logger)
//	rank, err := c.Claim(ctx)
func NewClaimer(kv jetstream.KeyValue, name string, size int, logger types.Logger) *Claimer {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Claimer{kv: kv, name: name, size: size, rank: -1, logger: logger}
}

// Claim claims the lowest free rank.
//
// Returns:
//   - int: Claimed rank
//   - error: ErrNoAvailableRank when the group is full, context or transport error otherwise
func (c *Claimer) Claim(ctx context.Context) (int, error) {
	if c.rank >= 0 {
		return c.rank, nil
	}

	for rank := range c.size {
		if err := ctx.Err(); err != nil {
			return -1, fmt.Errorf("%w: rank claim: %w", types.ErrTransport, err)
		}

		key := c.keyForRank(rank)
		rev, err := c.kv.Create(ctx, key, []byte(time.Now().Format(time.RFC3339)))
		if err == nil {
			c.rank = rank
			c.logger.Info("rank claimed", "group", c.name, "rank", rank, "revision", rev)

			return rank, nil
		}

		if !errors.Is(err, jetstream.ErrKeyExists) {
			return -1, natsutil.Wrap("claim rank "+key, err)
		}

		c.logger.Debug("rank already claimed", "group", c.name, "rank", rank)
	}

	return -1, fmt.Errorf("%w: %s has %d ranks (group name reused within the bucket TTL?)",
		ErrNoAvailableRank, c.name, c.size)
}

// Reserve takes the given rank.
//
// Parameters:
//   - ctx: Context for the KV create
//   - rank: Rank assigned by the launcher
//
// Returns:
//   - error: ErrRankTaken if another process, in this run or an earlier one
//     with the same group name, holds the rank
func (c *Claimer) Reserve(ctx context.Context, rank int) error {
	if rank < 0 || rank >= c.size {
		return fmt.Errorf("%w: rank %d outside group of size %d", types.ErrConfiguration, rank, c.size)
	}
	if c.rank == rank {
		return nil
	}
	if c.rank >= 0 {
		return fmt.Errorf("%w: already holding rank %d", types.ErrConfiguration, c.rank)
	}

	key := c.keyForRank(rank)
	rev, err := c.kv.Create(ctx, key, []byte(time.Now().Format(time.RFC3339)))
	if errors.Is(err, jetstream.ErrKeyExists) {
		return fmt.Errorf("%w: rank %d of %s (duplicate launch, or group name reused within the bucket TTL)",
			ErrRankTaken, rank, c.name)
	}
	if err != nil {
		return natsutil.Wrap("reserve rank "+key, err)
	}

	c.rank = rank
	c.logger.Info("rank reserved", "group", c.name, "rank", rank, "revision", rev)

	return nil
}

// Rank returns the claimed rank, or -1 before a successful Claim.
func (c *Claimer) Rank() int {
	return c.rank
}

func (c *Claimer) keyForRank(rank int) string {
	return fmt.Sprintf("%s.rank.%d", c.name, rank)
}
