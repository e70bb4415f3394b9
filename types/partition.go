package types

import "context"

// Partition is the capability set the coupler needs from a partition variant.
//
// A partition is populated by the owning application on the rendezvous side
// and is empty on the participant side until Read (rank 0) or Broadcast (all
// other ranks) fills it in. After setup it is read-only.
type Partition interface {
	// OwnedRanks returns the rank sequence of the partition in stored order.
	OwnedRanks() []int32

	// Write defines and puts the partition variables into the current step.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - eng: Engine opened in ModeWrite with a step in progress
	//
	// Returns:
	//   - error: ErrConfiguration/ErrMalformedPartition for invalid state, ErrTransport on I/O failure
	Write(ctx context.Context, eng Engine) error

	// Read fetches the partition variables from the current step.
	//
	// Each variable must arrive as exactly one block. Deferred gets are
	// performed before Read returns.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - eng: Engine opened in ModeRead with a step in progress
	//
	// Returns:
	//   - error: ErrTransport for missing variables or block count != 1, ErrMalformedPartition for bad shapes
	Read(ctx context.Context, eng Engine) error

	// Broadcast replicates the root rank's partition to every rank of the group.
	//
	// Must be called collectively by all ranks in the same order.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - group: Local process group
	//   - root: Rank holding the authoritative copy
	//
	// Returns:
	//   - error: ErrTransport on collective failure
	Broadcast(ctx context.Context, group Group, root int) error
}

// Router is a partition that answers key → rank lookups.
//
// The key type depends on the variant: a point for spatial partitions, a
// classification id for classification partitions.
type Router[K any] interface {
	Partition

	// RankForKey returns the rank owning key.
	RankForKey(key K) (int32, error)
}

// Digester is implemented by partitions that can fingerprint their contents.
//
// The coupler logs the digest after the broadcast so operators can confirm
// every rank converged on identical state.
type Digester interface {
	Digest() uint64
}
