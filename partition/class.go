package partition

import (
	"context"
	"fmt"
	"slices"

	"github.com/cwsmith/redev/internal/codec"
	"github.com/cwsmith/redev/types"
)

// Class maps classification ids to owning ranks.
type Class struct {
	ranks []int32
	ids   []int32
	index map[int32]int32
}

// Compile-time assertions that Class implements the partition interfaces.
var (
	_ types.Router[int32] = (*Class)(nil)
	_ types.Digester      = (*Class)(nil)
)

// NewClass creates a classification partition from parallel sequences.
//
// Pass nil slices on the participant side.
//
// Returns:
//   - *Class: The partition (owns copies of its inputs)
//   - error: ErrConfiguration for unequal lengths or duplicate ids
func NewClass(ranks, classIDs []int32) (*Class, error) {
	p := &Class{}
	if err := p.set(slices.Clone(ranks), slices.Clone(classIDs)); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrConfiguration, err)
	}

	return p, nil
}

// set installs the sequences and rebuilds the lookup index.
func (p *Class) set(ranks, ids []int32) error {
	if len(ranks) != len(ids) {
		return fmt.Errorf("%d ranks and %d classification ids", len(ranks), len(ids))
	}

	index := make(map[int32]int32, len(ids))
	for i, id := range ids {
		if _, dup := index[id]; dup {
			return fmt.Errorf("duplicate classification id %d", id)
		}
		index[id] = ranks[i]
	}

	p.ranks, p.ids, p.index = ranks, ids, index

	return nil
}

// OwnedRanks returns a copy of the owner ranks.
func (p *Class) OwnedRanks() []int32 {
	return slices.Clone(p.ranks)
}

// ClassIDs returns a copy of the classification ids.
func (p *Class) ClassIDs() []int32 {
	return slices.Clone(p.ids)
}

// RankForKey returns the rank owning classID.
//
// Returns:
//   - int32: Owning rank
//   - error: ErrConfiguration for an empty partition, ErrUnknownKey if classID is absent
func (p *Class) RankForKey(classID int32) (int32, error) {
	if len(p.ids) == 0 {
		return 0, fmt.Errorf("%w: classification partition is empty", types.ErrConfiguration)
	}
	rank, ok := p.index[classID]
	if !ok {
		return 0, fmt.Errorf("%w: classification id %d", types.ErrUnknownKey, classID)
	}

	return rank, nil
}

// Write puts the ranks and class-ids variables into the current step.
func (p *Class) Write(_ context.Context, eng types.Engine) error {
	if len(p.ranks) == 0 {
		return fmt.Errorf("%w: classification partition has no ranks to write", types.ErrConfiguration)
	}
	if err := putVar(eng, VarRanks, p.ranks); err != nil {
		return err
	}

	return putVar(eng, VarClassIDs, p.ids)
}

// Read fetches ranks then class ids from the current step.
func (p *Class) Read(ctx context.Context, eng types.Engine) error {
	var ranks, ids []int32
	if err := getVar(eng, VarRanks, &ranks); err != nil {
		return err
	}
	if err := getVar(eng, VarClassIDs, &ids); err != nil {
		return err
	}
	if err := eng.PerformGets(ctx); err != nil {
		return err
	}
	if err := p.set(ranks, ids); err != nil {
		return fmt.Errorf("%w: %w", types.ErrMalformedPartition, err)
	}

	return nil
}

// Broadcast replicates the root's ranks and class ids to every rank.
func (p *Class) Broadcast(ctx context.Context, group types.Group, root int) error {
	ranks, ids := p.ranks, p.ids
	if err := broadcastPair(ctx, group, root, &ranks, &ids); err != nil {
		return fmt.Errorf("broadcast classification partition: %w", err)
	}
	if err := p.set(ranks, ids); err != nil {
		return fmt.Errorf("%w: %w", types.ErrMalformedPartition, err)
	}

	return nil
}

// Digest fingerprints the ranks and class ids in stored order.
func (p *Class) Digest() uint64 {
	return digest(
		codec.AppendSlice(nil, p.ranks),
		codec.AppendSlice(nil, p.ids),
	)
}
