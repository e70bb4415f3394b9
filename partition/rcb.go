package partition

import (
	"context"
	"fmt"
	"math/bits"
	"slices"

	"github.com/cwsmith/redev/internal/codec"
	"github.com/cwsmith/redev/types"
)

// RCB is a recursive coordinate bisection partition.
type RCB struct {
	dim   int
	ranks []int32
	cuts  []float64
}

// Compile-time assertions that RCB implements the partition interfaces.
var (
	_ types.Router[[]float64] = (*RCB)(nil)
	_ types.Digester          = (*RCB)(nil)
)

// NewRCB creates a spatial partition.
//
// Pass nil ranks and cuts on the participant side; Read or Broadcast fills
// them in.
//
// Parameters:
//   - dim: Dimensionality, 1 to 3
//   - ranks: Leaf ranks, a power-of-two count N
//   - cuts: N-1 cut values in 1-based complete-tree order
//
// Returns:
//   - *RCB: The partition (owns copies of ranks and cuts)
//   - error: ErrConfiguration for a bad dimension, ErrMalformedPartition for inconsistent arrays
func NewRCB(dim int, ranks []int32, cuts []float64) (*RCB, error) {
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("%w: dimension %d outside [1,3]", types.ErrConfiguration, dim)
	}

	p := &RCB{dim: dim, ranks: slices.Clone(ranks), cuts: slices.Clone(cuts)}
	if len(ranks) == 0 && len(cuts) == 0 {
		return p, nil
	}
	if err := checkTree(p.ranks, p.cuts); err != nil {
		return nil, err
	}

	return p, nil
}

// checkTree verifies N is a power of two and there are N-1 cuts.
func checkTree(ranks []int32, cuts []float64) error {
	n := len(ranks)
	if n == 0 || n&(n-1) != 0 {
		return fmt.Errorf("%w: %d leaf ranks is not a power of two", types.ErrMalformedPartition, n)
	}
	if len(cuts) != n-1 {
		return fmt.Errorf("%w: %d cuts for %d leaves, expected %d", types.ErrMalformedPartition, len(cuts), n, n-1)
	}

	return nil
}

// Dim returns the dimensionality.
func (p *RCB) Dim() int {
	return p.dim
}

// OwnedRanks returns a copy of the leaf ranks.
func (p *RCB) OwnedRanks() []int32 {
	return slices.Clone(p.ranks)
}

// Cuts returns a copy of the cut values.
func (p *RCB) Cuts() []float64 {
	return slices.Clone(p.cuts)
}

// RankForKey descends the tree and returns the rank owning point.
//
// At depth d the coordinate point[d mod dim] is compared with the node's cut:
// strictly less goes left, otherwise right.
//
// Parameters:
//   - point: Coordinates, at least Dim() of them
//
// Returns:
//   - int32: Owning rank
//   - error: ErrConfiguration for an empty partition or short point, ErrMalformedPartition for a bad tree
func (p *RCB) RankForKey(point []float64) (int32, error) {
	if len(p.ranks) == 0 || len(p.cuts) == 0 {
		return 0, fmt.Errorf("%w: spatial partition is empty", types.ErrConfiguration)
	}
	if len(point) < p.dim {
		return 0, fmt.Errorf("%w: %d coordinates for a %d-d partition", types.ErrConfiguration, len(point), p.dim)
	}
	if err := checkTree(p.ranks, p.cuts); err != nil {
		return 0, err
	}

	depth := bits.TrailingZeros(uint(len(p.ranks)))
	idx, d := 1, 0
	for range depth {
		if point[d] < p.cuts[idx-1] {
			idx = 2 * idx
		} else {
			idx = 2*idx + 1
		}
		d = (d + 1) % p.dim
	}

	return p.ranks[idx-(1<<depth)], nil
}

// Write puts the ranks and cuts variables into the current step.
func (p *RCB) Write(_ context.Context, eng types.Engine) error {
	if len(p.ranks) == 0 {
		return fmt.Errorf("%w: spatial partition has no ranks to write", types.ErrConfiguration)
	}
	if err := putVar(eng, VarRanks, p.ranks); err != nil {
		return err
	}

	return putVar(eng, VarCuts, p.cuts)
}

// Read fetches ranks then cuts from the current step.
func (p *RCB) Read(ctx context.Context, eng types.Engine) error {
	var ranks []int32
	var cuts []float64
	if err := getVar(eng, VarRanks, &ranks); err != nil {
		return err
	}
	if err := getVar(eng, VarCuts, &cuts); err != nil {
		return err
	}
	if err := eng.PerformGets(ctx); err != nil {
		return err
	}
	if err := checkTree(ranks, cuts); err != nil {
		return err
	}

	p.ranks, p.cuts = ranks, cuts

	return nil
}

// Broadcast replicates the root's ranks and cuts to every rank.
func (p *RCB) Broadcast(ctx context.Context, group types.Group, root int) error {
	ranks, cuts := p.ranks, p.cuts
	if err := broadcastPair(ctx, group, root, &ranks, &cuts); err != nil {
		return fmt.Errorf("broadcast spatial partition: %w", err)
	}
	if len(ranks) > 0 || len(cuts) > 0 {
		if err := checkTree(ranks, cuts); err != nil {
			return err
		}
	}

	p.ranks, p.cuts = ranks, cuts

	return nil
}

// Digest fingerprints the dimension, ranks and cuts.
func (p *RCB) Digest() uint64 {
	return digest(
		codec.AppendSlice(nil, []int64{int64(p.dim)}),
		codec.AppendSlice(nil, p.ranks),
		codec.AppendSlice(nil, p.cuts),
	)
}
