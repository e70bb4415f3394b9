package comm

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/cwsmith/redev/types"
)

// Local is one member of an in-process group.
//
// Members of a local world share a hub and are typically driven by one
// goroutine each. This is the group used when both applications, or several
// ranks of one application, live in the same process (tests, single-binary
// deployments).
type Local struct {
	hub  *hub
	rank int
	seq  uint64 // collective sequence number, touched only by the owning goroutine
}

// Compile-time assertion that Local implements Group.
var _ types.Group = (*Local)(nil)

type hub struct {
	size  int
	slots *xsync.Map[uint64, *slot]
}

// slot carries one broadcast from its root to the other members.
type slot struct {
	ready   chan struct{}
	root    int
	data    []byte
	pending atomic.Int32
}

// NewLocalWorld creates an in-process group of size members.
//
// Parameters:
//   - size: Number of ranks (must be >= 1)
//
// Returns:
//   - []*Local: Members indexed by rank
//
// Example:
//
//	world := comm.NewLocalWorld(4)
//	g, ctx := errgroup.WithContext(ctx)
//	for _, member := range world {
//	    g.Go(func() error { return run(ctx, member) })
//	}
func NewLocalWorld(size int) []*Local {
	if size < 1 {
		size = 1
	}

	h := &hub{size: size, slots: xsync.NewMap[uint64, *slot]()}
	members := make([]*Local, size)
	for i := range members {
		members[i] = &Local{hub: h, rank: i}
	}

	return members
}

// Rank returns the member's rank.
func (l *Local) Rank() int {
	return l.rank
}

// Size returns the number of members.
func (l *Local) Size() int {
	return l.hub.size
}

// BroadcastBytes distributes the root's payload to every member.
//
// Broadcasts are matched by call order: the n-th call on every member forms
// the n-th collective. Each member receives a private copy.
func (l *Local) BroadcastBytes(ctx context.Context, root int, payload []byte) ([]byte, error) {
	if err := checkRoot(root, l.hub.size); err != nil {
		return nil, err
	}

	seq := l.seq
	l.seq++

	s := &slot{ready: make(chan struct{})}
	s.pending.Store(int32(l.hub.size)) //nolint:gosec // group sizes are small
	s, _ = l.hub.slots.LoadOrStore(seq, s)
	defer l.release(seq, s)

	if l.rank == root {
		s.root = root
		s.data = slices.Clone(payload)
		close(s.ready)

		return slices.Clone(payload), nil
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for broadcast %d from rank %d: %w", types.ErrTransport, seq, root, ctx.Err())
	}

	if s.root != root {
		return nil, fmt.Errorf("%w: broadcast %d root mismatch: rank %d expected root %d, got %d",
			types.ErrTransport, seq, l.rank, root, s.root)
	}

	return slices.Clone(s.data), nil
}

// release drops the slot once every member has passed through it.
func (l *Local) release(seq uint64, s *slot) {
	if s.pending.Add(-1) == 0 {
		l.hub.slots.Delete(seq)
	}
}
