package types

import "context"

// Group is a collective process group.
//
// The group runtime is process-wide and owned by the hosting application. The
// coupler and partitions borrow it and never manage its lifecycle.
type Group interface {
	// Rank returns this process's rank, 0 <= Rank() < Size().
	Rank() int

	// Size returns the number of ranks in the group.
	Size() int

	// BroadcastBytes sends payload from root to every rank.
	//
	// All ranks must call BroadcastBytes in the same order with the same root.
	// The payload argument is ignored on non-root ranks. The call blocks until
	// the root's payload is available locally.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - root: Rank whose payload is distributed
	//   - payload: Data to send (root only)
	//
	// Returns:
	//   - []byte: Root's payload (a private copy on every rank)
	//   - error: ErrTransport on failure
	BroadcastBytes(ctx context.Context, root int, payload []byte) ([]byte, error)
}
