package comm

import (
	"context"
	"fmt"

	"github.com/cwsmith/redev/internal/codec"
	"github.com/cwsmith/redev/types"
)

// Broadcast sends the root's buf to every rank of the group, in place.
//
// The buffer is fixed-size: every rank must pass a slice of the same length.
// On non-root ranks the received elements overwrite buf; a length disagreement
// is reported as ErrTransport rather than silently truncated.
//
// Parameters:
//   - ctx: Context for cancellation
//   - g: Process group
//   - root: Rank holding the data
//   - buf: Buffer to send (root) or fill (others)
//
// Returns:
//   - error: ErrTransport on collective or decode failure
//
// Example:
//
//	header := []int64{int64(len(ranks))}
//	if err := comm.Broadcast(ctx, group, 0, header); err != nil {
//	    return err
//	}
func Broadcast[T codec.Element](ctx context.Context, g types.Group, root int, buf []T) error {
	var payload []byte
	if g.Rank() == root {
		payload = codec.AppendSlice(nil, buf)
	}

	got, err := g.BroadcastBytes(ctx, root, payload)
	if err != nil {
		return fmt.Errorf("broadcast %d %s elements: %w", len(buf), codec.KindOf[T](), err)
	}
	if g.Rank() == root {
		return nil
	}

	data, _, err := codec.ReadSlice[T](got)
	if err != nil {
		return fmt.Errorf("%w: decode broadcast: %w", types.ErrTransport, err)
	}
	if len(data) != len(buf) {
		return fmt.Errorf("%w: broadcast carried %d elements, buffer holds %d",
			types.ErrTransport, len(data), len(buf))
	}
	copy(buf, data)

	return nil
}

// BroadcastString sends the root's string to every rank.
//
// Parameters:
//   - ctx: Context for cancellation
//   - g: Process group
//   - root: Rank holding the string
//   - s: String to send (ignored on non-root ranks)
//
// Returns:
//   - string: Root's string
//   - error: ErrTransport on failure
func BroadcastString(ctx context.Context, g types.Group, root int, s string) (string, error) {
	var payload []byte
	if g.Rank() == root {
		payload = codec.AppendString(nil, s)
	}

	got, err := g.BroadcastBytes(ctx, root, payload)
	if err != nil {
		return "", fmt.Errorf("broadcast string: %w", err)
	}
	if g.Rank() == root {
		return s, nil
	}

	out, _, err := codec.ReadString(got)
	if err != nil {
		return "", fmt.Errorf("%w: decode broadcast: %w", types.ErrTransport, err)
	}

	return out, nil
}

func checkRoot(root, size int) error {
	if root < 0 || root >= size {
		return fmt.Errorf("%w: broadcast root %d outside group of size %d", types.ErrConfiguration, root, size)
	}

	return nil
}
