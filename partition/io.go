package partition

import (
	"context"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/cwsmith/redev/comm"
	"github.com/cwsmith/redev/internal/codec"
	"github.com/cwsmith/redev/stage"
	"github.com/cwsmith/redev/types"
)

// putVar defines name with len(data) elements and puts data.
func putVar[T codec.Element](eng types.Engine, name string, data []T) error {
	if err := eng.DefineVariable(name, codec.KindOf[T](), len(data)); err != nil {
		return fmt.Errorf("define %s: %w", name, err)
	}
	if err := stage.Put(eng, name, data); err != nil {
		return fmt.Errorf("put %s: %w", name, err)
	}

	return nil
}

// getVar schedules a read of name into *dst. The variable must be present in
// the current step as exactly one block.
func getVar[T codec.Element](eng types.Engine, name string, dst *[]T) error {
	v, ok := eng.InquireVariable(name)
	if !ok {
		return fmt.Errorf("%w: variable %s not found", types.ErrTransport, name)
	}
	if want := codec.KindOf[T](); v.Kind != want {
		return fmt.Errorf("%w: variable %s is %s, expected %s", types.ErrTransport, name, v.Kind, want)
	}

	infos, err := eng.BlocksInfo(name)
	if err != nil {
		return err
	}
	if len(infos) != 1 {
		return fmt.Errorf("%w: variable %s has %d blocks, expected 1", types.ErrTransport, name, len(infos))
	}
	if err := eng.SetBlockSelection(name, infos[0].BlockID); err != nil {
		return err
	}

	*dst = make([]T, infos[0].Count)

	return stage.Get(eng, name, dst)
}

// broadcastPair replicates two buffers from root, resizing them on the other
// ranks from a length header first.
func broadcastPair[A, B codec.Element](ctx context.Context, g types.Group, root int, a *[]A, b *[]B) error {
	lengths := []int64{int64(len(*a)), int64(len(*b))}
	if err := comm.Broadcast(ctx, g, root, lengths); err != nil {
		return fmt.Errorf("broadcast lengths: %w", err)
	}

	if g.Rank() != root {
		if lengths[0] < 0 || lengths[1] < 0 {
			return fmt.Errorf("%w: negative broadcast lengths %v", types.ErrTransport, lengths)
		}
		*a = make([]A, lengths[0])
		*b = make([]B, lengths[1])
	}

	if err := comm.Broadcast(ctx, g, root, *a); err != nil {
		return err
	}

	return comm.Broadcast(ctx, g, root, *b)
}

// digest fingerprints an ordered list of encoded fields.
func digest(fields ...[]byte) uint64 {
	h := xxh3.New()
	for _, f := range fields {
		_, _ = h.Write(f)
	}

	return h.Sum64()
}
