package stage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwsmith/redev/internal/codec"
	"github.com/cwsmith/redev/types"
)

func TestBlock_Compression(t *testing.T) {
	payload := bytes.Repeat([]byte("rendezvous"), 200)

	t.Run("compressible payload shrinks", func(t *testing.T) {
		b, err := newBlock(types.KindString, 1, 0, payload, true)
		require.NoError(t, err)
		require.True(t, b.LZ4)
		require.Less(t, len(b.Data), len(payload))

		var got block
		rest, err := got.UnmarshalMsg(b.MarshalMsg(nil))
		require.NoError(t, err)
		require.Empty(t, rest)

		out, err := got.payload()
		require.NoError(t, err)
		require.Equal(t, payload, out)
	})

	t.Run("tiny payload stays raw", func(t *testing.T) {
		b, err := newBlock(types.KindInt32, 1, 3, []byte{1, 2}, true)
		require.NoError(t, err)
		require.False(t, b.LZ4)
		require.Equal(t, 3, b.Rank)
	})

	t.Run("disabled", func(t *testing.T) {
		b, err := newBlock(types.KindString, 1, 0, payload, false)
		require.NoError(t, err)
		require.False(t, b.LZ4)
		require.Equal(t, payload, b.Data)
	})
}

func TestBlock_ChecksumMismatch(t *testing.T) {
	b, err := newBlock(types.KindFloat64, 2, 0, []byte{1, 2, 3, 4}, false)
	require.NoError(t, err)

	b.Data = []byte{1, 2, 3, 5}
	_, err = b.payload()
	require.ErrorIs(t, err, types.ErrTransport)
	require.Contains(t, err.Error(), "checksum")
}

func TestBlock_PayloadBound(t *testing.T) {
	t.Run("compressed payload larger than its count allows", func(t *testing.T) {
		// One int32 never encodes to more than 5 bytes.
		b, err := newBlock(types.KindInt32, 1, 0, make([]byte, 1<<16), true)
		require.NoError(t, err)
		require.True(t, b.LZ4)

		_, err = b.payload()
		require.ErrorIs(t, err, types.ErrTransport)
		require.Contains(t, err.Error(), "exceeds")
	})

	t.Run("raw payload larger than its count allows", func(t *testing.T) {
		b, err := newBlock(types.KindFloat64, 1, 0, make([]byte, 64), false)
		require.NoError(t, err)

		_, err = b.payload()
		require.ErrorIs(t, err, types.ErrTransport)
	})

	t.Run("negative count", func(t *testing.T) {
		b := block{Kind: types.KindInt64, Count: -1}
		_, err := b.payload()
		require.ErrorIs(t, err, types.ErrTransport)
	})

	t.Run("encoded elements fit", func(t *testing.T) {
		payload := codec.AppendSlice(nil, []complex128{1 + 2i, -3, 4i})
		b, err := newBlock(types.KindComplex128, 3, 0, payload, true)
		require.NoError(t, err)

		out, err := b.payload()
		require.NoError(t, err)
		require.Equal(t, payload, out)
	})
}

func TestBlock_Fields(t *testing.T) {
	in := block{Kind: types.KindComplex128, Count: 7, Rank: 2, Sum: 42, Data: []byte("x")}

	var out block
	_, err := out.UnmarshalMsg(in.MarshalMsg(nil))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = out.UnmarshalMsg([]byte{0xc1})
	require.Error(t, err)
}

func TestManifest(t *testing.T) {
	in := manifest{
		Rank: 1,
		Step: 4,
		Vars: []types.Variable{
			{Name: "cuts", Kind: types.KindFloat64, Count: 3},
			{Name: "ranks", Kind: types.KindInt32, Count: 4},
		},
	}

	var out manifest
	_, err := out.UnmarshalMsg(in.MarshalMsg(nil))
	require.NoError(t, err)
	require.Equal(t, in, out)

	var empty manifest
	_, err = empty.UnmarshalMsg((&manifest{Rank: 0}).MarshalMsg(nil))
	require.NoError(t, err)
	require.Empty(t, empty.Vars)
}

func TestHeader(t *testing.T) {
	in := header{Writers: 4, Generation: 1700000000000000000}

	var out header
	_, err := out.UnmarshalMsg(in.MarshalMsg(nil))
	require.NoError(t, err)
	require.Equal(t, in, out)
}
