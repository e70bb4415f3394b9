package stage

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/tinylib/msgp/msgp"
	"github.com/zeebo/xxh3"

	"github.com/cwsmith/redev/internal/codec"
	"github.com/cwsmith/redev/types"
)

// block is the stored form of one variable block.
type block struct {
	Kind  types.Kind
	Count int
	Rank  int
	Sum   uint64 // xxh3 of the uncompressed payload
	LZ4   bool
	Data  []byte
}

// newBlock seals payload into a block, compressing it when that pays off.
func newBlock(kind types.Kind, count, rank int, payload []byte, compress bool) (*block, error) {
	b := &block{Kind: kind, Count: count, Rank: rank, Sum: xxh3.Hash(payload), Data: payload}
	if !compress || len(payload) == 0 {
		return b, nil
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if buf.Len() < len(payload) {
		b.Data, b.LZ4 = buf.Bytes(), true
	}

	return b, nil
}

// lz4MaxRatio bounds how far a compressed payload of unknown size may expand.
const lz4MaxRatio = 255

// maxPayload is the largest payload a block of this kind and count may hold.
func (b *block) maxPayload() int {
	if n, ok := codec.MaxEncodedSize(b.Kind, b.Count); ok {
		return n
	}

	return max(len(b.Data), len(b.Data)*lz4MaxRatio)
}

// payload returns the verified uncompressed payload.
func (b *block) payload() ([]byte, error) {
	if b.Count < 0 {
		return nil, fmt.Errorf("%w: block has negative count %d", types.ErrTransport, b.Count)
	}

	limit := b.maxPayload()
	data := b.Data
	if b.LZ4 {
		var err error
		r := io.LimitReader(lz4.NewReader(bytes.NewReader(b.Data)), int64(limit)+1)
		if data, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("%w: lz4 decompress: %w", types.ErrTransport, err)
		}
	}
	if len(data) > limit {
		return nil, fmt.Errorf("%w: block payload exceeds %d bytes for %d %s elements",
			types.ErrTransport, limit, b.Count, b.Kind)
	}
	if sum := xxh3.Hash(data); sum != b.Sum {
		return nil, fmt.Errorf("%w: block checksum mismatch: %x vs %x", types.ErrTransport, sum, b.Sum)
	}

	return data, nil
}

// MarshalMsg appends the block as a msgp map.
func (b *block) MarshalMsg(o []byte) []byte {
	o = msgp.AppendMapHeader(o, 6)
	o = msgp.AppendString(o, "kind")
	o = msgp.AppendUint8(o, uint8(b.Kind))
	o = msgp.AppendString(o, "count")
	o = msgp.AppendInt(o, b.Count)
	o = msgp.AppendString(o, "rank")
	o = msgp.AppendInt(o, b.Rank)
	o = msgp.AppendString(o, "sum")
	o = msgp.AppendUint64(o, b.Sum)
	o = msgp.AppendString(o, "lz4")
	o = msgp.AppendBool(o, b.LZ4)
	o = msgp.AppendString(o, "data")
	o = msgp.AppendBytes(o, b.Data)

	return o
}

// UnmarshalMsg decodes a block; unknown fields are skipped.
func (b *block) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}

	for range sz {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, err
		}

		switch msgp.UnsafeString(field) {
		case "kind":
			var k uint8
			k, bts, err = msgp.ReadUint8Bytes(bts)
			b.Kind = types.Kind(k)
		case "count":
			b.Count, bts, err = msgp.ReadIntBytes(bts)
		case "rank":
			b.Rank, bts, err = msgp.ReadIntBytes(bts)
		case "sum":
			b.Sum, bts, err = msgp.ReadUint64Bytes(bts)
		case "lz4":
			b.LZ4, bts, err = msgp.ReadBoolBytes(bts)
		case "data":
			b.Data, bts, err = msgp.ReadBytesBytes(bts, nil)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err, string(field))
		}
	}

	return bts, nil
}

// header is stored once per dataset session by writer rank 0.
type header struct {
	Writers    int
	Generation uint64
}

func (h *header) MarshalMsg(o []byte) []byte {
	o = msgp.AppendMapHeader(o, 2)
	o = msgp.AppendString(o, "writers")
	o = msgp.AppendInt(o, h.Writers)
	o = msgp.AppendString(o, "generation")
	o = msgp.AppendUint64(o, h.Generation)

	return o
}

func (h *header) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}

	for range sz {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, err
		}

		switch msgp.UnsafeString(field) {
		case "writers":
			h.Writers, bts, err = msgp.ReadIntBytes(bts)
		case "generation":
			h.Generation, bts, err = msgp.ReadUint64Bytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err, string(field))
		}
	}

	return bts, nil
}

// manifest lists the variables one writer rank put in one step.
type manifest struct {
	Rank int
	Step int64
	Vars []types.Variable
}

func (m *manifest) MarshalMsg(o []byte) []byte {
	o = msgp.AppendMapHeader(o, 3)
	o = msgp.AppendString(o, "rank")
	o = msgp.AppendInt(o, m.Rank)
	o = msgp.AppendString(o, "step")
	o = msgp.AppendInt64(o, m.Step)
	o = msgp.AppendString(o, "vars")
	o = msgp.AppendArrayHeader(o, uint32(len(m.Vars))) //nolint:gosec // a step defines a handful of variables
	for _, v := range m.Vars {
		o = msgp.AppendArrayHeader(o, 3)
		o = msgp.AppendString(o, v.Name)
		o = msgp.AppendUint8(o, uint8(v.Kind))
		o = msgp.AppendInt(o, v.Count)
	}

	return o
}

func (m *manifest) UnmarshalMsg(bts []byte) ([]byte, error) {
	sz, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}

	for range sz {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, err
		}

		switch msgp.UnsafeString(field) {
		case "rank":
			m.Rank, bts, err = msgp.ReadIntBytes(bts)
		case "step":
			m.Step, bts, err = msgp.ReadInt64Bytes(bts)
		case "vars":
			bts, err = m.readVars(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err, string(field))
		}
	}

	return bts, nil
}

func (m *manifest) readVars(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return bts, err
	}

	m.Vars = make([]types.Variable, n)
	for i := range m.Vars {
		var fields uint32
		if fields, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
			return bts, err
		}
		if fields != 3 {
			return bts, msgp.ArrayError{Wanted: 3, Got: fields}
		}

		var kind uint8
		if m.Vars[i].Name, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return bts, err
		}
		if kind, bts, err = msgp.ReadUint8Bytes(bts); err != nil {
			return bts, err
		}
		m.Vars[i].Kind = types.Kind(kind)
		if m.Vars[i].Count, bts, err = msgp.ReadIntBytes(bts); err != nil {
			return bts, err
		}
	}

	return bts, nil
}
