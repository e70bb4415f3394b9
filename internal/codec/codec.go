// Package codec encodes typed element buffers with MessagePack.
//
// The collective broadcast and the staged transport both move fixed-size
// buffers of primitive numeric types. Encoding them as a msgp array keeps the
// element kind checkable on decode and the format language-neutral.
package codec

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/cwsmith/redev/types"
)

// Element is the set of primitive element types a buffer may carry.
//
// int32 is a local ordinal (rank, classification id), int64 and uint64 are
// global ordinals, float64 is a real coordinate, complex128 a complex value.
type Element interface {
	int32 | int64 | uint64 | float64 | complex128
}

// KindOf returns the transport kind of T.
func KindOf[T Element]() types.Kind {
	var zero T
	switch any(zero).(type) {
	case int32:
		return types.KindInt32
	case int64:
		return types.KindInt64
	case uint64:
		return types.KindUint64
	case float64:
		return types.KindFloat64
	case complex128:
		return types.KindComplex128
	default:
		return types.KindInvalid
	}
}

// MaxEncodedSize bounds the encoded size of count elements of kind.
//
// Strings have no bound implied by their count, so ok is false for
// KindString and for invalid kinds.
func MaxEncodedSize(kind types.Kind, count int) (size int, ok bool) {
	var elem int
	switch kind {
	case types.KindInt32:
		elem = 5
	case types.KindInt64, types.KindUint64, types.KindFloat64:
		elem = 9
	case types.KindComplex128:
		elem = 18
	default:
		return 0, false
	}
	if count < 0 {
		return 0, false
	}

	return 5 + count*elem, true
}

// AppendSlice appends data as a msgp array to b.
func AppendSlice[T Element](b []byte, data []T) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(data))) //nolint:gosec // buffers are far below 4G elements
	for _, v := range data {
		switch x := any(v).(type) {
		case int32:
			b = msgp.AppendInt32(b, x)
		case int64:
			b = msgp.AppendInt64(b, x)
		case uint64:
			b = msgp.AppendUint64(b, x)
		case float64:
			b = msgp.AppendFloat64(b, x)
		case complex128:
			b = msgp.AppendComplex128(b, x)
		}
	}

	return b
}

// ReadSlice decodes a msgp array produced by AppendSlice.
//
// Returns:
//   - []T: Decoded elements (never nil)
//   - []byte: Remaining bytes after the array
//   - error: Decode error if b is not an array of T
func ReadSlice[T Element](b []byte) ([]T, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, fmt.Errorf("read array header: %w", err)
	}

	out := make([]T, n)
	for i := range out {
		var v any
		switch any(out[i]).(type) {
		case int32:
			v, b, err = msgp.ReadInt32Bytes(b)
		case int64:
			v, b, err = msgp.ReadInt64Bytes(b)
		case uint64:
			v, b, err = msgp.ReadUint64Bytes(b)
		case float64:
			v, b, err = msgp.ReadFloat64Bytes(b)
		case complex128:
			v, b, err = msgp.ReadComplex128Bytes(b)
		}
		if err != nil {
			return nil, b, fmt.Errorf("read element %d of %d: %w", i, n, err)
		}
		out[i] = v.(T) //nolint:forcetypeassert // the switch decodes exactly T
	}

	return out, b, nil
}

// AppendString appends s as a msgp string.
func AppendString(b []byte, s string) []byte {
	return msgp.AppendString(b, s)
}

// ReadString decodes a msgp string.
func ReadString(b []byte) (string, []byte, error) {
	s, rest, err := msgp.ReadStringBytes(b)
	if err != nil {
		return "", rest, fmt.Errorf("read string: %w", err)
	}

	return s, rest, nil
}
