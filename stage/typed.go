package stage

import (
	"fmt"

	"github.com/cwsmith/redev/internal/codec"
	"github.com/cwsmith/redev/types"
)

// Put writes the whole of data as this rank's block of variable name.
//
// The variable must have been defined with kind codec.KindOf[T]() and
// len(data) elements.
func Put[T codec.Element](eng types.Engine, name string, data []T) error {
	return eng.PutBlock(name, codec.KindOf[T](), len(data), codec.AppendSlice(nil, data))
}

// PutString writes s as this rank's block of the string variable name.
func PutString(eng types.Engine, name, s string) error {
	return eng.PutBlock(name, types.KindString, 1, codec.AppendString(nil, s))
}

// Get schedules a read of variable name into *dst.
//
// *dst is filled during PerformGets. A buffer of the right length is filled
// in place; otherwise it is replaced.
//
// Example:
//
//	v, ok := eng.InquireVariable("ranks")
//	ranks := make([]int32, v.Count)
//	_ = stage.Get(eng, "ranks", &ranks)
//	_ = eng.PerformGets(ctx)
func Get[T codec.Element](eng types.Engine, name string, dst *[]T) error {
	return eng.GetBlock(name, codec.KindOf[T](), func(payload []byte) error {
		data, _, err := codec.ReadSlice[T](payload)
		if err != nil {
			return err
		}
		if len(*dst) == len(data) {
			copy(*dst, data)
		} else {
			*dst = data
		}

		return nil
	})
}

// GetString schedules a read of the string variable name into *dst.
func GetString(eng types.Engine, name string, dst *string) error {
	return eng.GetBlock(name, types.KindString, func(payload []byte) error {
		s, _, err := codec.ReadString(payload)
		if err != nil {
			return fmt.Errorf("string %s: %w", name, err)
		}
		*dst = s

		return nil
	})
}
