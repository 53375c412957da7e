package opj

import "encoding/binary"

// int32Codec is a minimal Codec[int32] used across this package's tests.
type int32Codec struct{}

func (int32Codec) Size() int { return 4 }

func (int32Codec) Descriptor() string { return "int32" }

func (int32Codec) Encode(v int32, buf []byte) error {
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return nil
}

func (int32Codec) Decode(buf []byte) (int32, error) {
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

func (int32Codec) Compare(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func collect[T any](seq func(func(T) bool)) []T {
	var out []T
	seq(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

func equalInt32(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
