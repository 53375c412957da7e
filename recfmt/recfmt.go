// Package recfmt is a concrete record codec for tuples of fixed-size
// scalars, described by a struct.pack-style format string such as "iiLf"
// or "dI". It is grounded on the format strings used throughout the
// original OPJ test suite; it is one possible Codec, not a requirement —
// any Go struct type can supply its own.
package recfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorruptRecord is returned when decoding a byte slice whose length
// does not match the codec's fixed width.
var ErrCorruptRecord = errors.New("recfmt: corrupt record")

// Kind identifies one scalar field's type and width.
type Kind byte

const (
	Int8 Kind = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

func (k Kind) size() int {
	switch k {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		panic(fmt.Sprintf("recfmt: invalid kind %d", k))
	}
}

var kindByCode = map[byte]Kind{
	'b': Int8,
	'B': Uint8,
	'h': Int16,
	'H': Uint16,
	'i': Int32,
	'I': Uint32,
	'l': Int64,
	'L': Uint64,
	'f': Float32,
	'd': Float64,
}

// Tuple is a record value: one any per field, in format-string order. The
// concrete Go type of element i must match the Kind of field i (int32,
// uint32, int64, uint64, float32, float64, int8, uint8, int16, or uint16).
type Tuple []any

// Codec encodes, decodes, and compares Tuples described by a single
// format string.
type Codec struct {
	format string
	kinds  []Kind
	offs   []int
	size   int
}

// New parses format (one byte per field, see the package doc) and returns
// a ready-to-use Codec.
func New(format string) (*Codec, error) {
	if format == "" {
		return nil, fmt.Errorf("recfmt: empty format")
	}
	c := &Codec{format: format}
	off := 0
	for i := 0; i < len(format); i++ {
		kind, ok := kindByCode[format[i]]
		if !ok {
			return nil, fmt.Errorf("recfmt: invalid format code %q at position %d", format[i], i)
		}
		c.kinds = append(c.kinds, kind)
		c.offs = append(c.offs, off)
		off += kind.size()
	}
	c.size = off
	return c, nil
}

// MustNew is New, panicking on error. Intended for package-level
// format literals.
func MustNew(format string) *Codec {
	c, err := New(format)
	if err != nil {
		panic(err)
	}
	return c
}

// Size returns S, the fixed encoded width in bytes.
func (c *Codec) Size() int { return c.size }

// Descriptor returns the format string this Codec was built from.
func (c *Codec) Descriptor() string { return c.format }

// Encode writes v into buf, which must be exactly Size() bytes.
func (c *Codec) Encode(v Tuple, buf []byte) error {
	if len(buf) != c.size {
		return fmt.Errorf("recfmt: encode buffer is %d bytes, want %d", len(buf), c.size)
	}
	if len(v) != len(c.kinds) {
		return fmt.Errorf("recfmt: tuple has %d fields, format %q wants %d", len(v), c.format, len(c.kinds))
	}
	for i, kind := range c.kinds {
		off := c.offs[i]
		if err := encodeField(buf[off:off+kind.size()], kind, v[i]); err != nil {
			return fmt.Errorf("recfmt: field %d: %w", i, err)
		}
	}
	return nil
}

// Decode reconstructs a Tuple from buf. len(buf) != Size() is
// ErrCorruptRecord.
func (c *Codec) Decode(buf []byte) (Tuple, error) {
	if len(buf) != c.size {
		return nil, fmt.Errorf("recfmt: decode buffer is %d bytes, want %d: %w", len(buf), c.size, ErrCorruptRecord)
	}
	v := make(Tuple, len(c.kinds))
	for i, kind := range c.kinds {
		off := c.offs[i]
		v[i] = decodeField(buf[off:off+kind.size()], kind)
	}
	return v, nil
}

// Compare returns the lexicographic field-by-field ordering of a and b.
// Panics if they were not produced by this Codec (wrong arity).
func (c *Codec) Compare(a, b Tuple) int {
	for i, kind := range c.kinds {
		if cmp := compareField(kind, a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func encodeField(buf []byte, kind Kind, v any) error {
	switch kind {
	case Int8:
		x, ok := asInt64(v)
		if !ok {
			return fmt.Errorf("expected int8-compatible value, got %T", v)
		}
		buf[0] = byte(int8(x))
	case Uint8:
		x, ok := asUint64(v)
		if !ok {
			return fmt.Errorf("expected uint8-compatible value, got %T", v)
		}
		buf[0] = byte(uint8(x))
	case Int16:
		x, ok := asInt64(v)
		if !ok {
			return fmt.Errorf("expected int16-compatible value, got %T", v)
		}
		binary.LittleEndian.PutUint16(buf, uint16(int16(x)))
	case Uint16:
		x, ok := asUint64(v)
		if !ok {
			return fmt.Errorf("expected uint16-compatible value, got %T", v)
		}
		binary.LittleEndian.PutUint16(buf, uint16(x))
	case Int32:
		x, ok := asInt64(v)
		if !ok {
			return fmt.Errorf("expected int32-compatible value, got %T", v)
		}
		binary.LittleEndian.PutUint32(buf, uint32(int32(x)))
	case Uint32:
		x, ok := asUint64(v)
		if !ok {
			return fmt.Errorf("expected uint32-compatible value, got %T", v)
		}
		binary.LittleEndian.PutUint32(buf, uint32(x))
	case Int64:
		x, ok := asInt64(v)
		if !ok {
			return fmt.Errorf("expected int64-compatible value, got %T", v)
		}
		binary.LittleEndian.PutUint64(buf, uint64(x))
	case Uint64:
		x, ok := asUint64(v)
		if !ok {
			return fmt.Errorf("expected uint64-compatible value, got %T", v)
		}
		binary.LittleEndian.PutUint64(buf, x)
	case Float32:
		x, ok := v.(float32)
		if !ok {
			f64, ok2 := v.(float64)
			if !ok2 {
				return fmt.Errorf("expected float32-compatible value, got %T", v)
			}
			x = float32(f64)
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
	case Float64:
		x, ok := v.(float64)
		if !ok {
			f32, ok2 := v.(float32)
			if !ok2 {
				return fmt.Errorf("expected float64-compatible value, got %T", v)
			}
			x = float64(f32)
		}
		binary.LittleEndian.PutUint64(buf, math.Float64bits(x))
	}
	return nil
}

func decodeField(buf []byte, kind Kind) any {
	switch kind {
	case Int8:
		return int8(buf[0])
	case Uint8:
		return uint8(buf[0])
	case Int16:
		return int16(binary.LittleEndian.Uint16(buf))
	case Uint16:
		return binary.LittleEndian.Uint16(buf)
	case Int32:
		return int32(binary.LittleEndian.Uint32(buf))
	case Uint32:
		return binary.LittleEndian.Uint32(buf)
	case Int64:
		return int64(binary.LittleEndian.Uint64(buf))
	case Uint64:
		return binary.LittleEndian.Uint64(buf)
	case Float32:
		return math.Float32frombits(binary.LittleEndian.Uint32(buf))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	default:
		panic("recfmt: unreachable")
	}
}

func compareField(kind Kind, a, b any) int {
	switch kind {
	case Int8, Int16, Int32, Int64:
		x, _ := asInt64(a)
		y, _ := asInt64(b)
		return cmpOrdered(x, y)
	case Uint8, Uint16, Uint32, Uint64:
		x, _ := asUint64(a)
		y, _ := asUint64(b)
		return cmpOrdered(x, y)
	case Float32, Float64:
		x, y := asFloat64(a), asFloat64(b)
		return cmpOrdered(x, y)
	default:
		panic("recfmt: unreachable")
	}
}

func cmpOrdered[V int64 | uint64 | float64](a, b V) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	default:
		return 0, false
	}
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	default:
		panic(fmt.Sprintf("recfmt: expected float-compatible value, got %T", v))
	}
}
