// internal/registry/codec.go
package registry

import (
	"fmt"
	"math"
	"strconv"
)

// WriteKind selects the transport primitive for a holding register write.
type WriteKind uint8

const (
	WriteSingle WriteKind = iota // FC6, one register
	WriteLong                    // FC16, two registers, 32-bit integer
	WriteFloat                   // FC16, two registers, IEEE754 single
)

// Encoded is a holding register value ready for the wire.
type Encoded struct {
	Kind  WriteKind
	Word  uint16
	Long  uint32
	Float float32
}

// DecodeBit converts a bit read into a register value.
func DecodeBit(b bool) any { return b }

// DecodeRegister converts one raw 16-bit word into the register's value.
// Signed data types are read as two's complement; decimals shift the point left.
func DecodeRegister(r Register, raw uint16) any {
	if r.DataType == DataTypeBoolean {
		return raw != 0
	}

	var v int64
	if r.DataType.Signed() {
		v = int64(int16(raw))
	} else {
		v = int64(raw)
	}

	if r.Decimals > 0 {
		return float64(v) / math.Pow10(r.Decimals)
	}
	return v
}

// DecodeWords converts a 32-bit value spread over two registers, high word first.
// FLOAT is IEEE754 single precision and ignores decimals; INT/UINT scale like
// single registers.
func DecodeWords(r Register, hi, lo uint16) any {
	raw := uint32(hi)<<16 | uint32(lo)

	if r.DataType == DataTypeFloat {
		f := math.Float32frombits(raw)
		// shortest decimal form, so 21.3 reads back as 21.3 and not 21.2999992
		v, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
		if err != nil {
			return float64(f)
		}
		return v
	}

	var v int64
	if r.DataType.Signed() {
		v = int64(int32(raw))
	} else {
		v = int64(raw)
	}

	if r.Decimals > 0 {
		return float64(v) / math.Pow10(r.Decimals)
	}
	return v
}

// EncodeCoil validates a coil write value.
// Booleans and the integers 0/1 are accepted.
func EncodeCoil(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	}

	if i, ok := asInt(v); ok && (i == 0 || i == 1) {
		return i == 1, nil
	}
	return false, fmt.Errorf("%w: coil accepts booleans only, got %T", ErrUnsupportedValue, v)
}

// EncodeHolding picks the write primitive and wire form for a holding register.
//
// Floats go out as IEEE754 unless decimals turn them into scaled integers.
// INT/UINT data types always use the 32-bit form; narrower types fall back to it
// only when the value does not fit into one register.
func EncodeHolding(r Register, v any) (Encoded, error) {
	if !r.DataType.Numeric() && r.DataType != DataTypeUnknown {
		return Encoded{}, fmt.Errorf("%w: data type %s is not writable", ErrUnsupportedValue, r.DataType)
	}

	if b, ok := v.(bool); ok {
		if b {
			return Encoded{Kind: WriteSingle, Word: 1}, nil
		}
		return Encoded{Kind: WriteSingle, Word: 0}, nil
	}

	if f, ok := asFloat(v); ok {
		if r.DataType == DataTypeFloat {
			return Encoded{Kind: WriteFloat, Float: float32(f)}, nil
		}
		if r.Decimals > 0 {
			return encodeInt(r, int64(math.Round(f*math.Pow10(r.Decimals))))
		}
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return encodeInt(r, int64(f))
		}
		return Encoded{Kind: WriteFloat, Float: float32(f)}, nil
	}

	if i, ok := asInt(v); ok {
		if r.DataType == DataTypeFloat {
			return Encoded{Kind: WriteFloat, Float: float32(i)}, nil
		}
		if r.Decimals > 0 {
			i *= int64(math.Pow10(r.Decimals))
		}
		return encodeInt(r, i)
	}

	return Encoded{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
}

func encodeInt(r Register, i int64) (Encoded, error) {
	wide := r.DataType == DataTypeInt || r.DataType == DataTypeUInt

	if r.DataType.Signed() {
		if !wide && i >= math.MinInt16 && i <= math.MaxInt16 {
			return Encoded{Kind: WriteSingle, Word: uint16(int16(i))}, nil
		}
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return Encoded{Kind: WriteLong, Long: uint32(int32(i))}, nil
		}
		return Encoded{}, fmt.Errorf("%w: %d overflows signed 32-bit", ErrUnsupportedValue, i)
	}

	if i < 0 {
		return Encoded{}, fmt.Errorf("%w: negative value %d for unsigned register", ErrUnsupportedValue, i)
	}
	if !wide && i <= math.MaxUint16 {
		return Encoded{Kind: WriteSingle, Word: uint16(i)}, nil
	}
	if i <= math.MaxUint32 {
		return Encoded{Kind: WriteLong, Long: uint32(i)}, nil
	}
	return Encoded{}, fmt.Errorf("%w: %d overflows unsigned 32-bit", ErrUnsupportedValue, i)
}

func asInt(v any) (int64, bool) {
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
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// Equal compares two register values loosely: numbers compare by value
// regardless of their Go type.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
		if bi, ok := asInt(b); ok {
			return (bi != 0) == ab
		}
		return false
	}
	if _, ok := b.(bool); ok {
		return Equal(b, a)
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return math.Abs(af-bf) < 1e-9
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	if f, ok := asFloat(v); ok {
		return f, true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
