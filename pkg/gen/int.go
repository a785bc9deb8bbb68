package gen

import (
	"encoding/binary"
	"math"
	"reflect"
	"unsafe"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// Integer is the set of primitive integer kinds the package can decode and
// bound.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// IntGen is the default decoder for an integer type.
//
// It reads a fixed window of bytes and reinterprets them little-endian as T.
// For int, uint and uintptr the window is always 8 bytes, so the bytes a
// case consumes do not depend on the platform word size.
type IntGen[T Integer] struct {
	window int
}

// Int returns the default decoder for T.
func Int[T Integer]() IntGen[T] {
	return IntGen[T]{window: windowOf[T]()}
}

// Generate decodes one T.
func (g IntGen[T]) Generate(d *driver.Driver) T {
	window := g.window
	if window == 0 {
		window = windowOf[T]()
	}

	var raw [8]byte

	d.Fill(raw[:window])

	return T(binary.LittleEndian.Uint64(raw[:]))
}

// Uint8 decodes a uint8 from one byte.
func Uint8() IntGen[uint8] { return Int[uint8]() }

// Uint16 decodes a uint16 from two little-endian bytes.
func Uint16() IntGen[uint16] { return Int[uint16]() }

// Uint32 decodes a uint32 from four little-endian bytes.
func Uint32() IntGen[uint32] { return Int[uint32]() }

// Uint64 decodes a uint64 from eight little-endian bytes.
func Uint64() IntGen[uint64] { return Int[uint64]() }

// Uint decodes a uint from eight little-endian bytes.
func Uint() IntGen[uint] { return Int[uint]() }

// Int8 decodes an int8 from one byte.
func Int8() IntGen[int8] { return Int[int8]() }

// Int16 decodes an int16 from two little-endian bytes.
func Int16() IntGen[int16] { return Int[int16]() }

// Int32 decodes an int32 from four little-endian bytes.
func Int32() IntGen[int32] { return Int[int32]() }

// Int64 decodes an int64 from eight little-endian bytes.
func Int64() IntGen[int64] { return Int[int64]() }

// windowOf returns how many bytes the default decoder reads for T.
func windowOf[T Integer]() int {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return 8
	default:
		var zero T

		return int(unsafe.Sizeof(zero))
	}
}

// typeName is used in diagnostics.
func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

// bitsOf returns the storage width of T in bits.
func bitsOf[T Integer]() uint {
	var zero T

	return uint(unsafe.Sizeof(zero)) * 8
}

func isSigned[T Integer]() bool {
	var zero T

	return ^zero < 0
}

// maxOf returns the largest value of T.
func maxOf[T Integer]() T {
	if isSigned[T]() {
		return T(uint64(1)<<(bitsOf[T]()-1) - 1)
	}

	all := uint64(math.MaxUint64)

	return T(all)
}

// minOf returns the smallest value of T.
func minOf[T Integer]() T {
	if isSigned[T]() {
		return ^maxOf[T]()
	}

	return 0
}

// image returns the two's-complement bit pattern of v zero-extended to 64
// bits. Unlike uint64(v) it never sign-extends.
func image[T Integer](v T) uint64 {
	bits := bitsOf[T]()
	if bits == 64 {
		return uint64(v)
	}

	return uint64(v) & (uint64(1)<<bits - 1)
}
