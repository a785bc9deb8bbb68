package gen

import (
	"encoding/binary"
	"fmt"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// =============================================================================
// Transformation
// =============================================================================

// Map applies fn to every value g produces.
func Map[T, U any](g Generator[T], fn func(T) U) Generator[U] {
	return Func[U](func(d *driver.Driver) U {
		return fn(g.Generate(d))
	})
}

// Filter draws from g until pred passes, at most retries times. If no value
// passes, the input is rejected (see [Reject]).
func Filter[T any](g Generator[T], retries int, pred func(T) bool) Generator[T] {
	return Func[T](func(d *driver.Driver) T {
		for range max(retries, 1) {
			v := g.Generate(d)
			if pred(v) {
				return v
			}
		}

		Reject(fmt.Sprintf("filter on %s found no match in %d attempts", typeName[T](), max(retries, 1)))

		panic("unreachable")
	})
}

// =============================================================================
// Selection
// =============================================================================

// Index decodes an index in [0, n) from four bytes. Zero bytes select index 0.
// Panics if n <= 0.
func Index(d *driver.Driver, n int) int {
	if n <= 0 {
		panic("gen: Index called with n <= 0")
	}

	var raw [4]byte

	d.Fill(raw[:])

	return int(uint64(binary.LittleEndian.Uint32(raw[:])) % uint64(n))
}

// OneOf picks one of values. Panics if values is empty.
func OneOf[T any](values ...T) Generator[T] {
	if len(values) == 0 {
		panic("gen: OneOf called with no values")
	}

	return Func[T](func(d *driver.Driver) T {
		return values[Index(d, len(values))]
	})
}

// OneOfGen picks one of gens and draws from it. Panics if gens is empty.
func OneOfGen[T any](gens ...Generator[T]) Generator[T] {
	if len(gens) == 0 {
		panic("gen: OneOfGen called with no generators")
	}

	return Func[T](func(d *driver.Driver) T {
		return gens[Index(d, len(gens))].Generate(d)
	})
}

// =============================================================================
// Collections
// =============================================================================

// Slice generates a slice of length [0, maxLen].
func Slice[T any](elem Generator[T], maxLen int) Generator[[]T] {
	return SliceN(elem, 0, maxLen)
}

// SliceN generates a slice of length [minLen, maxLen]. The length is read
// first, then each element in order, so zeroing the length bytes shrinks
// the slice to minLen.
func SliceN[T any](elem Generator[T], minLen, maxLen int) Generator[[]T] {
	if minLen < 0 || minLen > maxLen {
		panic("gen: SliceN requires 0 <= minLen <= maxLen")
	}

	return Func[[]T](func(d *driver.Driver) []T {
		n := minLen + Index(d, maxLen-minLen+1)

		out := make([]T, n)
		for i := range out {
			out[i] = elem.Generate(d)
		}

		return out
	})
}

// Bytes generates a byte slice of length [0, maxLen].
func Bytes(maxLen int) Generator[[]byte] {
	return Func[[]byte](func(d *driver.Driver) []byte {
		return d.Bytes(Index(d, max(maxLen, 0)+1))
	})
}

// String generates a lowercase ASCII string of length [0, maxLen]. Each
// character is 'a' + b%26, so zero bytes decode to "a".
func String(maxLen int) Generator[string] {
	return Func[string](func(d *driver.Driver) string {
		raw := d.Bytes(Index(d, max(maxLen, 0)+1))
		for i := range raw {
			raw[i] = 'a' + raw[i]%26
		}

		return string(raw)
	})
}

// =============================================================================
// Tuples
// =============================================================================

// Pair holds two generated values.
type Pair[A, B any] struct {
	First  A
	Second B
}

// PairOf generates the first value, then the second.
func PairOf[A, B any](ga Generator[A], gb Generator[B]) Generator[Pair[A, B]] {
	return Func[Pair[A, B]](func(d *driver.Driver) Pair[A, B] {
		a := ga.Generate(d)

		return Pair[A, B]{First: a, Second: gb.Generate(d)}
	})
}
