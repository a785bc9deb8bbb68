package gen

import (
	"fmt"
	"strconv"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// nonZeroAttempts is how many raw values BoundedNonZero tries, each one
// greater than the last (wrapping), before giving up.
const nonZeroAttempts = 4

// NonZero is an integer that is never zero.
//
// Values are only produced by [NewNonZero], [MustNonZero] and the
// generators in this package, all of which check the invariant. The zero
// value of NonZero is not valid; Get returns 0 for it.
type NonZero[T Integer] struct {
	v T
}

// NewNonZero returns v as a NonZero, or false if v is zero.
func NewNonZero[T Integer](v T) (NonZero[T], bool) {
	if v == 0 {
		return NonZero[T]{}, false
	}

	return NonZero[T]{v: v}, true
}

// MustNonZero is like NewNonZero but panics if v is zero.
func MustNonZero[T Integer](v T) NonZero[T] {
	n, ok := NewNonZero(v)
	if !ok {
		panic(fmt.Sprintf("gen: MustNonZero called with zero %s", typeName[T]()))
	}

	return n
}

// Get returns the underlying value.
func (n NonZero[T]) Get() T {
	return n.v
}

func (n NonZero[T]) String() string {
	if isSigned[T]() {
		return strconv.FormatInt(int64(n.v), 10)
	}

	return strconv.FormatUint(uint64(n.v), 10)
}

// BoundedNonZero folds x into the interval described by start and end and
// returns a non-zero result.
//
// The bounds are unwrapped to T and the fold is done by [Bounded]. If the
// folded value is zero, the raw value is incremented (wrapping) and folded
// again, up to four attempts in total. If every attempt folds to zero the
// interval cannot produce a valid value and an *UnsatisfiableBoundError is
// returned.
func BoundedNonZero[T Integer](x NonZero[T], start, end Bound[NonZero[T]]) (NonZero[T], error) {
	lower := unwrapBound(start)
	upper := unwrapBound(end)

	inner := x.Get()

	for range nonZeroAttempts {
		if v, ok := NewNonZero(Bounded(inner, lower, upper)); ok {
			return v, nil
		}

		inner++
	}

	return NonZero[T]{}, &UnsatisfiableBoundError{
		Type:     "NonZero[" + typeName[T]() + "]",
		Start:    lower.String(),
		End:      upper.String(),
		Attempts: nonZeroAttempts,
	}
}

func unwrapBound[T Integer](b Bound[NonZero[T]]) Bound[T] {
	return Bound[T]{Kind: b.Kind, Value: b.Value.Get()}
}

// NonZeroOf returns the default NonZero generator for T. It draws from
// [1, max], so zero is excluded without retrying.
func NonZeroOf[T Integer]() Generator[NonZero[T]] {
	return Func[NonZero[T]](func(d *driver.Driver) NonZero[T] {
		raw := Bounded(Int[T]().Generate(d), Included[T](1), Unbounded[T]())

		return MustNonZero(raw)
	})
}

// NonZeroBetween returns a NonZero generator constrained to start..end.
//
// If the bounds admit no non-zero value for the drawn input, Generate
// panics with an *UnsatisfiableBoundError. The engine treats that panic as
// a fatal configuration error, not as a test failure.
func NonZeroBetween[T Integer](start, end Bound[NonZero[T]]) Generator[NonZero[T]] {
	base := NonZeroOf[T]()

	return Func[NonZero[T]](func(d *driver.Driver) NonZero[T] {
		v, err := BoundedNonZero(base.Generate(d), start, end)
		if err != nil {
			panic(err)
		}

		return v
	})
}
