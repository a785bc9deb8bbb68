package gen

import (
	"fmt"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// BoundKind says how a [Bound] treats its value.
type BoundKind uint8

const (
	// KindUnbounded resolves to the domain minimum (start) or maximum (end).
	KindUnbounded BoundKind = iota
	// KindIncluded includes the value.
	KindIncluded
	// KindExcluded excludes the value. Resolution saturates at the domain
	// edge instead of wrapping.
	KindExcluded
)

// Bound is one end of an interval.
type Bound[T any] struct {
	Kind  BoundKind
	Value T
}

// Included returns a bound that includes v.
func Included[T any](v T) Bound[T] {
	return Bound[T]{Kind: KindIncluded, Value: v}
}

// Excluded returns a bound that excludes v.
func Excluded[T any](v T) Bound[T] {
	return Bound[T]{Kind: KindExcluded, Value: v}
}

// Unbounded returns an open bound.
func Unbounded[T any]() Bound[T] {
	return Bound[T]{Kind: KindUnbounded}
}

func (b Bound[T]) String() string {
	switch b.Kind {
	case KindIncluded:
		return fmt.Sprintf("Included(%v)", b.Value)
	case KindExcluded:
		return fmt.Sprintf("Excluded(%v)", b.Value)
	default:
		return "Unbounded"
	}
}

// Resolve turns a (start, end) pair into a normalized inclusive interval
// [lower, upper] with lower <= upper.
//
// Excluded start values resolve to v+1 and excluded end values to v-1, both
// saturating at the edge of T. If start resolves above end the pair is
// swapped, never rejected.
func Resolve[T Integer](start, end Bound[T]) (lower, upper T) {
	lower = resolveStart(start)
	upper = resolveEnd(end)

	if lower > upper {
		lower, upper = upper, lower
	}

	return lower, upper
}

func resolveStart[T Integer](b Bound[T]) T {
	switch b.Kind {
	case KindIncluded:
		return b.Value
	case KindExcluded:
		if b.Value == maxOf[T]() {
			return b.Value
		}

		return b.Value + 1
	default:
		return minOf[T]()
	}
}

func resolveEnd[T Integer](b Bound[T]) T {
	switch b.Kind {
	case KindIncluded:
		return b.Value
	case KindExcluded:
		if b.Value == minOf[T]() {
			return b.Value
		}

		return b.Value - 1
	default:
		return maxOf[T]()
	}
}

// Bounded folds an arbitrary x into the interval described by start and end.
//
// With [lower, upper] = Resolve(start, end) and range = upper - lower, the
// result is lower + (x mod range), computed on the unsigned bit pattern of x
// so signed inputs can never land below lower. The modulus is range, not
// range+1: upper itself is only produced when range is zero. Callers that
// need upper reachable should widen the end bound by one.
func Bounded[T Integer](x T, start, end Bound[T]) T {
	lower, upper := Resolve(start, end)

	span := image(upper - lower)
	if span == 0 {
		return lower
	}

	return lower + T(image(x)%span)
}

// BoundedGenerator decorates a base generator with a range constraint.
type BoundedGenerator[T Integer] struct {
	Base  Generator[T]
	Start Bound[T]
	End   Bound[T]
}

// Generate draws from the base generator and folds the value into range.
func (g BoundedGenerator[T]) Generate(d *driver.Driver) T {
	base := g.Base
	if base == nil {
		base = Int[T]()
	}

	return Bounded(base.Generate(d), g.Start, g.End)
}

// BoundedBy decorates base with the given bounds.
func BoundedBy[T Integer](base Generator[T], start, end Bound[T]) BoundedGenerator[T] {
	return BoundedGenerator[T]{Base: base, Start: start, End: end}
}

// Between bounds the default decoder for T.
func Between[T Integer](start, end Bound[T]) BoundedGenerator[T] {
	return BoundedBy[T](Int[T](), start, end)
}

// Range bounds the default decoder for T to Included(lo)..Included(hi).
// See [Bounded] for which values are reachable.
func Range[T Integer](lo, hi T) BoundedGenerator[T] {
	return Between(Included(lo), Included(hi))
}

// AtLeast bounds the default decoder for T from below.
func AtLeast[T Integer](lo T) BoundedGenerator[T] {
	return Between(Included(lo), Unbounded[T]())
}

// AtMost bounds the default decoder for T from above.
func AtMost[T Integer](hi T) BoundedGenerator[T] {
	return Between(Unbounded[T](), Included(hi))
}
