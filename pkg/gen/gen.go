// Package gen maps driver entropy into typed values.
//
// Every generator is a [Generator]: given a [driver.Driver] it decodes one
// value. Decoding is a pure function of the bytes the driver hands out, so a
// Forced-mode driver over the same bytes always yields the same value. The
// package never shrinks values itself; shrinking happens on the byte
// sequence and flows back through the same generators.
//
// # Roles
//
// A [TypeGenerator] is a type that knows its own default decoding. [Of]
// turns it into a Generator. Integers, floats and bools have built-in
// defaults ([Int], [Float64], [Bool]).
//
// A value generator is any other Generator, typically a combinator over a
// concrete value or constraint: [Const] ignores the driver entirely,
// [Range] folds a base value into a bound, [Slice] repeats an element
// generator.
package gen

import (
	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// Generator decodes a value of type T from a driver.
type Generator[T any] interface {
	Generate(d *driver.Driver) T
}

// Func adapts an ordinary function to a [Generator].
type Func[T any] func(d *driver.Driver) T

// Generate calls f(d).
func (f Func[T]) Generate(d *driver.Driver) T {
	return f(d)
}

// TypeGenerator is implemented by types that decode themselves with no
// parameters. GenerateFrom must overwrite every field it owns.
type TypeGenerator interface {
	GenerateFrom(d *driver.Driver)
}

// Of returns a Generator for a type whose pointer implements [TypeGenerator].
//
//	type Point struct{ X, Y int16 }
//
//	func (p *Point) GenerateFrom(d *driver.Driver) {
//	    p.X = gen.Int16().Generate(d)
//	    p.Y = gen.Int16().Generate(d)
//	}
//
//	points := gen.Of[Point]()
func Of[T any, P interface {
	*T
	TypeGenerator
}]() Generator[T] {
	return Func[T](func(d *driver.Driver) T {
		var v T
		P(&v).GenerateFrom(d)

		return v
	})
}

// Const returns a generator that always yields v and never reads the driver.
// Useful for fields of a composite input that must stay fixed.
func Const[T any](v T) Generator[T] {
	return constant[T]{v: v}
}

type constant[T any] struct {
	v T
}

func (c constant[T]) Generate(*driver.Driver) T {
	return c.v
}
