package engine

import (
	"context"
	"fmt"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/gen"
)

// Test is one test body runnable under any engine.
//
// Test decodes its input from d and checks it. A non-nil error or a panic
// is a failure. Describe decodes the same input again and formats it for a
// report; it is only called with a fresh driver over the failing bytes.
type Test interface {
	Test(ctx context.Context, d *driver.Driver) error
	Describe(d *driver.Driver) string
}

// Property builds a test that generates a value with g and passes it to fn.
func Property[T any](g gen.Generator[T], fn func(T) error) Test {
	return &property[T]{
		gen: g,
		fn: func(_ context.Context, v T) error {
			return fn(v)
		},
		loc: funcLocation(fn),
	}
}

// PropertyContext is like [Property] but hands fn the run context, which is
// cancelled when the run times out.
func PropertyContext[T any](g gen.Generator[T], fn func(context.Context, T) error) Test {
	return &property[T]{gen: g, fn: fn, loc: funcLocation(fn)}
}

// Predicate builds a test that fails with [ErrPredicateFalse] whenever fn
// returns false.
func Predicate[T any](g gen.Generator[T], fn func(T) bool) Test {
	return &property[T]{
		gen: g,
		fn: func(_ context.Context, v T) error {
			if !fn(v) {
				return fmt.Errorf("%w for %+v", ErrPredicateFalse, v)
			}

			return nil
		},
		loc: funcLocation(fn),
	}
}

type property[T any] struct {
	gen gen.Generator[T]
	fn  func(context.Context, T) error
	loc TargetLocation
}

func (p *property[T]) Test(ctx context.Context, d *driver.Driver) error {
	return p.fn(ctx, p.gen.Generate(d))
}

func (p *property[T]) Describe(d *driver.Driver) string {
	return fmt.Sprintf("%+v", p.gen.Generate(d))
}

func (p *property[T]) Location() TargetLocation {
	return p.loc
}
