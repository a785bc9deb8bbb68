package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/gen"
)

// outcome is the result of running a test once.
type outcome struct {
	// failure is set when the test failed.
	failure *Signature

	// rejected is set when a generator discarded the input.
	rejected bool

	// fatal is set when the generators are misconfigured.
	fatal error

	// cancelled is set when the parent context ended the run.
	cancelled bool
}

func (o outcome) timedOut() bool {
	return o.failure != nil && o.failure.Kind == KindTimeout
}

// execute runs test once over d. With a positive timeout the test runs on
// its own goroutine; a test that ignores its context keeps running in the
// background after a timeout, but with a driver nobody else touches.
func execute(ctx context.Context, test Test, d *driver.Driver, timeout time.Duration) outcome {
	if ctx.Err() != nil {
		return outcome{cancelled: true}
	}

	if timeout <= 0 {
		return invoke(ctx, test, d)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)

	go func() {
		done <- invoke(runCtx, test, d)
	}()

	select {
	case out := <-done:
		return out
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return outcome{cancelled: true}
		}

		return outcome{failure: &Signature{
			Kind:     KindTimeout,
			Message:  fmt.Sprintf("test did not finish within %s", timeout),
			Location: locate(test),
		}}
	}
}

// invoke runs the test and converts a panic or an error into an outcome.
func invoke(ctx context.Context, test Test, d *driver.Driver) (out outcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if err, ok := r.(error); ok {
			if o, classified := classify(err); classified {
				out = o

				return
			}
		}

		out = outcome{failure: &Signature{
			Kind:     KindPanic,
			Message:  fmt.Sprint(r),
			Location: panicLocation(),
		}}
	}()

	err := test.Test(ctx, d)
	if err == nil {
		return outcome{}
	}

	if o, classified := classify(err); classified {
		return o
	}

	return outcome{failure: &Signature{
		Kind:     KindAssertion,
		Message:  err.Error(),
		Location: locate(test),
	}}
}

// classify handles generator errors that are not test failures.
func classify(err error) (outcome, bool) {
	switch {
	case errors.Is(err, gen.ErrRejected):
		return outcome{rejected: true}, true
	case errors.Is(err, gen.ErrUnsatisfiableBound):
		return outcome{fatal: fmt.Errorf("%w: %w", ErrConfiguration, err)}, true
	default:
		return outcome{}, false
	}
}

// describe formats the value decoded from data. A generator that panics
// while describing yields a placeholder instead.
func describe(test Test, data []byte, opts []driver.Option) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("<describe panicked: %v>", r)
		}
	}()

	return test.Describe(driver.NewForced(data, opts...))
}
