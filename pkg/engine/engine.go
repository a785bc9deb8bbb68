// Package engine runs tests under a driver, catches failures and shrinks
// them before reporting.
//
// A run moves through [StateIdle], [StateRunning] and then either
// [StatePassed] or [StateFailed]. A failed run is always handed to the
// shrinker ([StateShrinking]) before it is [StateReported], unless
// shrinking is disabled.
//
// Two engines are provided. [RandomEngine] explores with fresh random
// inputs, replaying a corpus first. [ReplayEngine] runs one captured input,
// which is also how coverage-guided fuzzers plug in: they hand over one
// buffer per call.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/shrink"
)

// Engine is implemented by every backend.
type Engine interface {
	// SetDriverMode sets the mode of every driver the engine creates.
	SetDriverMode(mode driver.Mode)

	// Run executes test. A failing test is reported in Result.Failure, not
	// as an error. Errors are reserved for configuration problems and
	// cancellation.
	Run(ctx context.Context, test Test) (Result, error)
}

// State is the lifecycle position of an engine run.
type State uint32

const (
	StateIdle State = iota
	StateRunning
	StatePassed
	StateFailed
	StateShrinking
	StateReported
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateShrinking:
		return "shrinking"
	case StateReported:
		return "reported"
	default:
		return "unknown"
	}
}

// Result summarizes a run.
type Result struct {
	// State is StatePassed or StateReported for completed runs.
	State State

	// Runs counts test invocations, excluding shrink replays.
	Runs int

	// Rejected counts inputs skipped because a generator rejected them.
	Rejected int

	// Failure is set when the test failed.
	Failure *TestFailure
}

// Passed reports whether the run found no failure.
func (r Result) Passed() bool {
	return r.Failure == nil
}

// FailingCase is a captured failure before shrinking.
type FailingCase struct {
	Input     []byte
	Signature Signature

	// Seed and Iteration locate the case in a random run. Corpus is set
	// when the case came from a stored input.
	Seed      uint64
	Iteration int
	Corpus    bool
}

// Options configures the engines. Zero values pick defaults, except Shrink:
// start from [DefaultOptions] to get shrinking.
type Options struct {
	// Iterations is the number of fresh random inputs. Default 100.
	Iterations int

	// Seed is the base seed for random inputs. Each iteration derives its
	// own seed from it.
	Seed uint64

	// MaxLen caps the bytes one run can consume. Default 4096.
	MaxLen int

	// Workers runs iterations and shrink candidates in parallel. Default 1.
	Workers int

	// Timeout bounds one test invocation. Zero disables it.
	Timeout time.Duration

	// Shrink enables minimization of failing inputs.
	Shrink bool

	// ShrinkAttempts bounds shrink candidate evaluations. Zero means
	// unlimited.
	ShrinkAttempts int

	// ShrinkTime bounds the time spent shrinking. Zero means unlimited.
	ShrinkTime time.Duration

	// Corpus inputs are replayed in Forced mode before random inputs.
	Corpus [][]byte

	// Logger receives progress records. Nil discards.
	Logger *slog.Logger
}

const (
	defaultIterations = 100
	defaultMaxLen     = 4096
)

// DefaultOptions returns options with shrinking enabled.
func DefaultOptions() Options {
	return Options{
		Iterations: defaultIterations,
		MaxLen:     defaultMaxLen,
		Workers:    1,
		Shrink:     true,
	}
}

func (o Options) withDefaults() Options {
	if o.Iterations <= 0 {
		o.Iterations = defaultIterations
	}

	if o.MaxLen <= 0 {
		o.MaxLen = defaultMaxLen
	}

	if o.Workers <= 0 {
		o.Workers = 1
	}

	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}

	return o
}

// lifecycle tracks the engine state. Read concurrently by State().
type lifecycle struct {
	state atomic.Uint32
}

func (l *lifecycle) set(s State) {
	l.state.Store(uint32(s))
}

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	return State(l.state.Load())
}

// reporter shrinks a failing case and builds its report. Shared by both
// engines.
type reporter struct {
	opts Options
	life *lifecycle
	log  *slog.Logger
}

func (r reporter) forced(data []byte) *driver.Driver {
	return driver.NewForced(data, driver.WithMaxLen(r.opts.MaxLen))
}

func (r reporter) report(ctx context.Context, test Test, fc FailingCase) *TestFailure {
	failure := &TestFailure{
		Signature: fc.Signature,
		Input:     fc.Input,
		Original:  fc.Input,
		Seed:      fc.Seed,
		Iteration: fc.Iteration,
		Corpus:    fc.Corpus,
	}

	best := fc.Input

	if r.opts.Shrink {
		r.life.set(StateShrinking)

		best = r.shrink(ctx, test, fc, failure)
	}

	// Replay the best input once more so the report carries the exact
	// bytes that input consumes and the message of the minimized failure.
	d := r.forced(best)

	out := execute(ctx, test, d, r.opts.Timeout)
	switch {
	case out.failure != nil && !out.timedOut() && out.failure.Equivalent(fc.Signature):
		failure.Input = d.Consumed()
		failure.Signature = *out.failure
	default:
		failure.Input = best
	}

	failure.Value = describe(test, failure.Input, []driver.Option{driver.WithMaxLen(r.opts.MaxLen)})

	r.life.set(StateReported)

	r.log.Info("failure reported",
		"kind", failure.Signature.Kind.String(),
		"location", failure.Signature.Location.String(),
		"original_len", len(failure.Original),
		"len", len(failure.Input),
		"shrink_attempts", failure.ShrinkAttempts)

	return failure
}

func (r reporter) shrink(ctx context.Context, test Test, fc FailingCase, failure *TestFailure) []byte {
	if r.opts.ShrinkTime > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.opts.ShrinkTime)
		defer cancel()
	}

	var discarded atomic.Int64

	fails := func(candidate []byte) bool {
		out := execute(ctx, test, r.forced(candidate), r.opts.Timeout)
		if out.failure == nil {
			return false
		}

		if !out.failure.Equivalent(fc.Signature) {
			discarded.Add(1)

			return false
		}

		return true
	}

	res := shrink.Minimize(ctx, fc.Input, fails, shrink.Options{
		MaxAttempts: r.opts.ShrinkAttempts,
		Workers:     r.opts.Workers,
		Logger:      r.log,
	})

	failure.Shrunk = true
	failure.ShrinkAttempts = res.Attempts
	failure.Discarded = int(discarded.Load())

	r.log.Debug("shrink finished",
		"attempts", res.Attempts,
		"accepted", res.Accepted,
		"discarded", failure.Discarded,
		"exhausted", res.Exhausted)

	return res.Input
}
