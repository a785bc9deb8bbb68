package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// ReplayEngine runs a test once over a fixed input.
//
// In Forced mode (the default) reads past the input zero-fill. In Direct
// mode they are topped up from a random stream seeded with Options.Seed.
// A failure is shrunk like any other unless Options.Shrink is false, which
// is what fuzzer integrations want: the fuzzer minimizes on its own.
type ReplayEngine struct {
	lifecycle

	input []byte
	opts  Options
	mode  driver.Mode
}

var _ Engine = (*ReplayEngine)(nil)

// NewReplay creates a replay engine for input. Iterations, Workers (for
// running) and Corpus are ignored.
func NewReplay(input []byte, opts Options) *ReplayEngine {
	return &ReplayEngine{
		input: append([]byte(nil), input...),
		opts:  opts.withDefaults(),
		mode:  driver.ModeForced,
	}
}

// SetDriverMode sets the mode of the replay driver.
func (e *ReplayEngine) SetDriverMode(mode driver.Mode) {
	e.mode = mode
}

// Run executes the test once.
func (e *ReplayEngine) Run(ctx context.Context, test Test) (Result, error) {
	log := e.opts.Logger.With("run", uuid.NewString(), "mode", e.mode.String())

	e.set(StateRunning)

	d := driver.New(driver.NewExhaustible(e.input), e.mode,
		driver.WithMaxLen(e.opts.MaxLen),
		driver.WithTopUpSeed(e.opts.Seed))

	out := execute(ctx, test, d, e.opts.Timeout)

	switch {
	case out.cancelled:
		e.set(StateIdle)

		return Result{}, ctx.Err()
	case out.fatal != nil:
		e.set(StateIdle)

		return Result{}, out.fatal
	}

	res := Result{Runs: 1}

	if out.rejected {
		res.Rejected = 1
	}

	if out.failure == nil {
		e.set(StatePassed)
		res.State = StatePassed

		return res, nil
	}

	e.set(StateFailed)

	input := e.input
	if !out.timedOut() {
		input = d.Consumed()
	}

	rep := reporter{opts: e.opts, life: &e.lifecycle, log: log}

	res.Failure = rep.report(ctx, test, FailingCase{Input: input, Signature: *out.failure, Seed: e.opts.Seed})
	res.State = StateReported

	return res, nil
}
