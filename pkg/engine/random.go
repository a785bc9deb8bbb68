package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// RandomEngine explores a test with pseudo-random inputs.
//
// Corpus inputs run first, serially and in Forced mode. Then Iterations
// fresh inputs run across Workers goroutines, each iteration with its own
// driver seeded from the base seed and the iteration number, so a failure
// is reproducible from (Seed, Iteration) alone. The first failure cancels
// the remaining iterations; if several workers fail, the lowest iteration
// is reported.
type RandomEngine struct {
	lifecycle

	opts Options
	mode driver.Mode
}

var _ Engine = (*RandomEngine)(nil)

// NewRandom creates a random engine. Drivers default to Direct mode.
func NewRandom(opts Options) *RandomEngine {
	return &RandomEngine{opts: opts.withDefaults(), mode: driver.ModeDirect}
}

// SetDriverMode sets the mode for fresh inputs. In Forced mode every
// iteration gets a fixed MaxLen random buffer and reads past it zero-fill.
func (e *RandomEngine) SetDriverMode(mode driver.Mode) {
	e.mode = mode
}

// Run executes the corpus and then the random iterations.
func (e *RandomEngine) Run(ctx context.Context, test Test) (Result, error) {
	log := e.opts.Logger.With("run", uuid.NewString(), "seed", e.opts.Seed, "mode", e.mode.String())
	rep := reporter{opts: e.opts, life: &e.lifecycle, log: log}

	e.set(StateRunning)
	log.Debug("run started", "iterations", e.opts.Iterations, "corpus", len(e.opts.Corpus), "workers", e.opts.Workers)

	var res Result

	fc, err := e.replayCorpus(ctx, test, &res)
	if err != nil {
		e.set(StateIdle)

		return res, err
	}

	if fc == nil {
		fc, err = e.explore(ctx, test, log, &res)
		if err != nil {
			e.set(StateIdle)

			return res, err
		}
	}

	if fc == nil {
		e.set(StatePassed)
		res.State = StatePassed

		log.Debug("run passed", "runs", res.Runs, "rejected", res.Rejected)

		return res, nil
	}

	e.set(StateFailed)
	log.Debug("failure found", "iteration", fc.Iteration, "corpus", fc.Corpus, "signature", fc.Signature.String())

	res.Failure = rep.report(ctx, test, *fc)
	res.State = StateReported

	return res, nil
}

func (e *RandomEngine) replayCorpus(ctx context.Context, test Test, res *Result) (*FailingCase, error) {
	for i, data := range e.opts.Corpus {
		d := driver.NewForced(data, driver.WithMaxLen(e.opts.MaxLen))
		out := execute(ctx, test, d, e.opts.Timeout)

		switch {
		case out.cancelled:
			return nil, ctx.Err()
		case out.fatal != nil:
			return nil, out.fatal
		}

		res.Runs++

		switch {
		case out.rejected:
			res.Rejected++
		case out.failure != nil:
			input := data
			if !out.timedOut() {
				input = d.Consumed()
			}

			return &FailingCase{Input: input, Signature: *out.failure, Iteration: i, Corpus: true}, nil
		}
	}

	return nil, nil
}

func (e *RandomEngine) explore(ctx context.Context, test Test, log *slog.Logger, res *Result) (*FailingCase, error) {
	var (
		mu       sync.Mutex
		first    *FailingCase
		runs     atomic.Int64
		rejected atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := range e.opts.Iterations {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			seed := iterationSeed(e.opts.Seed, i)
			d := e.newDriver(seed)

			out := execute(gctx, test, d, e.opts.Timeout)

			switch {
			case out.cancelled:
				return nil
			case out.fatal != nil:
				return out.fatal
			}

			runs.Add(1)

			switch {
			case out.rejected:
				rejected.Add(1)

				return nil
			case out.failure == nil:
				return nil
			}

			input := e.seedBytes(seed)
			if !out.timedOut() {
				input = d.Consumed()
			}

			mu.Lock()
			if first == nil || i < first.Iteration {
				first = &FailingCase{Input: input, Signature: *out.failure, Seed: seed, Iteration: i}
			}
			mu.Unlock()

			return errStop
		})
	}

	err := g.Wait()

	res.Runs += int(runs.Load())
	res.Rejected += int(rejected.Load())

	if err != nil && !errors.Is(err, errStop) {
		log.Debug("run aborted", "error", err.Error())

		return nil, err
	}

	if first == nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return first, nil
}

func (e *RandomEngine) newDriver(seed uint64) *driver.Driver {
	if e.mode == driver.ModeForced {
		return driver.NewForced(e.seedBytes(seed), driver.WithMaxLen(e.opts.MaxLen))
	}

	return driver.New(driver.NewInfinite(seed), driver.ModeDirect, driver.WithMaxLen(e.opts.MaxLen))
}

// seedBytes returns the MaxLen bytes a Direct driver seeded with seed can
// hand out. It stands in for the consumed bytes when a timed-out test is
// still holding its driver.
func (e *RandomEngine) seedBytes(seed uint64) []byte {
	buf := make([]byte, e.opts.MaxLen)
	driver.NewInfinite(seed).Fill(buf)

	return buf
}

// iterationSeed mixes the base seed with the iteration number (splitmix64).
func iterationSeed(base uint64, i int) uint64 {
	z := base + uint64(i+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb

	return z ^ (z >> 31)
}
