// Package shrink minimizes a failing input by searching over its bytes.
//
// The search knows nothing about types. It proposes smaller byte sequences
// and asks a caller-supplied predicate whether each one still fails. Because
// generators decode deterministically in Forced mode, a smaller byte
// sequence replayed through the same generators yields a simpler value.
//
// Every accepted candidate is strictly smaller than the previous best under
// [Less]: shorter, or the same length and bytewise smaller. The search
// therefore always terminates.
package shrink

import (
	"bytes"
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Options configures [Minimize].
type Options struct {
	// MaxAttempts bounds the number of candidate evaluations. Zero means
	// no limit.
	MaxAttempts int

	// Workers is the number of candidates evaluated concurrently. Values
	// below 2 evaluate serially. The fails predicate must be safe for
	// concurrent use when Workers > 1. The result does not depend on
	// Workers: the lowest-index failing candidate of a batch always wins.
	Workers int

	// Logger receives debug records for accepted candidates. Nil discards.
	Logger *slog.Logger
}

// Result is the outcome of [Minimize].
type Result struct {
	// Input is the smallest failing sequence found.
	Input []byte

	// Attempts is the number of candidates evaluated.
	Attempts int

	// Accepted is the number of candidates that replaced the best.
	Accepted int

	// Exhausted is true if the attempt budget or the context ran out before
	// a full round made no progress.
	Exhausted bool
}

// Less reports whether a is smaller than b: shorter, or equal length and
// bytewise smaller.
func Less(a, b []byte) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}

	return bytes.Compare(a, b) < 0
}

// Minimize searches for the smallest sequence derived from input for which
// fails returns true. input itself is assumed to fail and is never
// re-evaluated.
//
// Each round trims trailing zeros, truncates the tail in halving chunks,
// deletes small interior chunks and then simplifies each byte toward zero.
// Rounds repeat until one makes no progress.
func Minimize(ctx context.Context, input []byte, fails func([]byte) bool, opts Options) Result {
	s := &shrinker{
		ctx:    ctx,
		fails:  fails,
		opts:   opts,
		best:   append([]byte(nil), input...),
		logger: opts.Logger,
	}

	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	for !s.done() {
		improved := s.sweep(trimCandidates)
		improved = s.sweep(truncateCandidates) || improved
		improved = s.sweep(deleteCandidates) || improved
		improved = s.sweep(simplifyCandidates) || improved

		if !improved {
			break
		}
	}

	return Result{
		Input:     s.best,
		Attempts:  s.attempts,
		Accepted:  s.accepted,
		Exhausted: s.done(),
	}
}

type shrinker struct {
	ctx    context.Context
	fails  func([]byte) bool
	opts   Options
	logger *slog.Logger

	best     []byte
	attempts int
	accepted int
}

// candidate is a proposed replacement for best. pos is where the next sweep
// should resume after it is accepted.
type candidate struct {
	pos  int
	data []byte
}

// candidateFunc proposes candidates derived from best, starting at from.
// It returns at most limit candidates.
type candidateFunc func(best []byte, from, limit int) []candidate

func (s *shrinker) done() bool {
	if s.ctx.Err() != nil {
		return true
	}

	return s.opts.MaxAttempts > 0 && s.attempts >= s.opts.MaxAttempts
}

func (s *shrinker) batchSize() int {
	if s.opts.Workers < 2 {
		return 8
	}

	return s.opts.Workers * 4
}

// sweep repeatedly asks propose for a batch, accepts the first failing
// candidate and resumes from its position, until a batch starting at the
// end yields nothing.
func (s *shrinker) sweep(propose candidateFunc) bool {
	improved := false
	from := 0

	for !s.done() {
		batch := propose(s.best, from, s.batchSize())
		if len(batch) == 0 {
			break
		}

		idx := s.first(batch)
		if idx < 0 {
			// Nothing in this batch failed; continue after it.
			from = batch[len(batch)-1].pos + 1

			continue
		}

		s.best = batch[idx].data
		s.accepted++
		from = batch[idx].pos
		improved = true

		s.logger.Debug("shrink: accepted candidate",
			"len", len(s.best),
			"attempts", s.attempts,
			"accepted", s.accepted)
	}

	return improved
}

// first evaluates batch and returns the index of the lowest candidate that
// still fails, or -1.
func (s *shrinker) first(batch []candidate) int {
	if s.opts.Workers < 2 {
		for i, c := range batch {
			if s.done() {
				return -1
			}

			if !Less(c.data, s.best) {
				continue
			}

			s.attempts++

			if s.fails(c.data) {
				return i
			}
		}

		return -1
	}

	results := make([]bool, len(batch))

	var g errgroup.Group

	g.SetLimit(s.opts.Workers)

	for i, c := range batch {
		if s.done() {
			break
		}

		if !Less(c.data, s.best) {
			continue
		}

		s.attempts++

		g.Go(func() error {
			results[i] = s.fails(c.data)

			return nil
		})
	}

	_ = g.Wait()

	for i, failed := range results {
		if failed {
			return i
		}
	}

	return -1
}

// =============================================================================
// Candidate generators
// =============================================================================

// trimCandidates drops trailing zeros. Zero-fill makes them redundant, but
// the candidate is still evaluated like any other.
func trimCandidates(best []byte, from, _ int) []candidate {
	if from > 0 {
		return nil
	}

	trimmed := bytes.TrimRight(best, "\x00")
	if len(trimmed) == len(best) {
		return nil
	}

	return []candidate{{pos: 0, data: clone(trimmed)}}
}

// truncateCandidates cuts the tail by len/2, len/4, ... 1 bytes, largest
// cut first. Positions are ignored: after any accepted cut the next batch
// starts over with sizes relative to the new length. The batch is always
// complete so that serial and parallel runs see the same candidates.
func truncateCandidates(best []byte, from, _ int) []candidate {
	if from > 0 {
		return nil
	}

	var out []candidate

	for chunk := len(best) / 2; chunk > 0; chunk /= 2 {
		out = append(out, candidate{pos: 0, data: clone(best[:len(best)-chunk])})
	}

	if len(best) == 1 {
		out = append(out, candidate{pos: 0, data: []byte{}})
	}

	return out
}

var deleteSizes = []int{8, 4, 2, 1}

// deleteCandidates removes interior chunks starting at each position.
func deleteCandidates(best []byte, from, limit int) []candidate {
	var out []candidate

	for pos := from; pos < len(best) && len(out) < limit; pos++ {
		for _, size := range deleteSizes {
			if pos+size >= len(best) {
				// Tail cuts are truncateCandidates' job.
				continue
			}

			data := make([]byte, 0, len(best)-size)
			data = append(data, best[:pos]...)
			data = append(data, best[pos+size:]...)

			out = append(out, candidate{pos: pos, data: data})
		}
	}

	return out
}

// simplifyCandidates lowers single bytes: to zero, to half, and by one.
func simplifyCandidates(best []byte, from, limit int) []candidate {
	var out []candidate

	for pos := from; pos < len(best) && len(out) < limit; pos++ {
		b := best[pos]
		if b == 0 {
			continue
		}

		for _, v := range smaller(b) {
			data := clone(best)
			data[pos] = v

			out = append(out, candidate{pos: pos, data: data})
		}
	}

	return out
}

// smaller returns distinct values below b in the order they are tried.
func smaller(b byte) []byte {
	out := []byte{0}

	if half := b / 2; half != 0 {
		out = append(out, half)
	}

	if dec := b - 1; dec != 0 && dec != b/2 {
		out = append(out, dec)
	}

	return out
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
