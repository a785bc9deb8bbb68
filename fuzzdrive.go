// Package fuzzdrive runs byte-driven property tests from go test.
//
// A test is an [engine.Test]: it pulls typed values from a driver through
// generators and fails by returning an error or panicking. [Check]
// explores it with random inputs, shrinks the first failure, saves the
// reproducer to the corpus directory and fails t with a report. Saved
// reproducers are replayed first on every later run, so a fixed bug stays
// fixed.
//
//	func Test_Odd(t *testing.T) {
//	    fuzzdrive.Check(t, engine.Predicate(gen.Uint32(), func(v uint32) bool {
//	        return v%2 == 0
//	    }))
//	}
//
// Settings come from .fuzzdrive.json, the global config and FUZZDRIVE_*
// environment variables; options passed to Check win over all of them.
package fuzzdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/calvinalkan/fuzzdrive/internal/config"
	"github.com/calvinalkan/fuzzdrive/pkg/corpus"
	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/engine"
)

// Option adjusts a single Check, Replay or Fuzz call.
type Option func(*settings)

type settings struct {
	workDir   string
	env       map[string]string
	overrides config.Layer
	logger    *slog.Logger
	persist   bool
}

// WithIterations sets the number of random inputs.
func WithIterations(n int) Option {
	return func(s *settings) { s.overrides.Iterations = &n }
}

// WithSeed fixes the base seed. Without it a configured seed is used, or
// one derived from the clock.
func WithSeed(seed uint64) Option {
	return func(s *settings) { s.overrides.Seed = &seed }
}

// WithWorkers runs iterations and shrink candidates on n goroutines.
func WithWorkers(n int) Option {
	return func(s *settings) { s.overrides.Workers = &n }
}

// WithMaxLen caps the bytes one run can consume.
func WithMaxLen(n int) Option {
	return func(s *settings) { s.overrides.MaxLen = &n }
}

// WithTimeout bounds one test invocation.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		v := config.Duration(d)
		s.overrides.Timeout = &v
	}
}

// WithoutShrink reports failures as first found.
func WithoutShrink() Option {
	return func(s *settings) {
		off := false
		s.overrides.Shrink = &off
	}
}

// WithMode selects the driver mode for random inputs.
func WithMode(mode driver.Mode) Option {
	return func(s *settings) {
		m := mode.String()
		s.overrides.Mode = &m
	}
}

// WithWorkDir resolves config files and the corpus directory relative to
// dir instead of the current directory.
func WithWorkDir(dir string) Option {
	return func(s *settings) { s.workDir = dir }
}

// WithEnviron replaces the process environment for config lookup.
func WithEnviron(env map[string]string) Option {
	return func(s *settings) { s.env = env }
}

// WithLogger sends engine progress to logger instead of t.Log.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithoutPersist keeps failures out of the corpus and the failure index.
func WithoutPersist() Option {
	return func(s *settings) { s.persist = false }
}

// session is one resolved call: configuration, engine options and where
// failures go.
type session struct {
	cfg    config.Config
	opts   engine.Options
	target string
	save   bool

	// ownLogger is set when the caller supplied the logger, so it is kept
	// for every fuzz input instead of being rebuilt around t.
	ownLogger bool
}

func newSession(t testing.TB, opts []Option) (*session, error) {
	s := settings{persist: true}
	for _, opt := range opts {
		opt(&s)
	}

	if s.env == nil {
		s.env = config.EnvMap(os.Environ())
	}

	cfg, err := config.Load(config.LoadInput{WorkDir: s.workDir, Env: s.env, Overrides: s.overrides})
	if err != nil {
		return nil, err
	}

	logger := s.logger
	if logger == nil {
		logger = tbLogger(t)
	}

	seed := uint64(time.Now().UnixNano()) //nolint:gosec // clock bits, sign is irrelevant
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	return &session{
		cfg: cfg,
		opts: engine.Options{
			Iterations:     cfg.Iterations,
			Seed:           seed,
			MaxLen:         cfg.MaxLen,
			Workers:        cfg.Workers,
			Timeout:        cfg.Timeout.Std(),
			Shrink:         cfg.Shrink,
			ShrinkAttempts: cfg.ShrinkAttempts,
			ShrinkTime:     cfg.ShrinkTime.Std(),
			Logger:         logger,
		},
		target:    corpus.TargetName(t.Name()),
		save:      s.persist,
		ownLogger: s.logger != nil,
	}, nil
}

// loadCorpus returns the stored inputs for the session's target. A missing
// corpus directory is an empty corpus and is not created.
func (s *session) loadCorpus() ([][]byte, error) {
	_, err := os.Stat(s.cfg.CorpusDirAbs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	dir, err := corpus.Open(s.cfg.CorpusDirAbs)
	if err != nil {
		return nil, err
	}

	return dir.Load(s.target)
}

// persist writes the reproducer to the corpus and records the failure in
// the index if one is configured. Returns the corpus file path.
func (s *session) persist(ctx context.Context, f *engine.TestFailure) (string, error) {
	dir, err := corpus.Open(s.cfg.CorpusDirAbs)
	if err != nil {
		return "", err
	}

	path, err := dir.Add(s.target, f.Input)
	if err != nil {
		return "", err
	}

	if s.cfg.IndexAbs == "" {
		return path, nil
	}

	idx, err := corpus.OpenIndex(ctx, s.cfg.IndexAbs)
	if err != nil {
		return path, err
	}

	defer func() { _ = idx.Close() }()

	_, err = idx.Record(ctx, corpus.Entry{
		Target:   s.target,
		Kind:     f.Signature.Kind.String(),
		Location: f.Signature.Location.String(),
		Message:  f.Signature.Message,
		Input:    f.Input,
		Path:     path,
		Seed:     f.Seed,
		LastSeen: time.Now(),
	})

	return path, err
}

// fail reports a failure on t, saving it first when the session persists.
func (s *session) fail(t testing.TB, f *engine.TestFailure) {
	t.Helper()

	msg := f.Error()

	if s.save {
		path, err := s.persist(t.Context(), f)
		if path != "" {
			msg += "\n  saved:     " + path
		}

		if err != nil {
			msg += "\n  warning:   " + err.Error()
		}
	}

	if !f.Corpus {
		msg += fmt.Sprintf("\n  rerun:     FUZZDRIVE_SEED=%#x", s.opts.Seed)
	}

	t.Fatalf("%s", msg)
}

// Check runs test against the stored corpus and then random inputs. The
// first failure is shrunk, saved and reported through t.Fatalf.
func Check(t testing.TB, test engine.Test, opts ...Option) {
	t.Helper()

	s, err := newSession(t, opts)
	if err != nil {
		t.Fatalf("fuzzdrive: %v", err)

		return
	}

	s.opts.Corpus, err = s.loadCorpus()
	if err != nil {
		t.Fatalf("fuzzdrive: loading corpus: %v", err)

		return
	}

	eng := engine.NewRandom(s.opts)
	eng.SetDriverMode(s.cfg.DriverMode)

	res, err := eng.Run(t.Context(), test)
	if err != nil {
		t.Fatalf("fuzzdrive: %v", err)

		return
	}

	if res.Failure != nil {
		s.fail(t, res.Failure)

		return
	}

	if res.Rejected > 0 && res.Rejected == res.Runs {
		t.Logf("fuzzdrive: every one of %d inputs was rejected", res.Runs)
	}
}

// Replay runs test once on data in Forced mode, as a regression check for
// a known input.
func Replay(t testing.TB, test engine.Test, data []byte, opts ...Option) {
	t.Helper()

	s, err := newSession(t, opts)
	if err != nil {
		t.Fatalf("fuzzdrive: %v", err)

		return
	}

	res, err := engine.NewReplay(data, s.opts).Run(t.Context(), test)
	if err != nil {
		t.Fatalf("fuzzdrive: %v", err)

		return
	}

	if res.Failure != nil {
		t.Fatalf("%s", res.Failure.Error())
	}
}

// Fuzz hands test to the native fuzzer. The stored corpus seeds f, and
// each fuzz input is replayed once in Forced mode without shrinking; the
// native fuzzer minimizes on its own.
func Fuzz(f *testing.F, test engine.Test, opts ...Option) {
	f.Helper()

	s, err := newSession(f, append(opts, WithoutShrink()))
	if err != nil {
		f.Fatalf("fuzzdrive: %v", err)

		return
	}

	inputs, err := s.loadCorpus()
	if err != nil {
		f.Fatalf("fuzzdrive: loading corpus: %v", err)

		return
	}

	for _, in := range inputs {
		f.Add(in)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzOne(t, s, test, data)
	})
}

// fuzzOne replays one fuzz input. Logs go to t: the testing package
// forbids calls on f once the fuzz target runs.
func fuzzOne(t testing.TB, s *session, test engine.Test, data []byte) {
	t.Helper()

	opts := s.opts
	if !s.ownLogger {
		opts.Logger = tbLogger(t)
	}

	res, err := engine.NewReplay(data, opts).Run(t.Context(), test)
	if err != nil {
		t.Fatalf("fuzzdrive: %v", err)

		return
	}

	if res.Failure != nil {
		t.Fatalf("%s", res.Failure.Error())

		return
	}

	if res.Rejected > 0 {
		t.Skip("input rejected")
	}
}

func tbLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// tbWriter feeds log lines into t.Log.
type tbWriter struct {
	t testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))

	return len(p), nil
}
