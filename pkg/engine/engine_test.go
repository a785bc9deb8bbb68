package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/engine"
	"github.com/calvinalkan/fuzzdrive/pkg/gen"
)

func evenUint32() engine.Test {
	return engine.Predicate(gen.Uint32(), func(v uint32) bool { return v%2 == 0 })
}

func Test_ReplayEngine_Shrinks_Odd_Uint32_To_One_When_Started_From_Three(t *testing.T) {
	t.Parallel()

	e := engine.NewReplay([]byte{0x03, 0, 0, 0}, engine.DefaultOptions())

	res, err := e.Run(context.Background(), evenUint32())
	require.NoError(t, err, "Run should not fail for a plain assertion")
	require.NotNil(t, res.Failure, "odd value should fail")

	f := res.Failure
	assert.Equal(t, []byte{0x01, 0, 0, 0}, f.Input, "minimized reproducer")
	assert.Equal(t, []byte{0x03, 0, 0, 0}, f.Original, "original input")
	assert.Equal(t, "1", f.Value, "decoded minimized value")
	assert.Equal(t, engine.KindAssertion, f.Signature.Kind)
	assert.True(t, f.Shrunk, "failure should be shrunk")
	assert.Equal(t, engine.StateReported, res.State)
	assert.Equal(t, engine.StateReported, e.State())
	assert.True(t, strings.HasSuffix(f.Signature.Location.File, "engine_test.go"),
		"location should point at the predicate, got %s", f.Signature.Location)
	assert.Contains(t, f.Error(), "01 00 00 00", "report should show the reproducer in hex")
}

func Test_ReplayEngine_Passes_When_Input_Satisfies_Test(t *testing.T) {
	t.Parallel()

	e := engine.NewReplay([]byte{0x02, 0, 0, 0}, engine.DefaultOptions())

	res, err := e.Run(context.Background(), evenUint32())
	require.NoError(t, err)

	assert.True(t, res.Passed())
	assert.Equal(t, engine.StatePassed, res.State)
	assert.Equal(t, 1, res.Runs)
}

func Test_ReplayEngine_Tops_Up_Randomly_When_Mode_Is_Direct(t *testing.T) {
	t.Parallel()

	test := engine.Predicate(gen.Uint64(), func(v uint64) bool { return v == 0 })

	forced := engine.NewReplay(nil, engine.DefaultOptions())

	res, err := forced.Run(context.Background(), test)
	require.NoError(t, err)
	assert.True(t, res.Passed(), "Forced mode should zero-fill an empty input")

	opts := engine.DefaultOptions()
	opts.Seed = 7
	opts.Shrink = false

	direct := engine.NewReplay(nil, opts)
	direct.SetDriverMode(driver.ModeDirect)

	res, err = direct.Run(context.Background(), test)
	require.NoError(t, err)
	require.NotNil(t, res.Failure, "Direct mode should top up with random bytes")
	assert.Len(t, res.Failure.Input, 8, "reproducer should hold the topped-up bytes")

	replay := engine.NewReplay(res.Failure.Input, engine.DefaultOptions())

	again, err := replay.Run(context.Background(), test)
	require.NoError(t, err)
	assert.NotNil(t, again.Failure, "reproducer should fail again in Forced mode")
}

func Test_RandomEngine_Finds_And_Shrinks_Failure_When_Values_Are_Large(t *testing.T) {
	t.Parallel()

	opts := engine.DefaultOptions()
	opts.Iterations = 1000
	opts.Seed = 1

	test := engine.Predicate(gen.Uint8(), func(v uint8) bool { return v < 200 })

	res, err := engine.NewRandom(opts).Run(context.Background(), test)
	require.NoError(t, err)
	require.NotNil(t, res.Failure, "random exploration should find a value >= 200")

	assert.Equal(t, []byte{200}, res.Failure.Input, "smallest failing byte")
	assert.Equal(t, "200", res.Failure.Value)
	assert.False(t, res.Failure.Corpus)
	assert.Positive(t, res.Runs)
}

func Test_RandomEngine_Reports_Same_Iteration_When_Workers_Vary(t *testing.T) {
	t.Parallel()

	test := engine.Predicate(gen.Uint8(), func(v uint8) bool { return v < 250 })

	run := func(workers int) *engine.TestFailure {
		opts := engine.DefaultOptions()
		opts.Seed = 42
		opts.Iterations = 2000
		opts.Workers = workers
		opts.Shrink = false

		res, err := engine.NewRandom(opts).Run(context.Background(), test)
		require.NoError(t, err)
		require.NotNil(t, res.Failure, "workers=%d should find a failure", workers)

		return res.Failure
	}

	serial, parallel := run(1), run(4)

	assert.Equal(t, serial.Iteration, parallel.Iteration)
	assert.Equal(t, serial.Seed, parallel.Seed)
	assert.Equal(t, serial.Input, parallel.Input)
}

func Test_RandomEngine_Replays_Corpus_First_When_Corpus_Is_Given(t *testing.T) {
	t.Parallel()

	opts := engine.DefaultOptions()
	opts.Shrink = false
	opts.Corpus = [][]byte{{0x10}, {0xff}}

	test := engine.Predicate(gen.Uint8(), func(v uint8) bool { return v != 0xff })

	res, err := engine.NewRandom(opts).Run(context.Background(), test)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)

	assert.True(t, res.Failure.Corpus, "failure should come from the corpus")
	assert.Equal(t, 1, res.Failure.Iteration)
	assert.Equal(t, []byte{0xff}, res.Failure.Input)
	assert.False(t, res.Failure.Shrunk)
	assert.Equal(t, 2, res.Runs)
}

func Test_Engine_Classifies_Panic_With_Location_When_Test_Panics(t *testing.T) {
	t.Parallel()

	test := engine.Property(gen.Uint8(), func(v uint8) error {
		if v > 10 {
			panic("value too large")
		}

		return nil
	})

	res, err := engine.NewReplay([]byte{77}, engine.DefaultOptions()).Run(context.Background(), test)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)

	sig := res.Failure.Signature
	assert.Equal(t, engine.KindPanic, sig.Kind)
	assert.Equal(t, "value too large", sig.Message)
	assert.True(t, strings.HasSuffix(sig.Location.File, "engine_test.go"), "panic site, got %s", sig.Location)
	assert.Contains(t, sig.Location.Function, "Test_Engine_Classifies_Panic")
	assert.Equal(t, []byte{11}, res.Failure.Input, "smallest value above 10")
}

func Test_Engine_Discards_Candidates_When_Signature_Differs(t *testing.T) {
	t.Parallel()

	test := engine.Property(gen.Uint8(), func(v uint8) error {
		if v >= 100 {
			panic("big")
		}

		if v >= 50 {
			return errors.New("medium")
		}

		return nil
	})

	res, err := engine.NewReplay([]byte{200}, engine.DefaultOptions()).Run(context.Background(), test)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)

	assert.Equal(t, engine.KindPanic, res.Failure.Signature.Kind, "shrinking must keep the original signature")
	assert.Equal(t, []byte{100}, res.Failure.Input)
	assert.GreaterOrEqual(t, res.Failure.Discarded, 1, "assertion failures should be discarded")
}

func Test_Engine_Reports_Timeout_When_Test_Blocks(t *testing.T) {
	t.Parallel()

	test := engine.PropertyContext(gen.Uint8(), func(ctx context.Context, v uint8) error {
		if v%2 == 1 {
			<-ctx.Done()
		}

		return nil
	})

	opts := engine.DefaultOptions()
	opts.Timeout = 20 * time.Millisecond

	res, err := engine.NewReplay([]byte{3}, opts).Run(context.Background(), test)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)

	assert.Equal(t, engine.KindTimeout, res.Failure.Signature.Kind)
	assert.Equal(t, []byte{1}, res.Failure.Input, "shrinking should hold the timeout signature")
}

func Test_Engine_Aborts_With_Configuration_Error_When_Bound_Is_Unsatisfiable(t *testing.T) {
	t.Parallel()

	g := gen.NonZeroBetween(
		gen.Excluded(gen.MustNonZero[int8](-1)),
		gen.Excluded(gen.MustNonZero[int8](1)),
	)
	test := engine.Property(g, func(gen.NonZero[int8]) error { return nil })

	opts := engine.DefaultOptions()
	opts.Iterations = 10

	res, err := engine.NewRandom(opts).Run(context.Background(), test)
	require.ErrorIs(t, err, engine.ErrConfiguration)
	require.ErrorIs(t, err, gen.ErrUnsatisfiableBound)
	assert.Nil(t, res.Failure, "configuration errors are never reported as failures")
	assert.Contains(t, err.Error(), "NonZero[int8]")
}

func Test_Engine_Skips_Input_When_Generator_Rejects(t *testing.T) {
	t.Parallel()

	never := gen.Filter(gen.Uint8(), 2, func(uint8) bool { return false })
	test := engine.Property(never, func(uint8) error { return errors.New("unreachable") })

	opts := engine.DefaultOptions()
	opts.Iterations = 50

	res, err := engine.NewRandom(opts).Run(context.Background(), test)
	require.NoError(t, err)

	assert.True(t, res.Passed())
	assert.Equal(t, 50, res.Runs)
	assert.Equal(t, 50, res.Rejected)
}

func Test_RandomEngine_Returns_Context_Error_When_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.NewRandom(engine.DefaultOptions()).Run(ctx, evenUint32())
	require.ErrorIs(t, err, context.Canceled)
}

func Test_Engine_Skips_Shrinking_When_Disabled(t *testing.T) {
	t.Parallel()

	opts := engine.DefaultOptions()
	opts.Shrink = false

	res, err := engine.NewReplay([]byte{0x07, 0, 0, 0}, opts).Run(context.Background(), evenUint32())
	require.NoError(t, err)
	require.NotNil(t, res.Failure)

	assert.False(t, res.Failure.Shrunk)
	assert.Equal(t, []byte{0x07, 0, 0, 0}, res.Failure.Input)
	assert.Contains(t, res.Failure.Error(), "not shrunk")
}
