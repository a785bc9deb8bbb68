package fuzzdrive_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/fuzzdrive"
	"github.com/calvinalkan/fuzzdrive/pkg/corpus"
	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/engine"
	"github.com/calvinalkan/fuzzdrive/pkg/gen"
)

// fakeTB records Fatalf instead of stopping the goroutine, so a failing
// Check can be inspected. Check returns right after Fatalf.
type fakeTB struct {
	testing.TB

	name string

	// fuzzing mimics a testing.F whose fuzz target is running: any call
	// that testing forbids there panics.
	fuzzing bool

	mu      sync.Mutex
	failed  bool
	skipped bool
	msg     string
	logs    []string
}

func (f *fakeTB) Helper() {
	if f.fuzzing {
		panic("f.Helper was called inside the fuzz target")
	}
}

func (f *fakeTB) Name() string             { return f.name }
func (f *fakeTB) Context() context.Context { return context.Background() }

func (f *fakeTB) Fatalf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failed = true
	f.msg = fmt.Sprintf(format, args...)
}

func (f *fakeTB) Logf(format string, args ...any) {
	f.Log(fmt.Sprintf(format, args...))
}

func (f *fakeTB) Skip(...any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.skipped = true
}

func (f *fakeTB) Log(args ...any) {
	if f.fuzzing {
		panic("f.Log was called inside the fuzz target")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.logs = append(f.logs, fmt.Sprint(args...))
}

func isEven() engine.Test {
	return engine.Predicate(gen.Uint32(), func(v uint32) bool { return v%2 == 0 })
}

func baseOptions(dir string) []fuzzdrive.Option {
	return []fuzzdrive.Option{
		fuzzdrive.WithWorkDir(dir),
		fuzzdrive.WithEnviron(map[string]string{"XDG_CONFIG_HOME": filepath.Join(dir, ".xdg")}),
		fuzzdrive.WithSeed(7),
	}
}

func Test_Check_Passes_When_Property_Holds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tb := &fakeTB{name: "Test_Holds"}

	fuzzdrive.Check(tb, engine.Property(gen.Bytes(16), func([]byte) error { return nil }), baseOptions(dir)...)

	require.False(t, tb.failed, "unexpected failure: %s", tb.msg)

	_, err := os.Stat(filepath.Join(dir, "testdata", "fuzzdrive"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "passing run should not create the corpus dir")
}

func Test_Check_Saves_Shrunk_Reproducer_When_Property_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tb := &fakeTB{name: "Test_Even/odd values"}

	fuzzdrive.Check(tb, isEven(), baseOptions(dir)...)

	require.True(t, tb.failed, "odd values must be found")
	assert.Contains(t, tb.msg, "value:     1")
	assert.Contains(t, tb.msg, "input:     [01 00 00 00] (4 bytes)")
	assert.Contains(t, tb.msg, "rerun:     FUZZDRIVE_SEED=0x7")

	want := filepath.Join(dir, "testdata", "fuzzdrive", "Test_Even_odd_values", corpus.FileName([]byte{1, 0, 0, 0}))
	assert.Contains(t, tb.msg, "saved:     "+want)

	saved, err := corpus.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0}, saved)
	assert.NotEmpty(t, tb.logs, "failure report should be logged through t.Log")
}

func Test_Check_Replays_Corpus_First_When_Reproducer_Exists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first := &fakeTB{name: "Test_Even"}
	fuzzdrive.Check(first, isEven(), baseOptions(dir)...)
	require.True(t, first.failed)

	second := &fakeTB{name: "Test_Even"}
	fuzzdrive.Check(second, isEven(), append(baseOptions(dir), fuzzdrive.WithSeed(99))...)

	require.True(t, second.failed)
	assert.Contains(t, second.msg, "source:    corpus entry 0")
	assert.NotContains(t, second.msg, "rerun:")
}

func Test_Check_Records_Failure_In_Index_When_Configured(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "failures.sqlite")

	err := os.WriteFile(filepath.Join(dir, ".fuzzdrive.json"), []byte(`{
		// shared across runs
		"index_path": "failures.sqlite",
	}`), 0o600)
	require.NoError(t, err)

	for range 2 {
		tb := &fakeTB{name: "Test_Even"}
		fuzzdrive.Check(tb, isEven(), baseOptions(dir)...)
		require.True(t, tb.failed)
	}

	idx, err := corpus.OpenIndex(context.Background(), indexPath)
	require.NoError(t, err)

	defer func() { _ = idx.Close() }()

	entries, err := idx.List(context.Background(), "Test_Even")
	require.NoError(t, err)
	require.Len(t, entries, 1, "same signature should be one entry")

	assert.Equal(t, 2, entries[0].Count)
	assert.Equal(t, "assertion", entries[0].Kind)
	assert.Equal(t, []byte{1, 0, 0, 0}, entries[0].Input)
	assert.Contains(t, entries[0].Location, "fuzzdrive_test.go", "location should point at the predicate")
}

func Test_Check_Does_Not_Persist_When_Disabled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tb := &fakeTB{name: "Test_Even"}

	fuzzdrive.Check(tb, isEven(), append(baseOptions(dir), fuzzdrive.WithoutPersist(), fuzzdrive.WithoutShrink())...)

	require.True(t, tb.failed)
	assert.Contains(t, tb.msg, "original:  not shrunk")
	assert.NotContains(t, tb.msg, "saved:")

	_, err := os.Stat(filepath.Join(dir, "testdata", "fuzzdrive"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func Test_Check_Fails_When_Config_Is_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tb := &fakeTB{name: "Test_Even"}

	fuzzdrive.Check(tb, isEven(), append(baseOptions(dir), fuzzdrive.WithWorkers(0))...)

	require.True(t, tb.failed)
	assert.Contains(t, tb.msg, "workers must be positive")
}

func Test_Check_Fails_With_Configuration_Error_When_Bound_Is_Unsatisfiable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tb := &fakeTB{name: "Test_Zero"}

	g := gen.NonZeroBetween(
		gen.Excluded(gen.MustNonZero[int8](-1)),
		gen.Excluded(gen.MustNonZero[int8](1)),
	)
	test := engine.Property(g, func(gen.NonZero[int8]) error { return nil })

	fuzzdrive.Check(tb, test, baseOptions(dir)...)

	require.True(t, tb.failed)
	assert.Contains(t, tb.msg, "fuzzdrive:")
	assert.Contains(t, tb.msg, "NonZero[int8]")
}

func Test_Replay_Reports_Failure_When_Input_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	pass := &fakeTB{name: "Test_Even"}
	fuzzdrive.Replay(pass, isEven(), []byte{2, 0, 0, 0}, baseOptions(dir)...)
	assert.False(t, pass.failed, "unexpected failure: %s", pass.msg)

	fail := &fakeTB{name: "Test_Even"}
	fuzzdrive.Replay(fail, isEven(), []byte{3, 0, 0, 0}, baseOptions(dir)...)
	require.True(t, fail.failed)
	assert.Contains(t, fail.msg, "input:     [01 00 00 00]")
}

func Test_Fuzz_Reports_Failure_On_Input_T_When_Fuzz_Input_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := &fakeTB{name: "FuzzEven", fuzzing: true}
	input := &fakeTB{name: "FuzzEven/seed#0"}

	fuzzdrive.RunFuzzOne(f, input, isEven(), []byte{3, 0, 0, 0}, baseOptions(dir)...)

	require.True(t, input.failed, "odd input must fail")
	assert.Contains(t, input.msg, "value:     3")
	assert.Contains(t, input.msg, "input:     [03 00 00 00] (4 bytes)")
	assert.Contains(t, input.msg, "original:  not shrunk")
	assert.NotEmpty(t, input.logs, "engine logs should go to the input's t")
	assert.False(t, f.failed)
}

func Test_Fuzz_Passes_When_Fuzz_Input_Holds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := &fakeTB{name: "FuzzEven", fuzzing: true}
	input := &fakeTB{name: "FuzzEven/seed#0"}

	fuzzdrive.RunFuzzOne(f, input, isEven(), []byte{4, 0, 0, 0}, baseOptions(dir)...)

	assert.False(t, input.failed, "unexpected failure: %s", input.msg)
	assert.False(t, input.skipped)
}

func Test_Fuzz_Skips_When_Fuzz_Input_Is_Rejected(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	f := &fakeTB{name: "FuzzEven", fuzzing: true}
	input := &fakeTB{name: "FuzzEven/seed#0"}

	odd := gen.Filter(gen.Uint32(), 1, func(v uint32) bool { return v%2 == 1 })
	test := engine.Property(odd, func(uint32) error { return nil })

	fuzzdrive.RunFuzzOne(f, input, test, []byte{4, 0, 0, 0}, baseOptions(dir)...)

	assert.False(t, input.failed, "unexpected failure: %s", input.msg)
	assert.True(t, input.skipped, "rejected input should be skipped")
}

// FuzzOdd_Seed_Fails only runs when re-executed by
// Test_Fuzz_Fails_With_Report_When_Seed_Corpus_Entry_Fails.
func FuzzOdd_Seed_Fails(f *testing.F) {
	dir := os.Getenv("FUZZDRIVE_TEST_FUZZ_HELPER_DIR")
	if dir == "" {
		f.Skip("helper for Test_Fuzz_Fails_With_Report_When_Seed_Corpus_Entry_Fails")
	}

	f.Add([]byte{3, 0, 0, 0})

	fuzzdrive.Fuzz(f, isEven(), baseOptions(dir)...)
}

func Test_Fuzz_Fails_With_Report_When_Seed_Corpus_Entry_Fails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cmd := exec.CommandContext(t.Context(), os.Args[0], "-test.run=^FuzzOdd_Seed_Fails$", "-test.v")
	cmd.Env = append(os.Environ(), "FUZZDRIVE_TEST_FUZZ_HELPER_DIR="+dir)

	out, err := cmd.CombinedOutput()
	require.Error(t, err, "failing seed must fail the fuzz test:\n%s", out)

	output := string(out)
	assert.Contains(t, output, "value:     3")
	assert.Contains(t, output, "input:     [03 00 00 00]")
	assert.NotContains(t, output, "inside the fuzz target")
	assert.NotContains(t, output, "panic:")
}

func FuzzSeedBuilder_Round_Trips(f *testing.F) {
	f.Add([]byte{3, 0, 0, 0, 9, 0})

	fuzzdrive.Fuzz(f, engine.Predicate(gen.PairOf(gen.Uint32(), gen.Int16()), func(p gen.Pair[uint32, int16]) bool {
		seed := gen.NewSeedBuilder().Uint32(p.First).Int16(p.Second).Bytes()
		got := gen.PairOf(gen.Uint32(), gen.Int16()).Generate(driver.NewForced(seed))

		return got == p
	}))
}
