package gen_test

import (
	"math"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/leanovate/gopter"
	pgen "github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/gen"
)

func Test_Bounded_Folds_250_To_10_When_Range_Is_10_To_20(t *testing.T) {
	t.Parallel()

	got := gen.Bounded(uint8(250), gen.Included[uint8](10), gen.Included[uint8](20))
	if got != 10 {
		t.Errorf("Bounded(250, 10..=20)=%d, want 10", got)
	}
}

// The modulus is the range itself, so the upper bound is never produced
// unless lower == upper.
func Test_Bounded_Never_Reaches_Upper_When_Range_Is_Non_Zero(t *testing.T) {
	t.Parallel()

	seen := map[uint8]bool{}

	for x := range 256 {
		seen[gen.Bounded(uint8(x), gen.Included[uint8](10), gen.Included[uint8](20))] = true
	}

	for v := uint8(10); v < 20; v++ {
		if !seen[v] {
			t.Errorf("value %d never produced", v)
		}
	}

	if seen[20] {
		t.Error("upper bound 20 produced, want unreachable")
	}

	if len(seen) != 10 {
		t.Errorf("produced %d distinct values, want 10", len(seen))
	}
}

func Test_Bounded_Returns_Lower_When_Range_Is_Zero(t *testing.T) {
	t.Parallel()

	for x := range 256 {
		got := gen.Bounded(uint8(x), gen.Included[uint8](7), gen.Included[uint8](7))
		if got != 7 {
			t.Fatalf("Bounded(%d, 7..=7)=%d, want 7", x, got)
		}
	}
}

func Test_Bounded_Swaps_Bounds_When_Start_Above_End(t *testing.T) {
	t.Parallel()

	for x := range 256 {
		got := gen.Bounded(int8(x), gen.Included[int8](20), gen.Included[int8](-5))
		if got < -5 || got > 20 {
			t.Fatalf("Bounded(%d, 20..=-5)=%d, want within [-5, 20]", int8(x), got)
		}
	}

	lo, hi := gen.Resolve(gen.Included[uint16](900), gen.Excluded[uint16](100))
	if lo != 99 || hi != 900 {
		t.Errorf("Resolve(900, ..100)=(%d,%d), want (99,900)", lo, hi)
	}
}

func Test_Resolve_Saturates_When_Excluded_Value_Is_Domain_Edge(t *testing.T) {
	t.Parallel()

	lo, hi := gen.Resolve(gen.Excluded[uint8](math.MaxUint8), gen.Unbounded[uint8]())
	if lo != math.MaxUint8 || hi != math.MaxUint8 {
		t.Errorf("Resolve(Excluded(255), Unbounded)=(%d,%d), want (255,255)", lo, hi)
	}

	lo8, hi8 := gen.Resolve(gen.Unbounded[int8](), gen.Excluded[int8](math.MinInt8))
	if lo8 != math.MinInt8 || hi8 != math.MinInt8 {
		t.Errorf("Resolve(Unbounded, Excluded(-128))=(%d,%d), want (-128,-128)", lo8, hi8)
	}

	lo64, hi64 := gen.Resolve(gen.Unbounded[int64](), gen.Unbounded[int64]())
	if lo64 != math.MinInt64 || hi64 != math.MaxInt64 {
		t.Errorf("Resolve(Unbounded, Unbounded)=(%d,%d), want full int64 domain", lo64, hi64)
	}
}

func Test_Bounded_Handles_Full_Signed_Domain_When_Unbounded(t *testing.T) {
	t.Parallel()

	for x := range 256 {
		got := gen.Bounded(int8(x), gen.Unbounded[int8](), gen.Unbounded[int8]())
		if got == math.MaxInt8 {
			t.Fatalf("Bounded(%d, full)=%d, upper should be unreachable", int8(x), got)
		}
	}

	if got := gen.Bounded(int64(-1), gen.Included[int64](-10), gen.Included[int64](10)); got < -10 || got >= 10 {
		t.Errorf("Bounded(-1, -10..=10)=%d, want in [-10, 10)", got)
	}
}

func Test_Range_Generator_Stays_In_Bounds_When_Driven_Randomly(t *testing.T) {
	t.Parallel()

	g := gen.Range[int32](-1000, 1000)

	for seed := range uint64(500) {
		v := g.Generate(driver.NewDirect(seed))
		if v < -1000 || v > 1000 {
			t.Fatalf("seed %d: Range(-1000,1000)=%d", seed, v)
		}
	}

	atLeast := gen.AtLeast[uint16](60000)
	atMost := gen.AtMost[int16](-30000)

	for seed := range uint64(500) {
		if v := atLeast.Generate(driver.NewDirect(seed)); v < 60000 {
			t.Fatalf("AtLeast(60000)=%d", v)
		}

		if v := atMost.Generate(driver.NewDirect(seed)); v > -30000 {
			t.Fatalf("AtMost(-30000)=%d", v)
		}
	}
}

func Test_BoundedBy_Decorates_Custom_Base_When_Given(t *testing.T) {
	t.Parallel()

	g := gen.BoundedBy[uint8](gen.Const[uint8](250), gen.Included[uint8](10), gen.Included[uint8](20))

	if got := g.Generate(driver.NewForced(nil)); got != 10 {
		t.Errorf("BoundedBy(Const(250), 10..=20)=%d, want 10", got)
	}

	var zero gen.BoundedGenerator[uint8]

	zero.Start, zero.End = gen.Included[uint8](3), gen.Included[uint8](3)
	if got := zero.Generate(driver.NewForced([]byte{200})); got != 3 {
		t.Errorf("zero-base BoundedGenerator=%d, want 3", got)
	}
}

func boundOf[T gen.Integer](kind uint8, v T) gen.Bound[T] {
	switch kind % 3 {
	case 0:
		return gen.Included(v)
	case 1:
		return gen.Excluded(v)
	default:
		return gen.Unbounded[T]()
	}
}

func Test_Bounded_Properties_Hold_When_Checked_With_Gopter(t *testing.T) {
	t.Parallel()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 2000

	properties := gopter.NewProperties(params)

	properties.Property("uint8 result within normalized interval", prop.ForAll(
		func(x, a, b, ka, kb uint8) bool {
			start, end := boundOf(ka, a), boundOf(kb, b)
			lo, hi := gen.Resolve(start, end)
			v := gen.Bounded(x, start, end)

			return lo <= v && v <= hi && (v < hi || lo == hi)
		},
		pgen.UInt8(), pgen.UInt8(), pgen.UInt8(), pgen.UInt8(), pgen.UInt8(),
	))

	properties.Property("int32 result within normalized interval", prop.ForAll(
		func(x, a, b int32) bool {
			lo, hi := min(a, b), max(a, b)
			v := gen.Bounded(x, gen.Included(a), gen.Included(b))

			return lo <= v && v <= hi
		},
		pgen.Int32(), pgen.Int32(), pgen.Int32(),
	))

	properties.Property("int64 result within normalized interval", prop.ForAll(
		func(x, a, b int64) bool {
			lo, hi := min(a, b), max(a, b)
			v := gen.Bounded(x, gen.Included(a), gen.Included(b))

			return lo <= v && v <= hi
		},
		pgen.Int64(), pgen.Int64(), pgen.Int64(),
	))

	properties.Property("uint64 swapped bounds give the same result", prop.ForAll(
		func(x, a, b uint64) bool {
			return gen.Bounded(x, gen.Included(a), gen.Included(b)) ==
				gen.Bounded(x, gen.Included(b), gen.Included(a))
		},
		pgen.UInt64(), pgen.UInt64(), pgen.UInt64(),
	))

	properties.TestingRun(t)
}

type boundedInput struct {
	X      int64
	Start  int64
	End    int64
	KStart uint8
	KEnd   uint8
}

func FuzzBounded_Stays_In_Interval(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0xfa, 0, 0, 0, 0, 0, 0, 0, 10})

	f.Fuzz(func(t *testing.T, data []byte) {
		var in boundedInput

		if err := fuzz.NewConsumer(data).GenerateStruct(&in); err != nil {
			return
		}

		start, end := boundOf(in.KStart, in.Start), boundOf(in.KEnd, in.End)
		lo, hi := gen.Resolve(start, end)

		v := gen.Bounded(in.X, start, end)
		if v < lo || v > hi {
			t.Fatalf("Bounded(%d, %v, %v)=%d outside [%d, %d]", in.X, start, end, v, lo, hi)
		}

		if lo != hi && v == hi {
			t.Fatalf("Bounded(%d, %v, %v)=%d reached upper bound", in.X, start, end, v)
		}
	})
}
