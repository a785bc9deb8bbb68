package gen_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/gen"
)

func Test_Slice_Is_Empty_When_Input_Is_Empty(t *testing.T) {
	t.Parallel()

	got := gen.Slice[uint32](gen.Uint32(), 10).Generate(driver.NewForced(nil))
	if len(got) != 0 {
		t.Errorf("Slice from empty input has len %d, want 0", len(got))
	}

	gotN := gen.SliceN[bool](gen.Bool(), 3, 5).Generate(driver.NewForced(nil))
	if len(gotN) != 3 {
		t.Errorf("SliceN(3,5) from empty input has len %d, want 3", len(gotN))
	}
}

func Test_Collections_Decode_Seed_Builder_Output_When_Round_Tripped(t *testing.T) {
	t.Parallel()

	seed := gen.NewSeedBuilder().
		Index(3).Uint16(1).Uint16(2).Uint16(65535).
		String("hello").
		Blob([]byte{0xde, 0xad}).
		Index(2).
		Bool(true).
		Bytes()

	d := driver.NewForced(seed)

	nums := gen.Slice[uint16](gen.Uint16(), 8).Generate(d)
	word := gen.String(10).Generate(d)
	blob := gen.Bytes(4).Generate(d)
	pick := gen.OneOf("x", "y", "z").Generate(d)
	flag := gen.Bool().Generate(d)

	if diff := cmp.Diff([]uint16{1, 2, 65535}, nums); diff != "" {
		t.Errorf("Slice mismatch (-want +got):\n%s", diff)
	}

	if word != "hello" {
		t.Errorf("String()=%q, want hello", word)
	}

	if diff := cmp.Diff([]byte{0xde, 0xad}, blob); diff != "" {
		t.Errorf("Bytes mismatch (-want +got):\n%s", diff)
	}

	if pick != "z" || !flag {
		t.Errorf("OneOf=%q Bool=%v, want z true", pick, flag)
	}

	if d.Exhausted() {
		t.Error("decoding consumed more bytes than the builder wrote")
	}
}

func Test_OneOfGen_Draws_From_Selected_Generator_When_Indexed(t *testing.T) {
	t.Parallel()

	g := gen.OneOfGen[int64](gen.Const[int64](-1), gen.Int64())

	seed := gen.NewSeedBuilder().Index(1).Int64(77).Bytes()
	if got := g.Generate(driver.NewForced(seed)); got != 77 {
		t.Errorf("OneOfGen=%d, want 77", got)
	}

	if got := g.Generate(driver.NewForced(nil)); got != -1 {
		t.Errorf("OneOfGen on empty input=%d, want -1", got)
	}
}

func Test_PairOf_And_Map_Compose_When_Nested(t *testing.T) {
	t.Parallel()

	g := gen.Map(gen.PairOf[uint8, int8](gen.Uint8(), gen.Int8()), func(p gen.Pair[uint8, int8]) int {
		return int(p.First) + int(p.Second)
	})

	if got := g.Generate(driver.NewForced([]byte{10, 0xfe})); got != 8 {
		t.Errorf("Map(PairOf)=%d, want 8", got)
	}
}

func Test_Filter_Rejects_Input_When_No_Value_Passes(t *testing.T) {
	t.Parallel()

	even := gen.Filter[uint8](gen.Uint8(), 3, func(v uint8) bool { return v%2 == 0 })

	if got := even.Generate(driver.NewForced([]byte{1, 3, 4})); got != 4 {
		t.Errorf("Filter=%d, want 4", got)
	}

	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, gen.ErrRejected) {
			t.Errorf("recovered %v, want ErrRejected", err)
		}
	}()

	even.Generate(driver.NewForced([]byte{1, 3, 5}))
	t.Error("Filter returned, want reject panic")
}

func Test_Index_Panics_When_N_Is_Not_Positive(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("Index(d, 0) did not panic")
		}
	}()

	gen.Index(driver.NewForced(nil), 0)
}
