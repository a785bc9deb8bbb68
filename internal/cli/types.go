package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
	"github.com/calvinalkan/fuzzdrive/pkg/gen"
)

// Lengths used by the "bytes" and "string" types. They match what
// gen.Bytes and gen.String decode with these maxLen arguments.
const (
	maxBlobLen   = 256
	maxStringLen = 64
)

var (
	errUnknownType = errors.New("unknown type")
	errBadValue    = errors.New("invalid value")
)

// codec decodes one value of a named type from a driver and encodes a
// textual value back into the bytes that decode to it.
type codec struct {
	name   string
	decode func(d *driver.Driver) string
	encode func(b *gen.SeedBuilder, s string) error
}

var codecs = map[string]codec{}

func register(c codec) {
	codecs[c.name] = c
}

func init() {
	register(intCodec[uint8]("u8"))
	register(intCodec[uint16]("u16"))
	register(intCodec[uint32]("u32"))
	register(intCodec[uint64]("u64"))
	register(intCodec[uint]("uint"))
	register(intCodec[int8]("i8"))
	register(intCodec[int16]("i16"))
	register(intCodec[int32]("i32"))
	register(intCodec[int64]("i64"))
	register(intCodec[int]("int"))

	register(nonZeroCodec[uint8]("nz-u8"))
	register(nonZeroCodec[uint16]("nz-u16"))
	register(nonZeroCodec[uint32]("nz-u32"))
	register(nonZeroCodec[uint64]("nz-u64"))
	register(nonZeroCodec[int8]("nz-i8"))
	register(nonZeroCodec[int16]("nz-i16"))
	register(nonZeroCodec[int32]("nz-i32"))
	register(nonZeroCodec[int64]("nz-i64"))

	register(codec{
		name: "f32",
		decode: func(d *driver.Driver) string {
			return strconv.FormatFloat(float64(gen.Float32().Generate(d)), 'g', -1, 32)
		},
		encode: func(b *gen.SeedBuilder, s string) error {
			f, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return fmt.Errorf("%w: %q is not a f32", errBadValue, s)
			}

			b.Uint32(math.Float32bits(float32(f)))

			return nil
		},
	})
	register(codec{
		name: "f64",
		decode: func(d *driver.Driver) string {
			return strconv.FormatFloat(gen.Float64().Generate(d), 'g', -1, 64)
		},
		encode: func(b *gen.SeedBuilder, s string) error {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("%w: %q is not a f64", errBadValue, s)
			}

			b.Uint64(math.Float64bits(f))

			return nil
		},
	})
	register(codec{
		name: "bool",
		decode: func(d *driver.Driver) string {
			return strconv.FormatBool(gen.Bool().Generate(d))
		},
		encode: func(b *gen.SeedBuilder, s string) error {
			v, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("%w: %q is not a bool", errBadValue, s)
			}

			b.Bool(v)

			return nil
		},
	})
	register(codec{
		name: "bytes",
		decode: func(d *driver.Driver) string {
			return hex.EncodeToString(gen.Bytes(maxBlobLen).Generate(d))
		},
		encode: func(b *gen.SeedBuilder, s string) error {
			raw, err := hex.DecodeString(s)
			if err != nil {
				return fmt.Errorf("%w: %q is not hex", errBadValue, s)
			}

			if len(raw) > maxBlobLen {
				return fmt.Errorf("%w: bytes longer than %d", errBadValue, maxBlobLen)
			}

			b.Blob(raw)

			return nil
		},
	})
	register(codec{
		name: "string",
		decode: func(d *driver.Driver) string {
			return strconv.Quote(gen.String(maxStringLen).Generate(d))
		},
		encode: func(b *gen.SeedBuilder, s string) error {
			if len(s) > maxStringLen {
				return fmt.Errorf("%w: string longer than %d", errBadValue, maxStringLen)
			}

			if strings.IndexFunc(s, func(r rune) bool { return r < 'a' || r > 'z' }) >= 0 {
				return fmt.Errorf("%w: %q has characters outside a-z", errBadValue, s)
			}

			b.String(s)

			return nil
		},
	})
}

func intCodec[T gen.Integer](name string) codec {
	return codec{
		name: name,
		decode: func(d *driver.Driver) string {
			return fmt.Sprint(gen.Int[T]().Generate(d))
		},
		encode: func(b *gen.SeedBuilder, s string) error {
			v, err := parseInt[T](s)
			if err != nil {
				return fmt.Errorf("%w: %q is not a %s", errBadValue, s, name)
			}

			gen.Put(b, v)

			return nil
		},
	}
}

// nonZeroCodec encodes v as the raw value v-1, which the default
// non-zero generator folds back to v. Values it cannot produce (negative
// values and the type's maximum) are rejected.
func nonZeroCodec[T gen.Integer](name string) codec {
	return codec{
		name: name,
		decode: func(d *driver.Driver) string {
			return gen.NonZeroOf[T]().Generate(d).String()
		},
		encode: func(b *gen.SeedBuilder, s string) error {
			v, err := parseInt[T](s)
			if err != nil {
				return fmt.Errorf("%w: %q is not a %s", errBadValue, s, name)
			}

			raw := v - 1
			if v == 0 || gen.Bounded(raw, gen.Included[T](1), gen.Unbounded[T]()) != v {
				return fmt.Errorf("%w: %s cannot decode to %s", errBadValue, name, s)
			}

			gen.Put(b, raw)

			return nil
		},
	}
}

func parseInt[T gen.Integer](s string) (T, error) {
	var zero T

	if ^zero < 0 {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil || int64(T(v)) != v {
			return zero, errBadValue
		}

		return T(v), nil
	}

	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil || uint64(T(v)) != v {
		return zero, errBadValue
	}

	return T(v), nil
}

// parseTypes splits a comma-separated type list.
func parseTypes(list string) ([]codec, error) {
	var out []codec

	for name := range strings.SplitSeq(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		c, ok := codecs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %s)", errUnknownType, name, strings.Join(typeNames(), ", "))
		}

		out = append(out, c)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty type list", errUnknownType)
	}

	return out, nil
}

func typeNames() []string {
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// decodeValues replays data through a Forced-mode driver, one codec at a
// time. The returned driver reports how much of data was consumed.
func decodeValues(types []codec, data []byte) ([]string, *driver.Driver) {
	d := driver.NewForced(data)

	out := make([]string, len(types))
	for i, c := range types {
		out[i] = c.decode(d)
	}

	return out, d
}

// encodeValues builds the bytes that decodeValues turns back into values.
func encodeValues(types []codec, values []string) ([]byte, error) {
	if len(values) != len(types) {
		return nil, fmt.Errorf("%w: got %d values for %d types", errBadValue, len(values), len(types))
	}

	b := gen.NewSeedBuilder()

	for i, c := range types {
		err := c.encode(b, values[i])
		if err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}
