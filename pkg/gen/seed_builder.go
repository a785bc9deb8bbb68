package gen

import (
	"encoding/binary"
	"fmt"
)

// SeedBuilder builds the exact bytes the decoders in this package consume,
// so tests and tools can write a wanted value instead of hand-writing raw
// byte sequences.
//
// Calls must follow the same order as the generator calls they target:
//
//	seed := gen.NewSeedBuilder().Uint32(3).Bool(true).Bytes()
//	// gen.Uint32() then gen.Bool() decode 3, true from seed.
type SeedBuilder struct {
	data []byte
}

// NewSeedBuilder creates an empty builder.
func NewSeedBuilder() *SeedBuilder {
	return &SeedBuilder{}
}

// Bytes returns a copy of the built seed.
func (b *SeedBuilder) Bytes() []byte {
	return append([]byte(nil), b.data...)
}

// Raw appends raw bytes unchanged.
func (b *SeedBuilder) Raw(raw ...byte) *SeedBuilder {
	b.data = append(b.data, raw...)

	return b
}

// Uint8 appends the byte that [Uint8] decodes as v.
func (b *SeedBuilder) Uint8(v uint8) *SeedBuilder { return Put(b, v) }

// Uint16 appends the bytes that [Uint16] decodes as v.
func (b *SeedBuilder) Uint16(v uint16) *SeedBuilder { return Put(b, v) }

// Uint32 appends the bytes that [Uint32] decodes as v.
func (b *SeedBuilder) Uint32(v uint32) *SeedBuilder { return Put(b, v) }

// Uint64 appends the bytes that [Uint64] decodes as v.
func (b *SeedBuilder) Uint64(v uint64) *SeedBuilder { return Put(b, v) }

// Int8 appends the byte that [Int8] decodes as v.
func (b *SeedBuilder) Int8(v int8) *SeedBuilder { return Put(b, v) }

// Int16 appends the bytes that [Int16] decodes as v.
func (b *SeedBuilder) Int16(v int16) *SeedBuilder { return Put(b, v) }

// Int32 appends the bytes that [Int32] decodes as v.
func (b *SeedBuilder) Int32(v int32) *SeedBuilder { return Put(b, v) }

// Int64 appends the bytes that [Int64] decodes as v.
func (b *SeedBuilder) Int64(v int64) *SeedBuilder { return Put(b, v) }

// Bool appends the byte that [Bool] decodes as v.
func (b *SeedBuilder) Bool(v bool) *SeedBuilder {
	if v {
		return b.Raw(1)
	}

	return b.Raw(0)
}

// Index appends the bytes that [Index] decodes as i (for any n > i).
func (b *SeedBuilder) Index(i int) *SeedBuilder {
	if i < 0 || uint64(i) > uint64(^uint32(0)) {
		panic(fmt.Sprintf("seed builder: index %d out of range", i))
	}

	b.data = binary.LittleEndian.AppendUint32(b.data, uint32(i))

	return b
}

// Blob appends the bytes that [Bytes] decodes as raw.
func (b *SeedBuilder) Blob(raw []byte) *SeedBuilder {
	return b.Index(len(raw)).Raw(raw...)
}

// String appends the bytes that [String] decodes as s. Panics if s holds
// anything other than 'a'..'z'.
func (b *SeedBuilder) String(s string) *SeedBuilder {
	b.Index(len(s))

	for i := range len(s) {
		c := s[i]
		if c < 'a' || c > 'z' {
			panic(fmt.Sprintf("seed builder: String only encodes a-z, got %q", c))
		}

		b.data = append(b.data, c-'a')
	}

	return b
}

// Put appends the bytes that [Int] decodes as v.
func Put[T Integer](b *SeedBuilder, v T) *SeedBuilder {
	var raw [8]byte

	binary.LittleEndian.PutUint64(raw[:], uint64(v))
	b.data = append(b.data, raw[:windowOf[T]()]...)

	return b
}
