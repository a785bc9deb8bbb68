package driver

import (
	"encoding/binary"
	"math/rand/v2"
)

// Source supplies raw entropy to a [Driver].
//
// Fill never fails. A finite source that runs out zero-fills the rest of
// buf, so any generator can always complete.
type Source interface {
	// Fill overwrites buf with the next len(buf) bytes of the source.
	Fill(buf []byte)

	// Exhausted reports whether a read has gone past the end of the source.
	// Infinite sources always return false.
	Exhausted() bool
}

// Exhaustible reads bytes sequentially from a byte slice.
//
// When the slice is exhausted, all reads return zero bytes. The same input
// therefore always produces the same sequence of values, which is what
// replay and shrinking depend on.
type Exhaustible struct {
	bytes     []byte
	pos       int
	exhausted bool
}

// NewExhaustible creates a source over the given bytes. The slice is not
// copied; callers must not modify it while the source is in use.
func NewExhaustible(b []byte) *Exhaustible {
	return &Exhaustible{bytes: b}
}

// Fill copies the next bytes into buf, zero-filling past the end.
func (s *Exhaustible) Fill(buf []byte) {
	n := copy(buf, s.bytes[s.pos:])
	s.pos += n

	if n < len(buf) {
		clear(buf[n:])

		s.exhausted = true
	}
}

// Exhausted reports whether a read has gone past the end of the buffer.
func (s *Exhaustible) Exhausted() bool {
	return s.exhausted
}

// Remaining returns the number of unread bytes.
func (s *Exhaustible) Remaining() int {
	return len(s.bytes) - s.pos
}

// Infinite is a seeded pseudo-random byte stream with no natural end.
type Infinite struct {
	rng  *rand.PCG
	word [8]byte
	left int
}

// NewInfinite creates a stream seeded with seed. Equal seeds produce equal
// byte streams.
func NewInfinite(seed uint64) *Infinite {
	return &Infinite{rng: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// Fill overwrites buf with pseudo-random bytes.
func (s *Infinite) Fill(buf []byte) {
	for i := range buf {
		if s.left == 0 {
			binary.LittleEndian.PutUint64(s.word[:], s.rng.Uint64())
			s.left = len(s.word)
		}

		buf[i] = s.word[len(s.word)-s.left]
		s.left--
	}
}

// Exhausted always returns false.
func (s *Infinite) Exhausted() bool {
	return false
}
