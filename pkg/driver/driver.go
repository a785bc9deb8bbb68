// Package driver mediates all consumption of entropy during one test run.
//
// A [Driver] owns a [Source] and a [Mode]. Every generator reads through
// the driver, and the driver records every byte it hands out, so the exact
// input of a failing run can be captured and replayed.
//
// Multi-byte values are always decoded little-endian, independent of the
// host byte order, so recorded inputs are portable.
//
// A Driver is not safe for concurrent use. Each run owns its own Driver.
package driver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned by [ParseMode] for unrecognized names.
var ErrUnknownMode = errors.New("driver: unknown mode")

// Mode controls how a Driver treats its source.
type Mode uint8

const (
	// ModeForced derives every value from exactly the bytes available.
	// Reads past the end of a finite source yield zeros. Used for replay,
	// shrinking and coverage-guided fuzzers that own the input.
	ModeForced Mode = iota

	// ModeDirect may draw fresh randomness. Reads past the end of a finite
	// source are topped up from a pseudo-random stream.
	ModeDirect
)

func (m Mode) String() string {
	switch m {
	case ModeForced:
		return "forced"
	case ModeDirect:
		return "direct"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode parses "forced" or "direct" (case-insensitive).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forced":
		return ModeForced, nil
	case "direct":
		return ModeDirect, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// finite is implemented by sources that can report how many bytes are left.
type finite interface {
	Remaining() int
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxLen caps the number of bytes the driver reads from its source.
// Once n bytes have been handed out, further reads zero-fill in every mode.
// Zero means no cap.
func WithMaxLen(n int) Option {
	return func(d *Driver) {
		d.maxLen = max(n, 0)
	}
}

// WithTopUpSeed seeds the stream used to top up an exhausted finite source
// in [ModeDirect].
func WithTopUpSeed(seed uint64) Option {
	return func(d *Driver) {
		d.topUpSeed = seed
	}
}

// Driver is the single choke point all generation passes through.
type Driver struct {
	src  Source
	mode Mode

	maxLen    int
	topUpSeed uint64
	topUp     *Infinite

	consumed []byte
	capped   bool
	toppedUp bool
}

// New creates a driver over src in the given mode.
func New(src Source, mode Mode, opts ...Option) *Driver {
	if src == nil {
		panic("driver: source is nil")
	}

	d := &Driver{src: src, mode: mode}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// NewForced creates a Forced-mode driver over exactly data.
func NewForced(data []byte, opts ...Option) *Driver {
	return New(NewExhaustible(data), ModeForced, opts...)
}

// NewDirect creates a Direct-mode driver over a seeded infinite stream.
func NewDirect(seed uint64, opts ...Option) *Driver {
	return New(NewInfinite(seed), ModeDirect, opts...)
}

// Mode returns the current mode.
func (d *Driver) Mode() Mode {
	return d.mode
}

// SetMode changes the mode for subsequent reads.
func (d *Driver) SetMode(mode Mode) {
	d.mode = mode
}

// Fill fills buf with the next bytes of entropy and records them.
func (d *Driver) Fill(buf []byte) {
	n := len(buf)
	if d.maxLen > 0 {
		n = min(n, max(d.maxLen-len(d.consumed), 0))
	}

	d.read(buf[:n])

	if n < len(buf) {
		clear(buf[n:])

		d.capped = true
	}

	d.consumed = append(d.consumed, buf...)
}

func (d *Driver) read(buf []byte) {
	if d.mode == ModeDirect {
		if f, ok := d.src.(finite); ok {
			if left := f.Remaining(); left < len(buf) {
				d.src.Fill(buf[:left])
				d.random().Fill(buf[left:])

				d.toppedUp = true

				return
			}
		}
	}

	d.src.Fill(buf)
}

func (d *Driver) random() *Infinite {
	if d.topUp == nil {
		d.topUp = NewInfinite(d.topUpSeed)
	}

	return d.topUp
}

// Byte returns the next byte.
func (d *Driver) Byte() byte {
	var b [1]byte

	d.Fill(b[:])

	return b[0]
}

// Bytes returns the next n bytes in a new slice.
func (d *Driver) Bytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}

	out := make([]byte, n)
	d.Fill(out)

	return out
}

// Exhausted reports whether any read went past the end of the source
// (zero-filled or topped up) or past the length cap.
func (d *Driver) Exhausted() bool {
	return d.capped || d.toppedUp || d.src.Exhausted()
}

// Len returns the number of bytes handed out so far.
func (d *Driver) Len() int {
	return len(d.consumed)
}

// Consumed returns a copy of every byte handed out so far, in order.
// Replaying it through a Forced-mode driver with the same sequence of
// generator calls reproduces the same values.
func (d *Driver) Consumed() []byte {
	return append([]byte(nil), d.consumed...)
}
