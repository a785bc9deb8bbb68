package engine

import (
	"fmt"
	"strings"
)

// TestFailure is the final report of a failing test.
type TestFailure struct {
	// Signature of the minimized failure.
	Signature Signature

	// Input is the minimized reproducer: exactly the bytes the final replay
	// consumed. Replaying it in Forced mode reproduces the failure.
	Input []byte

	// Original is the input as first captured.
	Original []byte

	// Value is the decoded input, formatted for humans.
	Value string

	Seed      uint64
	Iteration int
	Corpus    bool

	// Shrunk is set when minimization ran.
	Shrunk bool

	// ShrinkAttempts counts candidate replays.
	ShrinkAttempts int

	// Discarded counts candidates that failed with another signature.
	Discarded int
}

func (f *TestFailure) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "test failed: %s\n", f.Signature)
	fmt.Fprintf(&b, "  location:  %s\n", f.Signature.Location)
	fmt.Fprintf(&b, "  value:     %s\n", f.Value)
	fmt.Fprintf(&b, "  input:     [% x] (%d bytes)\n", f.Input, len(f.Input))

	if f.Shrunk {
		fmt.Fprintf(&b, "  original:  %d bytes, shrunk in %d attempts (%d discarded)\n",
			len(f.Original), f.ShrinkAttempts, f.Discarded)
	} else {
		b.WriteString("  original:  not shrunk\n")
	}

	if f.Corpus {
		fmt.Fprintf(&b, "  source:    corpus entry %d\n", f.Iteration)
	} else {
		fmt.Fprintf(&b, "  source:    seed %#x iteration %d\n", f.Seed, f.Iteration)
	}

	fmt.Fprintf(&b, "  replay:    %q", f.Input)

	return b.String()
}
