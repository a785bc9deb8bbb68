package gen

import (
	"errors"
	"fmt"
)

// Sentinel errors carried by generator panics.
//
// Generators have no error return. When a generator cannot produce a value
// it panics with an error wrapping one of these, and the engine classifies
// the run by checking them with [errors.Is].
var (
	// ErrUnsatisfiableBound means a bound admits no valid value for a
	// refinement type. Fatal to the run: the configuration is wrong.
	ErrUnsatisfiableBound = errors.New("gen: unsatisfiable bound")

	// ErrRejected means the generator discarded the current input, for
	// example because a filter found no matching value. The run is skipped.
	ErrRejected = errors.New("gen: input rejected")
)

// UnsatisfiableBoundError reports which type and bounds could not be
// satisfied.
type UnsatisfiableBoundError struct {
	Type     string
	Start    string
	End      string
	Attempts int
}

func (e *UnsatisfiableBoundError) Error() string {
	return fmt.Sprintf("%s: could not produce a valid %s in %s..%s after %d attempts",
		ErrUnsatisfiableBound, e.Type, e.Start, e.End, e.Attempts)
}

func (e *UnsatisfiableBoundError) Unwrap() error {
	return ErrUnsatisfiableBound
}

// Reject discards the current input. It panics with an error wrapping
// [ErrRejected].
func Reject(reason string) {
	panic(fmt.Errorf("%w: %s", ErrRejected, reason))
}
