package engine

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Kind classifies how a test failed.
type Kind uint8

const (
	// KindPanic is an unrecovered panic inside the test or its generators.
	KindPanic Kind = iota + 1
	// KindAssertion is a returned error or a predicate returning false.
	KindAssertion
	// KindTimeout is a run that exceeded the per-run timeout.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindPanic:
		return "panic"
	case KindAssertion:
		return "assertion"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// TargetLocation is a source position attached to a failure. The engine
// carries it through unchanged and uses it to decide whether two failures
// are the same.
type TargetLocation struct {
	File     string
	Line     int
	Function string
}

// IsZero reports whether the location is unknown.
func (l TargetLocation) IsZero() bool {
	return l == TargetLocation{}
}

func (l TargetLocation) String() string {
	if l.IsZero() {
		return "unknown"
	}

	return fmt.Sprintf("%s:%d (%s)", l.File, l.Line, l.Function)
}

// Signature identifies a failure.
type Signature struct {
	Kind     Kind
	Message  string
	Location TargetLocation
}

// Equivalent reports whether s and o are the same failure: same kind at the
// same location. Messages are ignored since they usually embed the failing
// value, which changes while shrinking.
func (s Signature) Equivalent(o Signature) bool {
	return s.Kind == o.Kind && s.Location == o.Location
}

func (s Signature) String() string {
	return fmt.Sprintf("%s: %s", s.Kind, s.Message)
}

// Locator is implemented by tests that know their own source location.
// Assertion and timeout failures use it, since they have no panic stack.
type Locator interface {
	Location() TargetLocation
}

func locate(test Test) TargetLocation {
	if l, ok := test.(Locator); ok {
		return l.Location()
	}

	return TargetLocation{}
}

// funcLocation returns where fn is defined.
func funcLocation(fn any) TargetLocation {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return TargetLocation{}
	}

	pc := v.Pointer()

	f := runtime.FuncForPC(pc)
	if f == nil {
		return TargetLocation{}
	}

	file, line := f.FileLine(pc)

	return TargetLocation{File: file, Line: line, Function: f.Name()}
}

// panicLocation returns the frame that panicked. It must be called from the
// deferred function that recovers, while the panic frames are still on the
// stack.
func panicLocation() TargetLocation {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	panicking := false

	for {
		f, more := frames.Next()

		switch {
		case f.Function == "runtime.gopanic":
			panicking = true
		case panicking && !strings.HasPrefix(f.Function, "runtime."):
			return TargetLocation{File: f.File, Line: f.Line, Function: f.Function}
		}

		if !more {
			return TargetLocation{}
		}
	}
}
