package fuzzdrive

import (
	"testing"

	"github.com/calvinalkan/fuzzdrive/pkg/engine"
)

// RunFuzzOne builds the session on f the way Fuzz does and runs the
// per-input body against t.
func RunFuzzOne(f, t testing.TB, test engine.Test, data []byte, opts ...Option) {
	s, err := newSession(f, append(opts, WithoutShrink()))
	if err != nil {
		f.Fatalf("fuzzdrive: %v", err)

		return
	}

	fuzzOne(t, s, test, data)
}
