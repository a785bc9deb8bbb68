package gen

import (
	"encoding/binary"
	"math"

	"github.com/calvinalkan/fuzzdrive/pkg/driver"
)

// Float32 decodes a float32 by reinterpreting four little-endian bytes.
// Every bit pattern is possible, including NaNs and infinities.
func Float32() Generator[float32] {
	return Func[float32](func(d *driver.Driver) float32 {
		var raw [4]byte

		d.Fill(raw[:])

		return math.Float32frombits(binary.LittleEndian.Uint32(raw[:]))
	})
}

// Float64 decodes a float64 by reinterpreting eight little-endian bytes.
func Float64() Generator[float64] {
	return Func[float64](func(d *driver.Driver) float64 {
		var raw [8]byte

		d.Fill(raw[:])

		return math.Float64frombits(binary.LittleEndian.Uint64(raw[:]))
	})
}

// Bool decodes the low bit of one byte.
func Bool() Generator[bool] {
	return Func[bool](func(d *driver.Driver) bool {
		return d.Byte()&1 == 1
	})
}
