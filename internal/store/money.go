package store

import "math"

// Round2 rounds a money value to 2 decimal places at write time. The spec
// (§9 "Decimal money") permits floating point as long as every comparison
// is done after the same rounding function that persists; this is that
// single function, used by every package that writes a money field.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
