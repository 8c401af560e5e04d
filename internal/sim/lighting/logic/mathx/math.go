package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// FloorInt rounds toward negative infinity; int(v) would truncate toward zero.
func FloorInt(v float64) int {
	return int(math.Floor(v))
}
