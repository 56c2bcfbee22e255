package utils

import "math"

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ClampInt limits v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// Snap rounds v to the nearest multiple of step. A non-positive step returns v.
func Snap(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Round(v/step) * step
}

// Mod returns the non-negative remainder of a divided by n.
func Mod(a, n int) int {
	if n == 0 {
		return 0
	}
	return ((a % n) + n) % n
}
