// Package util provides common utility functions for price and score calculations.
package util

import "math"

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 or 1.24 depending on rounding.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// Clamp limits x to the inclusive range [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// NormalizeCapped maps x linearly onto [0, 1] with the given cap.
// Values at or above the cap score 1, non-positive values score 0.
// Used by every composite-score calculation so a single outsized input
// cannot dominate a ranking.
func NormalizeCapped(x, cap float64) float64 {
	if cap <= 0 || x <= 0 {
		return 0
	}
	if x >= cap {
		return 1
	}
	return x / cap
}
