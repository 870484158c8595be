package domain

import "math"

// toleranceAtLevelZero is the half-width in degrees of a level 0 cell.
const toleranceAtLevelZero = 58.6

// Tolerance returns the maximum per-axis distance in degrees between a
// HEALPix cell centre and its nearest source grid point at level.
func Tolerance(level int) float64 {
	return toleranceAtLevelZero / math.Pow(2, float64(level))
}

// IsValid reports whether a source point is close enough to its target cell
// centre. Both differences must be strictly below tol; NaN is never valid.
func IsValid(latSrc, latTgt, lonSrc, lonTgt, tol float64) bool {
	return math.Abs(latSrc-latTgt) < tol && math.Abs(lonSrc-lonTgt) < tol
}
