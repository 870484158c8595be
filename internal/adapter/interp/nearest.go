package interp

import (
	"math"
	"sort"
)

// NearestIndex returns, for each target, the position of the closest value
// in the ascending slice src. Equidistant targets resolve to the larger
// source value. NaN targets and an empty src give -1.
func NearestIndex(src, targets []float64) []int {
	out := make([]int, len(targets))
	for k, x := range targets {
		out[k] = nearest(src, x)
	}
	return out
}

func nearest(src []float64, x float64) int {
	n := len(src)
	if n == 0 || math.IsNaN(x) {
		return -1
	}
	right := sort.SearchFloat64s(src, x)
	if right == n {
		return n - 1
	}
	if src[right] == x || right == 0 {
		return right
	}
	left := right - 1
	if x-src[left] < src[right]-x {
		return left
	}
	return right
}
