package domain

import (
	"fmt"
)

// FixOptions controls FixCoords.
type FixOptions struct {
	LatDim string // Defaults to "lat".
	LonDim string // Defaults to "lon".

	// Roll converts longitudes from -180..180 to 0..360 and rotates the
	// longitude axis so that it starts at the first non-negative value.
	Roll bool
}

func (o FixOptions) withDefaults() FixOptions {
	if o.LatDim == "" {
		o.LatDim = "lat"
	}
	if o.LonDim == "" {
		o.LonDim = "lon"
	}
	return o
}

// FixCoords normalizes the latitude and longitude axes of ds.
//
// With Roll set, the longitude axis is rotated to start at the first
// longitude >= 0 and negative longitudes are shifted by +360. Independently,
// a strictly descending latitude or longitude axis is reversed together with
// all data indexed by it. When nothing needs to change ds itself is returned.
func FixCoords(ds *Dataset, opts FixOptions) (*Dataset, error) {
	opts = opts.withDefaults()

	lat, err := axisCoord(ds, opts.LatDim)
	if err != nil {
		return nil, err
	}
	lon, err := axisCoord(ds, opts.LonDim)
	if err != nil {
		return nil, err
	}

	out := ds
	if opts.Roll {
		out, err = rollLongitude(out, lon)
		if err != nil {
			return nil, err
		}
		lon, _ = out.Var(opts.LonDim)
	}

	if strictlyDescending(lat.Values) {
		out, err = out.Isel(opts.LatDim, reversedIndex(len(lat.Values)))
		if err != nil {
			return nil, err
		}
	}
	if strictlyDescending(lon.Values) {
		out, err = out.Isel(opts.LonDim, reversedIndex(len(lon.Values)))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rollLongitude rotates the longitude axis and wraps negative values.
func rollLongitude(ds *Dataset, lon *Variable) (*Dataset, error) {
	n := len(lon.Values)
	shift := 0
	for i, v := range lon.Values {
		if v >= 0 {
			shift = i
			break
		}
	}

	hasNegative := false
	for _, v := range lon.Values {
		if v < 0 {
			hasNegative = true
			break
		}
	}
	if shift == 0 && !hasNegative {
		return ds, nil
	}

	out := ds
	if shift != 0 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = (i + shift) % n
		}
		var err error
		out, err = ds.Isel(lon.Name, idx)
		if err != nil {
			return nil, fmt.Errorf("roll %q: %w", lon.Name, err)
		}
	}

	rolled, _ := out.Var(lon.Name)
	wrapped := make([]float64, n)
	for i, v := range rolled.Values {
		wrapped[i] = WrapLon360(v)
	}
	out = out.Copy()
	if err := out.SetVar(rolled.With(wrapped)); err != nil {
		return nil, err
	}
	return out, nil
}

// WrapLon360 maps a longitude in [-360, 360) into [0, 360).
func WrapLon360(lon float64) float64 {
	if lon < 0 {
		return lon + 360
	}
	return lon
}

// SignLon maps a longitude in [0, 360) into [-180, 180).
func SignLon(lon float64) float64 {
	if lon >= 180 {
		return lon - 360
	}
	return lon
}

func axisCoord(ds *Dataset, dim string) (*Variable, error) {
	v, ok := ds.Var(dim)
	if !ok {
		return nil, fmt.Errorf("%q: %w", dim, ErrNoCoordinate)
	}
	if len(v.Dims) != 1 || v.Dims[0] != dim {
		return nil, fmt.Errorf("%q: coordinate must be 1-D over its own dimension, got %v", dim, v.Dims)
	}
	return v, nil
}

// strictlyDescending mirrors numpy's all(diff(x) < 0), which is vacuously
// true for fewer than two values.
func strictlyDescending(x []float64) bool {
	for i := 1; i < len(x); i++ {
		if !(x[i] < x[i-1]) {
			return false
		}
	}
	return len(x) > 1
}

func reversedIndex(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = n - 1 - i
	}
	return idx
}
