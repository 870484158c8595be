package interp

import (
	"fmt"
	"math"
	"sort"
)

// blend weights the four corners of a cell by the fractional position
// (t, u) inside it. A NaN corner yields NaN.
func blend(v00, v10, v01, v11, t, u float64) float64 {
	return (1-t)*(1-u)*v00 +
		t*(1-u)*v10 +
		(1-t)*u*v01 +
		t*u*v11
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func validateAxes(xs, ys []float64) error {
	if len(xs) < 2 {
		return fmt.Errorf("grid must have at least 2 X coordinates")
	}
	if len(ys) < 2 {
		return fmt.Errorf("grid must have at least 2 Y coordinates")
	}
	for i := 1; i < len(xs); i++ {
		if xs[i] <= xs[i-1] {
			return fmt.Errorf("X coordinates must be strictly increasing")
		}
	}
	for i := 1; i < len(ys); i++ {
		if ys[i] <= ys[i-1] {
			return fmt.Errorf("Y coordinates must be strictly increasing")
		}
	}
	return nil
}

// bracket returns i such that xs[i] <= x <= xs[i+1].
func bracket(xs []float64, x float64) (int, bool) {
	if math.IsNaN(x) || x < xs[0] || x > xs[len(xs)-1] {
		return 0, false
	}
	i := sort.SearchFloat64s(xs, x) - 1
	if i < 0 {
		i = 0
	}
	if i > len(xs)-2 {
		i = len(xs) - 2
	}
	return i, true
}

// Plan holds precomputed interpolation weights from a source grid onto a
// list of points, so that many fields on the same grid can be regridded
// without searching again.
type Plan struct {
	nx, ny int
	idx    []int // Index of the (X0, Y0) corner, -1 when outside.
	t, u   []float64
}

// NewPlan prepares bilinear weights for points (xs[k], ys[k]) on the grid
// spanned by gridX and gridY.
func NewPlan(gridX, gridY, xs, ys []float64) (*Plan, error) {
	if err := validateAxes(gridX, gridY); err != nil {
		return nil, fmt.Errorf("invalid grid: %w", err)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("got %d x and %d y coordinates", len(xs), len(ys))
	}
	p := &Plan{
		nx:  len(gridX),
		ny:  len(gridY),
		idx: make([]int, len(xs)),
		t:   make([]float64, len(xs)),
		u:   make([]float64, len(xs)),
	}
	for k := range xs {
		i, okX := bracket(gridX, xs[k])
		j, okY := bracket(gridY, ys[k])
		if !okX || !okY {
			p.idx[k] = -1
			continue
		}
		p.idx[k] = j*p.nx + i
		p.t[k] = clamp01((xs[k] - gridX[i]) / (gridX[i+1] - gridX[i]))
		p.u[k] = clamp01((ys[k] - gridY[j]) / (gridY[j+1] - gridY[j]))
	}
	return p, nil
}

// Len returns the number of target points.
func (p *Plan) Len() int {
	return len(p.idx)
}

// Outside returns the number of target points outside the grid.
func (p *Plan) Outside() int {
	n := 0
	for _, i := range p.idx {
		if i < 0 {
			n++
		}
	}
	return n
}

// Apply interpolates one field laid out like the plan's grid into dst.
// Points outside the grid are NaN.
func (p *Plan) Apply(dst, field []float64) error {
	if len(field) != p.nx*p.ny {
		return fmt.Errorf("field has %d values, expected %d", len(field), p.nx*p.ny)
	}
	if len(dst) != len(p.idx) {
		return fmt.Errorf("destination has %d values, expected %d", len(dst), len(p.idx))
	}
	for k, i := range p.idx {
		if i < 0 {
			dst[k] = math.NaN()
			continue
		}
		dst[k] = blend(field[i], field[i+1], field[i+p.nx], field[i+p.nx+1], p.t[k], p.u[k])
	}
	return nil
}
