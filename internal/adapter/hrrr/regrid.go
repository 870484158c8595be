package hrrr

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"go.ngs.io/hptrack/internal/adapter/interp"
	"go.ngs.io/hptrack/internal/adapter/proj"
	"go.ngs.io/hptrack/internal/domain"
)

// GridStep is the spacing of the regular grid, about 3 km.
const GridStep = 0.03

// Regridder interpolates projected (y, x) fields bilinearly onto a regular
// latitude/longitude grid spanning the source domain.
type Regridder struct {
	Proj *proj.Projection
	Step float64
}

// NewRegridder returns a regridder for the HRRR Lambert conformal grid.
func NewRegridder() (*Regridder, error) {
	p, err := proj.New(proj.HRRR)
	if err != nil {
		return nil, err
	}
	return &Regridder{Proj: p, Step: GridStep}, nil
}

// Axis returns start, start+step, ... up to but excluding stop.
func Axis(start, stop, step float64) []float64 {
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// Regrid replaces the y and x dimensions of ds with lat and lon. Variables
// must have y and x as their last two dimensions; target points outside the
// source grid are NaN.
func (r *Regridder) Regrid(ds *domain.Dataset) (*domain.Dataset, error) {
	xv, okX := ds.Var("x")
	yv, okY := ds.Var("y")
	if !okX || !okY {
		return nil, fmt.Errorf("regrid: %w", domain.ErrNoCoordinate)
	}
	x, y := xv.Values, yv.Values
	step := r.Step
	if step <= 0 {
		step = GridStep
	}

	lons := make([]float64, 0, len(x)*len(y))
	lats := make([]float64, 0, len(x)*len(y))
	for _, yy := range y {
		for _, xx := range x {
			lon, lat, err := r.Proj.Inverse(xx, yy)
			if err != nil {
				return nil, fmt.Errorf("regrid: unproject (%g, %g): %w", xx, yy, err)
			}
			lons = append(lons, lon)
			lats = append(lats, lat)
		}
	}
	if len(lons) == 0 {
		return nil, errors.New("regrid: empty source grid")
	}
	tLat := Axis(floats.Min(lats), floats.Max(lats)+step, step)
	tLon := Axis(floats.Min(lons), floats.Max(lons)+step, step)

	ptLon := make([]float64, 0, len(tLat)*len(tLon))
	ptLat := make([]float64, 0, len(tLat)*len(tLon))
	for _, la := range tLat {
		for _, lo := range tLon {
			ptLon = append(ptLon, lo)
			ptLat = append(ptLat, la)
		}
	}
	px, py, err := r.Proj.ForwardAll(ptLon, ptLat)
	if err != nil {
		return nil, fmt.Errorf("regrid: %w", err)
	}
	plan, err := interp.NewPlan(x, y, px, py)
	if err != nil {
		return nil, fmt.Errorf("regrid: %w", err)
	}

	out := domain.NewDataset()
	maps.Copy(out.Attrs, ds.Attrs)
	for _, d := range ds.Dims() {
		name, n := d.Name, d.Len
		switch name {
		case "y":
			name, n = "lat", len(tLat)
		case "x":
			name, n = "lon", len(tLon)
		}
		if err := out.AddDim(name, n); err != nil {
			return nil, err
		}
	}
	if err := out.SetVar(&domain.Variable{
		Name: "lat", Dims: []string{"lat"}, DType: domain.Float64, Values: tLat,
		Attrs: map[string]any{"units": "degrees_north", "standard_name": "latitude"},
	}); err != nil {
		return nil, err
	}
	if err := out.SetVar(&domain.Variable{
		Name: "lon", Dims: []string{"lon"}, DType: domain.Float64, Values: tLon,
		Attrs: map[string]any{"units": "degrees_east", "standard_name": "longitude"},
	}); err != nil {
		return nil, err
	}

	src, dst := len(x)*len(y), plan.Len()
	for _, v := range ds.Vars() {
		if v.Name == "x" || v.Name == "y" {
			continue
		}
		if !v.HasDim("x") && !v.HasDim("y") {
			if err := out.SetVar(v); err != nil {
				return nil, err
			}
			continue
		}
		n := len(v.Dims)
		if n < 2 || v.Dims[n-2] != "y" || v.Dims[n-1] != "x" {
			return nil, fmt.Errorf("regrid: variable %q has dimensions %v, want (..., y, x)", v.Name, v.Dims)
		}
		outer := len(v.Values) / src
		vals := make([]float64, outer*dst)
		for o := 0; o < outer; o++ {
			if err := plan.Apply(vals[o*dst:(o+1)*dst], v.Values[o*src:(o+1)*src]); err != nil {
				return nil, fmt.Errorf("regrid %q: %w", v.Name, err)
			}
		}
		nv := v.With(vals)
		nv.Dims = append(slices.Clone(v.Dims[:n-2]), "lat", "lon")
		if err := out.SetVar(nv); err != nil {
			return nil, err
		}
	}
	return out, nil
}
