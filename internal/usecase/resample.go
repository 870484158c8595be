package usecase

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"go.ngs.io/hptrack/internal/adapter/interp"
	"go.ngs.io/hptrack/internal/domain"
	"go.ngs.io/hptrack/internal/healpix"
)

// CellDim is the dimension of HEALPix cells.
const CellDim = "cell"

// CRSVar is the scalar variable describing the HEALPix grid.
const CRSVar = "crs"

// Tiling enumerates the cell centres of a hierarchical spherical grid.
type Tiling interface {
	CellCenters(zoom int, signedLon bool) (lon, lat []float64)
}

// TargetGrid is the set of cells a dataset is resampled onto.
type TargetGrid struct {
	Dim   string
	Index []int64
	Lat   []float64
	Lon   []float64
	Zoom  int
}

// NewTargetGrid returns every cell of t at zoom, indexed 0..n-1.
func NewTargetGrid(t Tiling, zoom int, signedLon bool) TargetGrid {
	lon, lat := t.CellCenters(zoom, signedLon)
	idx := make([]int64, len(lon))
	for i := range idx {
		idx[i] = int64(i)
	}
	return TargetGrid{Dim: CellDim, Index: idx, Lat: lat, Lon: lon, Zoom: zoom}
}

// ResampleStats summarises one resampling.
type ResampleStats struct {
	Cells  int
	Masked int
}

// MaskedRatio returns the fraction of masked cells.
func (s ResampleStats) MaskedRatio() float64 {
	if s.Cells == 0 {
		return 0
	}
	return float64(s.Masked) / float64(s.Cells)
}

// Resampler maps a lat/lon dataset onto a target grid.
type Resampler interface {
	Resample(ds *domain.Dataset, target TargetGrid) (*domain.Dataset, ResampleStats, error)
}

// NearestResampler selects the nearest source latitude and longitude of
// every target cell independently and masks cells farther than the
// tolerance of the target zoom.
type NearestResampler struct {
	LatDim string
	LonDim string
}

// Resample implements Resampler. Variables indexed by latitude or
// longitude are re-indexed by the target dimension; integer variables
// become float64 so masked cells can hold NaN. The source coordinates are
// dropped and a crs variable describing the grid is added.
func (r NearestResampler) Resample(ds *domain.Dataset, target TargetGrid) (*domain.Dataset, ResampleStats, error) {
	latDim, lonDim := r.LatDim, r.LonDim
	if latDim == "" {
		latDim = "lat"
	}
	if lonDim == "" {
		lonDim = "lon"
	}
	if target.Dim == "" {
		target.Dim = CellDim
	}
	n := len(target.Lat)
	if len(target.Lon) != n || len(target.Index) != n {
		return nil, ResampleStats{}, fmt.Errorf("resample: target has %d lat, %d lon and %d index values", n, len(target.Lon), len(target.Index))
	}
	latV, ok := ds.Var(latDim)
	if !ok || !ds.IsCoord(latDim) {
		return nil, ResampleStats{}, fmt.Errorf("resample: %q: %w", latDim, domain.ErrNoCoordinate)
	}
	lonV, ok := ds.Var(lonDim)
	if !ok || !ds.IsCoord(lonDim) {
		return nil, ResampleStats{}, fmt.Errorf("resample: %q: %w", lonDim, domain.ErrNoCoordinate)
	}

	iLat := interp.NearestIndex(latV.Values, target.Lat)
	iLon := interp.NearestIndex(lonV.Values, target.Lon)
	tol := domain.Tolerance(target.Zoom)
	valid := make([]bool, n)
	stats := ResampleStats{Cells: n}
	for k := range valid {
		valid[k] = iLat[k] >= 0 && iLon[k] >= 0 &&
			domain.IsValid(latV.Values[iLat[k]], target.Lat[k], lonV.Values[iLon[k]], target.Lon[k], tol)
		if !valid[k] {
			stats.Masked++
		}
	}

	out := domain.NewDataset()
	maps.Copy(out.Attrs, ds.Attrs)
	placed := false
	for _, d := range ds.Dims() {
		if d.Name == latDim || d.Name == lonDim {
			if !placed {
				if err := out.AddDim(target.Dim, n); err != nil {
					return nil, stats, err
				}
				placed = true
			}
			continue
		}
		if err := out.AddDim(d.Name, d.Len); err != nil {
			return nil, stats, err
		}
	}

	idx := make([]float64, n)
	for i, c := range target.Index {
		idx[i] = float64(c)
	}
	if err := out.SetVar(&domain.Variable{Name: target.Dim, Dims: []string{target.Dim}, DType: domain.Int64, Values: idx}); err != nil {
		return nil, stats, err
	}

	for _, v := range ds.Vars() {
		switch {
		case v.Name == latDim || v.Name == lonDim || v.Name == target.Dim:
			continue
		case !v.HasDim(latDim) && !v.HasDim(lonDim):
			if err := out.SetVar(v); err != nil {
				return nil, stats, err
			}
			continue
		}
		shape, err := ds.Shape(v)
		if err != nil {
			return nil, stats, err
		}
		nv := selectCells(v, shape, latDim, lonDim, target.Dim, iLat, iLon, valid)
		if err := out.SetVar(nv); err != nil {
			return nil, stats, fmt.Errorf("resample %q: %w", v.Name, err)
		}
	}
	if err := out.SetVar(CRS(target.Zoom)); err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}

// selectCells gathers v at the nearest source point of every target cell.
// The target dimension takes the place of the lat/lon dimensions when they
// are adjacent and goes first otherwise.
func selectCells(v *domain.Variable, shape []int, latDim, lonDim, cellDim string, iLat, iLon []int, valid []bool) *domain.Variable {
	pLat, pLon := slices.Index(v.Dims, latDim), slices.Index(v.Dims, lonDim)
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}

	pos := 0
	switch {
	case pLat >= 0 && pLon >= 0:
		if pLat-pLon == 1 || pLon-pLat == 1 {
			pos = min(pLat, pLon)
		}
	case pLat >= 0:
		pos = pLat
	default:
		pos = pLon
	}

	// Remaining dimensions split into those before and after the cell axis.
	var outerDims, innerDims []string
	var outerShape, outerStrides, innerShape, innerStrides []int
	rest := 0
	for i, d := range v.Dims {
		if i == pLat || i == pLon {
			continue
		}
		if rest < pos {
			outerDims = append(outerDims, d)
			outerShape = append(outerShape, shape[i])
			outerStrides = append(outerStrides, strides[i])
		} else {
			innerDims = append(innerDims, d)
			innerShape = append(innerShape, shape[i])
			innerStrides = append(innerStrides, strides[i])
		}
		rest++
	}

	cellOff := make([]int, len(valid))
	for k := range valid {
		if !valid[k] {
			cellOff[k] = -1
			continue
		}
		if pLat >= 0 {
			cellOff[k] += iLat[k] * strides[pLat]
		}
		if pLon >= 0 {
			cellOff[k] += iLon[k] * strides[pLon]
		}
	}

	outer := offsets(outerShape, outerStrides)
	inner := offsets(innerShape, innerStrides)
	vals := make([]float64, 0, len(outer)*len(valid)*len(inner))
	for _, o := range outer {
		for _, c := range cellOff {
			for _, in := range inner {
				if c < 0 {
					vals = append(vals, math.NaN())
					continue
				}
				vals = append(vals, v.Values[o+c+in])
			}
		}
	}

	nv := v.With(vals)
	nv.Dims = slices.Concat(outerDims, []string{cellDim}, innerDims)
	if !nv.DType.IsFloat() {
		nv.DType = domain.Float64
	}
	return nv
}

// offsets lists the flat offsets of every index of shape in C order.
func offsets(shape, strides []int) []int {
	out := []int{0}
	for i := range shape {
		next := make([]int, 0, len(out)*shape[i])
		for _, o := range out {
			for j := 0; j < shape[i]; j++ {
				next = append(next, o+j*strides[i])
			}
		}
		out = next
	}
	return out
}

// CRS returns the grid mapping variable of a HEALPix nested grid at zoom.
func CRS(zoom int) *domain.Variable {
	return &domain.Variable{
		Name:   CRSVar,
		DType:  domain.Int64,
		Values: []float64{0},
		Attrs: map[string]any{
			"grid_mapping_name": "healpix",
			"healpix_nside":     healpix.Nside(zoom),
			"healpix_order":     "nest",
		},
	}
}
