package usecase

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"go.ngs.io/hptrack/internal/domain"
)

// Coarsener reduces a dimension by an integer factor.
type Coarsener interface {
	Coarsen(ds *domain.Dataset, dim string, factor int) (*domain.Dataset, error)
}

// MeanCoarsener averages consecutive blocks of factor values, ignoring NaN.
// A block of only NaN stays NaN. The coordinate of dim becomes the index of
// the parent, floor(child/factor), which for nested HEALPix cells is the
// pixel index at the next coarser level.
type MeanCoarsener struct{}

// Coarsen implements Coarsener.
func (MeanCoarsener) Coarsen(ds *domain.Dataset, dim string, factor int) (*domain.Dataset, error) {
	if factor < 1 {
		return nil, fmt.Errorf("coarsen: factor %d", factor)
	}
	n, ok := ds.DimLen(dim)
	if !ok {
		return nil, fmt.Errorf("coarsen: unknown dimension %q", dim)
	}
	if n%factor != 0 {
		return nil, fmt.Errorf("coarsen: %q has length %d, not divisible by %d", dim, n, factor)
	}

	out := domain.NewDataset()
	maps.Copy(out.Attrs, ds.Attrs)
	for _, d := range ds.Dims() {
		size := d.Len
		if d.Name == dim {
			size = n / factor
		}
		if err := out.AddDim(d.Name, size); err != nil {
			return nil, err
		}
	}

	buf := make([]float64, 0, factor)
	for _, v := range ds.Vars() {
		axis := slices.Index(v.Dims, dim)
		if axis < 0 {
			if err := out.SetVar(v); err != nil {
				return nil, err
			}
			continue
		}
		if v.Name == dim {
			vals := make([]float64, n/factor)
			for i := range vals {
				vals[i] = math.Floor(v.Values[i*factor] / float64(factor))
			}
			if err := out.SetVar(v.With(vals)); err != nil {
				return nil, err
			}
			continue
		}

		shape, err := ds.Shape(v)
		if err != nil {
			return nil, err
		}
		outer := product(shape[:axis])
		inner := product(shape[axis+1:])
		m := n / factor
		vals := make([]float64, outer*m*inner)
		for o := 0; o < outer; o++ {
			for j := 0; j < m; j++ {
				for in := 0; in < inner; in++ {
					buf = buf[:0]
					for f := 0; f < factor; f++ {
						x := v.Values[(o*n+j*factor+f)*inner+in]
						if !math.IsNaN(x) {
							buf = append(buf, x)
						}
					}
					mean := math.NaN()
					if len(buf) > 0 {
						mean = stat.Mean(buf, nil)
					}
					vals[(o*m+j)*inner+in] = mean
				}
			}
		}
		nv := v.With(vals)
		if !nv.DType.IsFloat() {
			nv.DType = domain.Float64
		}
		if err := out.SetVar(nv); err != nil {
			return nil, fmt.Errorf("coarsen %q: %w", v.Name, err)
		}
	}
	return out, nil
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}
