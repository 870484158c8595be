package usecase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/hptrack/internal/domain"
)

type fixedTiling struct {
	lon, lat []float64
}

func (f fixedTiling) CellCenters(int, bool) ([]float64, []float64) {
	return f.lon, f.lat
}

func sourceGrid(t *testing.T) *domain.Dataset {
	t.Helper()
	ds := domain.NewDataset()
	require.NoError(t, ds.AddDim("time", 2))
	require.NoError(t, ds.AddDim("lat", 2))
	require.NoError(t, ds.AddDim("lon", 2))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "time", Dims: []string{"time"}, DType: domain.Int64, Values: []float64{0, 6}}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "lat", Dims: []string{"lat"}, DType: domain.Float64, Values: []float64{0, 10}}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "lon", Dims: []string{"lon"}, DType: domain.Float64, Values: []float64{0, 10}}))

	// mask[t][i][j] = 100t + 10i + j
	mask := make([]float64, 8)
	for k := range mask {
		mask[k] = float64(100*(k/4) + 10*(k/2%2) + k%2)
	}
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "mask", Dims: []string{"time", "lat", "lon"}, DType: domain.Int32,
		Values: mask, Attrs: map[string]any{"long_name": "AR mask"},
	}))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "w", Dims: []string{"lat", "time"}, DType: domain.Float32,
		Values: []float64{0, 1, 10, 11},
	}))
	return ds
}

func TestNearestResampler(t *testing.T) {
	ds := sourceGrid(t)
	target := NewTargetGrid(fixedTiling{
		lon: []float64{1, 9, 5, 50},
		lat: []float64{1, 9, 5, 50},
	}, 3, false)

	out, stats, err := NearestResampler{}.Resample(ds, target)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	assert.Equal(t, ResampleStats{Cells: 4, Masked: 1}, stats)
	assert.InDelta(t, 0.25, stats.MaskedRatio(), 1e-12)

	assert.Equal(t, []string{"cell", "time", "mask", "w", "crs"}, out.VarNames())
	_, hasLat := out.Var("lat")
	assert.False(t, hasLat)
	n, _ := out.DimLen(CellDim)
	assert.Equal(t, 4, n)

	cell, _ := out.Var(CellDim)
	assert.Equal(t, []float64{0, 1, 2, 3}, cell.Values)
	assert.Equal(t, domain.Int64, cell.DType)

	mask, _ := out.Var("mask")
	assert.Equal(t, []string{"time", "cell"}, mask.Dims)
	assert.Equal(t, domain.Float64, mask.DType)
	assert.Equal(t, "AR mask", mask.Attrs["long_name"])
	assert.Equal(t, []float64{0, 11, 11}, mask.Values[0:3])
	assert.True(t, math.IsNaN(mask.Values[3]))
	assert.Equal(t, []float64{100, 111, 111}, mask.Values[4:7])
	assert.True(t, math.IsNaN(mask.Values[7]))

	w, _ := out.Var("w")
	assert.Equal(t, []string{"cell", "time"}, w.Dims)
	assert.Equal(t, domain.Float32, w.DType)
	assert.Equal(t, []float64{0, 1, 10, 11, 10, 11}, w.Values[:6])
	assert.True(t, math.IsNaN(w.Values[6]))

	crs, _ := out.Var(CRSVar)
	assert.Empty(t, crs.Dims)
	assert.Equal(t, "healpix", crs.Attrs["grid_mapping_name"])
	assert.Equal(t, int64(8), crs.Attrs["healpix_nside"])
	assert.Equal(t, "nest", crs.Attrs["healpix_order"])
}

func TestNearestResampler_NonAdjacentDimsGoFirst(t *testing.T) {
	ds := domain.NewDataset()
	require.NoError(t, ds.AddDim("lat", 2))
	require.NoError(t, ds.AddDim("time", 3))
	require.NoError(t, ds.AddDim("lon", 1))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "lat", Dims: []string{"lat"}, DType: domain.Float64, Values: []float64{0, 1}}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "time", Dims: []string{"time"}, DType: domain.Int64, Values: []float64{0, 1, 2}}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "lon", Dims: []string{"lon"}, DType: domain.Float64, Values: []float64{0}}))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "x", Dims: []string{"lat", "time", "lon"}, DType: domain.Float64,
		Values: []float64{0, 1, 2, 10, 11, 12},
	}))

	target := NewTargetGrid(fixedTiling{lon: []float64{0, 0}, lat: []float64{1, 0}}, 0, false)
	out, _, err := NearestResampler{}.Resample(ds, target)
	require.NoError(t, err)

	x, _ := out.Var("x")
	assert.Equal(t, []string{"cell", "time"}, x.Dims)
	assert.Equal(t, []float64{10, 11, 12, 0, 1, 2}, x.Values)
}

func TestNearestResampler_MissingCoordinate(t *testing.T) {
	ds := domain.NewDataset()
	require.NoError(t, ds.AddDim("lat", 1))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "lat", Dims: []string{"lat"}, DType: domain.Float64, Values: []float64{0}}))

	_, _, err := NearestResampler{}.Resample(ds, NewTargetGrid(fixedTiling{lon: []float64{0}, lat: []float64{0}}, 0, false))
	require.ErrorIs(t, err, domain.ErrNoCoordinate)
}
