package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/hptrack/internal/domain"
	"go.ngs.io/hptrack/internal/healpix"
)

// globalGrid is a 30 degree grid with signed longitudes whose only
// variable holds the latitude of each point.
func globalGrid(t *testing.T) *domain.Dataset {
	t.Helper()
	lats := []float64{-90, -60, -30, 0, 30, 60, 90}
	var lons []float64
	for lon := -180.0; lon < 180; lon += 30 {
		lons = append(lons, lon)
	}
	ds := domain.NewDataset()
	require.NoError(t, ds.AddDim("latitude", len(lats)))
	require.NoError(t, ds.AddDim("longitude", len(lons)))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "latitude", Dims: []string{"latitude"}, DType: domain.Float64, Values: lats}))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "longitude", Dims: []string{"longitude"}, DType: domain.Float64, Values: lons}))
	vals := make([]float64, 0, len(lats)*len(lons))
	for _, lat := range lats {
		for range lons {
			vals = append(vals, lat)
		}
	}
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "t", Dims: []string{"latitude", "longitude"}, DType: domain.Float32, Values: vals}))
	return ds
}

func TestConverter(t *testing.T) {
	for _, roll := range []bool{false, true} {
		p, rec, m := newTestPyramid(t)
		c := &Converter{
			Tiling:    healpix.Nested{},
			Resampler: NearestResampler{},
			Pyramid:   p,
			Clock:     clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
			Logger:    discard,
			Metrics:   m,
			Roll:      roll,
		}

		src, err := PrepareSource(globalGrid(t))
		require.NoError(t, err)
		results, err := c.Convert(context.Background(), src, 1)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Zero(t, LogResults(discard, results))

		assert.Equal(t, 48.0, testutil.ToFloat64(m.CellsResampled))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.MaskedCellRatio))

		level1 := rec.written[LevelPath("/out/ar", 1, 3)]
		require.NotNil(t, level1)
		v, ok := level1.Var("t")
		require.True(t, ok)
		assert.Equal(t, []string{CellDim}, v.Dims)
		for pix, got := range v.Values {
			_, lat := healpix.LonLat(1, int64(pix))
			assert.InDelta(t, lat, got, 15, "roll=%v cell %d", roll, pix)
		}
	}
}

func TestPrepareSource_RenamesAndDecodes(t *testing.T) {
	ds := domain.NewDataset()
	require.NoError(t, ds.AddDim("latitude", 2))
	require.NoError(t, ds.AddDim("x", 2))
	require.NoError(t, ds.SetVar(&domain.Variable{Name: "latitude", Dims: []string{"latitude"}, DType: domain.Float64, Values: []float64{0, 1}}))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "ar", Dims: []string{"latitude", "x"}, DType: domain.Int16,
		Values: []float64{1, -1, 0, 1}, Attrs: map[string]any{domain.AttrFillValue: int16(-1)},
	}))
	require.NoError(t, ds.AddDim("chars", 3))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "date_written", Dims: []string{"latitude", "chars"}, DType: domain.Char, Raw: []byte("a\x00\x00b\x00\x00"),
	}))

	out, err := PrepareSource(ds)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	_, ok := out.Var("date_written")
	assert.False(t, ok)
	assert.False(t, out.HasDim("chars"))
	assert.True(t, out.HasDim("lat"))
	ar, _ := out.Var("ar")
	assert.Equal(t, []string{"lat", "x"}, ar.Dims)
	assert.True(t, math.IsNaN(ar.Values[1]))
	x, ok := out.Var("x")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1}, x.Values)
}
