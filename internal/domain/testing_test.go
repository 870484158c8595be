package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// newGrid builds a dataset with lat/lon coordinates and one float32 field
// "v" over (time, lat, lon).
func newGrid(t *testing.T, nt int, lat, lon []float64, values []float64) *Dataset {
	t.Helper()
	ds := NewDataset()
	require.NoError(t, ds.AddDim("time", nt))
	require.NoError(t, ds.AddDim("lat", len(lat)))
	require.NoError(t, ds.AddDim("lon", len(lon)))
	require.NoError(t, ds.SetVar(IndexCoord("time", nt)))
	require.NoError(t, ds.SetVar(&Variable{Name: "lat", Dims: []string{"lat"}, DType: Float64, Values: lat}))
	require.NoError(t, ds.SetVar(&Variable{Name: "lon", Dims: []string{"lon"}, DType: Float64, Values: lon}))
	require.NoError(t, ds.SetVar(&Variable{Name: "v", Dims: []string{"time", "lat", "lon"}, DType: Float32, Values: values}))
	return ds
}

func values(t *testing.T, ds *Dataset, name string) []float64 {
	t.Helper()
	v, ok := ds.Var(name)
	require.True(t, ok, "variable %q missing", name)
	return v.Values
}
