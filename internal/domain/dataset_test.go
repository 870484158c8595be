package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataset_SetVarShapeMismatch(t *testing.T) {
	ds := NewDataset()
	require.NoError(t, ds.AddDim("x", 3))
	err := ds.SetVar(&Variable{Name: "a", Dims: []string{"x"}, DType: Float64, Values: []float64{1, 2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 values")
}

func TestDataset_AddDimConflict(t *testing.T) {
	ds := NewDataset()
	require.NoError(t, ds.AddDim("x", 3))
	require.NoError(t, ds.AddDim("x", 3))
	assert.Error(t, ds.AddDim("x", 4))
}

func TestDataset_Validate(t *testing.T) {
	ds := NewDataset()
	require.NoError(t, ds.AddDim("x", 2))
	require.NoError(t, ds.SetVar(&Variable{Name: "a", Dims: []string{"x"}, DType: Float64, Values: []float64{1, 2}}))

	err := ds.Validate()
	assert.True(t, errors.Is(err, ErrNoCoordinate))

	fixed := ds.EnsureIndexCoords()
	require.NoError(t, fixed.Validate())
	x, ok := fixed.Var("x")
	require.True(t, ok)
	assert.Equal(t, Int64, x.DType)
	assert.Equal(t, []float64{0, 1}, x.Values)

	// The original is untouched.
	_, ok = ds.Var("x")
	assert.False(t, ok)
}

func TestDataset_Isel(t *testing.T) {
	ds := newGrid(t, 2, []float64{0, 1}, []float64{10, 20, 30}, []float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
		10, 11, 12,
	})

	out, err := ds.Isel("lon", []int{2, 0})
	require.NoError(t, err)

	n, _ := out.DimLen("lon")
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{30, 10}, values(t, out, "lon"))
	assert.Equal(t, []float64{3, 1, 6, 4, 9, 7, 12, 10}, values(t, out, "v"))
	assert.Equal(t, []float64{10, 20, 30}, values(t, ds, "lon"))

	_, err = ds.Isel("lon", []int{3})
	assert.Error(t, err)
	_, err = ds.Isel("depth", []int{0})
	assert.Error(t, err)
}

func TestDataset_DropVarsPrunesDims(t *testing.T) {
	ds := newGrid(t, 1, []float64{0}, []float64{0}, []float64{1})
	out := ds.DropVars("time", "v")
	assert.False(t, out.HasDim("time"))
	assert.True(t, out.HasDim("lat"))
	assert.Equal(t, []string{"lat", "lon"}, out.VarNames())
	assert.True(t, ds.HasDim("time"))
}

func TestDataset_RenameDim(t *testing.T) {
	ds := newGrid(t, 1, []float64{0, 1}, []float64{5}, []float64{1, 2})
	out, err := ds.RenameDim("lat", "y")
	require.NoError(t, err)

	assert.True(t, out.HasDim("y"))
	assert.False(t, out.HasDim("lat"))
	assert.True(t, out.IsCoord("y"))
	v, _ := out.Var("v")
	assert.Equal(t, []string{"time", "y", "lon"}, v.Dims)
	require.NoError(t, out.Validate())

	same, err := ds.RenameDim("depth", "z")
	require.NoError(t, err)
	assert.Same(t, ds, same)

	_, err = ds.RenameDim("lat", "lon")
	assert.Error(t, err)
}

func TestDataset_SetVarPayloads(t *testing.T) {
	ds := NewDataset()
	require.NoError(t, ds.AddDim("time", 2))
	require.NoError(t, ds.AddDim("chars", 3))

	require.NoError(t, ds.SetVar(&Variable{Name: "date", Dims: []string{"time", "chars"}, DType: Char, Raw: []byte("abcdef")}))
	require.NoError(t, ds.SetVar(&Variable{Name: "label", Dims: []string{"time"}, DType: String, Raw: []string{"x", "y"}}))
	require.NoError(t, ds.SetVar(&Variable{Name: "id", Dims: []string{"time"}, DType: Int64, Values: []float64{1, 2}, Raw: []int64{1, 2}}))

	cases := map[string]*Variable{
		"char without payload":   {Name: "c", Dims: []string{"time", "chars"}, DType: Char},
		"short char payload":     {Name: "c", Dims: []string{"time", "chars"}, DType: Char, Raw: []byte("abc")},
		"payload of wrong type":  {Name: "c", Dims: []string{"time"}, DType: Float32, Values: []float64{1, 2}, Raw: []string{"a", "b"}},
		"int64 payload mismatch": {Name: "c", Dims: []string{"time"}, DType: Int64, Values: []float64{1, 2}, Raw: []int64{1}},
	}
	for name, v := range cases {
		assert.Error(t, ds.SetVar(v), name)
	}
}

func TestDataset_IselCarriesPayload(t *testing.T) {
	ds := NewDataset()
	require.NoError(t, ds.AddDim("time", 2))
	require.NoError(t, ds.AddDim("chars", 3))
	require.NoError(t, ds.SetVar(&Variable{Name: "date", Dims: []string{"time", "chars"}, DType: Char, Raw: []byte("abcdef")}))
	require.NoError(t, ds.SetVar(&Variable{Name: "id", Dims: []string{"time"}, DType: Int64, Values: []float64{1, 2}, Raw: []int64{1<<53 + 1, 2}}))

	out, err := ds.Isel("time", []int{1, 0})
	require.NoError(t, err)
	date, _ := out.Var("date")
	assert.Equal(t, []byte("defabc"), date.Raw)
	assert.Nil(t, date.Values)
	id, _ := out.Var("id")
	assert.Equal(t, []int64{2, 1<<53 + 1}, id.Raw)
	assert.Equal(t, []float64{2, 1}, id.Values)
}
