package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/hptrack/internal/domain"
)

// newLevel builds a small HEALPix level dataset over (time, cell).
func newLevel(t *testing.T, nt, ncell int) *domain.Dataset {
	t.Helper()
	ds := domain.NewDataset()
	ds.Attrs["title"] = "test"
	require.NoError(t, ds.AddDim("time", nt))
	require.NoError(t, ds.AddDim("cell", ncell))
	require.NoError(t, ds.SetVar(domain.IndexCoord("time", nt)))
	require.NoError(t, ds.SetVar(domain.IndexCoord("cell", ncell)))

	vals := make([]float64, nt*ncell)
	for i := range vals {
		vals[i] = float64(i) / 4
	}
	vals[1] = math.NaN()
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "ar", Dims: []string{"time", "cell"}, DType: domain.Float64, Values: vals,
		Attrs: map[string]any{"units": "1", "valid_min": math.Inf(-1)},
	}))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "crs", DType: domain.Int64, Values: []float64{0},
		Attrs: map[string]any{"grid_mapping_name": "healpix", "healpix_nside": 2, "healpix_order": "nest"},
	}))
	return ds
}

func TestEncodingFor(t *testing.T) {
	ds := newLevel(t, 3, 48)
	enc := EncodingFor(ds)

	ar := enc["ar"]
	assert.Equal(t, domain.Float32, ar.DType)
	assert.Equal(t, []int{24, 4096}, ar.Chunks)
	assert.Equal(t, &Compressor{ID: "blosc", Cname: "zstd", Clevel: 5, Shuffle: 2}, ar.Compressor)

	cell := enc["cell"]
	assert.Equal(t, domain.Int64, cell.DType)
	assert.Equal(t, []int{48}, cell.Chunks)
	assert.Equal(t, 1, cell.Compressor.Shuffle)

	crs := enc["crs"]
	assert.Equal(t, domain.Int64, crs.DType)
	assert.Empty(t, crs.Chunks)
}

func TestEncodingFor_LevelDimension(t *testing.T) {
	ds := domain.NewDataset()
	require.NoError(t, ds.AddDim("time", 1))
	require.NoError(t, ds.AddDim("level", 10))
	require.NoError(t, ds.AddDim("cell", 12))
	require.NoError(t, ds.AddDim("member", 5))
	require.NoError(t, ds.SetVar(&domain.Variable{
		Name: "q", Dims: []string{"time", "level", "cell", "member"}, DType: domain.Int16, Values: make([]float64, 600),
	}))

	q := EncodingFor(ds)["q"]
	assert.Equal(t, []int{24, 4, 1024, 5}, q.Chunks)
	assert.Equal(t, domain.Int16, q.DType)
}

func TestWriteRead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "out_all_hp1_v1.zarr")
	store, err := CreateDirStore(root)
	require.NoError(t, err)

	ds := newLevel(t, 3, 48)
	enc := EncodingFor(ds)
	enc["ar"] = VarEncoding{DType: domain.Float32, Chunks: []int{2, 20}, Compressor: DataCompressor()}
	require.NoError(t, Write(ctx, store, ds, enc))

	// Chunk files use nested keys.
	_, err = os.Stat(filepath.Join(root, "ar", "1", "2"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "crs", "0"))
	require.NoError(t, err)

	var meta map[string]any
	b, err := os.ReadFile(filepath.Join(root, "ar", KeyArray))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &meta))
	assert.Equal(t, "/", meta["dimension_separator"])
	assert.Equal(t, "NaN", meta["fill_value"])
	assert.Equal(t, "<f4", meta["dtype"])
	assert.Equal(t, map[string]any{"id": "blosc", "cname": "zstd", "clevel": 5.0, "shuffle": 2.0, "blocksize": 0.0}, meta["compressor"])

	g, err := Open(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"ar", "cell", "crs", "time"}, g.Names())
	assert.Equal(t, "test", g.Attrs["title"])
	assert.Equal(t, []string{"time", "cell"}, g.Arrays["ar"].Dims)
	assert.Equal(t, "-Infinity", g.Arrays["ar"].Attrs["valid_min"])
	assert.True(t, g.Arrays["cell"].Meta.FillValue.Null)

	out, err := ReadDataset(ctx, store, g)
	require.NoError(t, err)
	require.NoError(t, out.Validate())

	ar, ok := out.Var("ar")
	require.True(t, ok)
	orig, _ := ds.Var("ar")
	require.Len(t, ar.Values, len(orig.Values))
	for i := range orig.Values {
		if math.IsNaN(orig.Values[i]) {
			assert.True(t, math.IsNaN(ar.Values[i]), "index %d", i)
			continue
		}
		assert.InDelta(t, orig.Values[i], ar.Values[i], 1e-6, "index %d", i)
	}
	assert.Equal(t, domain.Float32, ar.DType)

	crs, _ := out.Var("crs")
	assert.Equal(t, []float64{0}, crs.Values)
	assert.Equal(t, "healpix", crs.Attrs["grid_mapping_name"])

	v, err := g.Arrays["ar"].ValueAt(ctx, store, []int{2, 47})
	require.NoError(t, err)
	assert.InDelta(t, orig.Values[2*48+47], v, 1e-6)

	_, err = g.Arrays["ar"].ValueAt(ctx, store, []int{3, 0})
	assert.Error(t, err)
}

func TestCreateDirStore_Exists(t *testing.T) {
	root := t.TempDir()
	_, err := CreateDirStore(root)
	assert.True(t, errors.Is(err, ErrStoreExists))
}

func TestDirStore_GetMissing(t *testing.T) {
	store := &DirStore{Root: t.TempDir()}
	_, err := store.Get(context.Background(), "a/.zarray")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.Get(context.Background(), "../etc/passwd")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestRead_MissingChunkIsFill(t *testing.T) {
	ctx := context.Background()
	store := MemStore{}
	store[KeyGroup] = []byte(`{"zarr_format": 2}`)
	store["x/"+KeyArray] = []byte(`{"zarr_format":2,"shape":[5],"chunks":[2],"dtype":"<f8","compressor":null,"fill_value":-1,"order":"C","filters":null}`)
	store["x/"+KeyAttrs] = []byte(`{"_ARRAY_DIMENSIONS":["x"]}`)
	raw, err := encodeElements([]float64{1, 2}, domain.Float64)
	require.NoError(t, err)
	store["x/1"] = raw

	g, err := Open(ctx, store, "x")
	require.NoError(t, err)
	vals, err := g.Arrays["x"].Read(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -1, 1, 2, -1}, vals)

	ds, err := ReadDataset(ctx, store, g)
	require.NoError(t, err)
	x, _ := ds.Var("x")
	assert.Equal(t, -1.0, x.Attrs[domain.AttrFillValue])
}

func TestRead_BigEndianAndHalf(t *testing.T) {
	ctx := context.Background()
	store := MemStore{}
	store["h/"+KeyArray] = []byte(`{"zarr_format":2,"shape":[3],"chunks":[3],"dtype":"<f2","compressor":{"id":"zlib","level":1},"fill_value":"NaN","order":"C","filters":null}`)
	half := []byte{0x00, 0x3c, 0x00, 0xc0, 0x00, 0x7e} // 1, -2, NaN
	c, err := compress(&Compressor{ID: "zlib", Level: 1}, half, 2)
	require.NoError(t, err)
	store["h/0"] = c

	store["b/"+KeyArray] = []byte(`{"zarr_format":2,"shape":[2],"chunks":[2],"dtype":">i4","compressor":null,"fill_value":null,"order":"C","filters":null}`)
	store["b/0"] = []byte{0, 0, 0, 7, 0xff, 0xff, 0xff, 0xfe}

	h, err := OpenArray(ctx, store, "h")
	require.NoError(t, err)
	vals, err := h.Read(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1.0, vals[0])
	assert.Equal(t, -2.0, vals[1])
	assert.True(t, math.IsNaN(vals[2]))
	assert.Equal(t, []string{"dim_0"}, h.Dims)

	b, err := OpenArray(ctx, store, "b")
	require.NoError(t, err)
	vals, err = b.Read(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, -2}, vals)
}

func TestHalfConversion(t *testing.T) {
	for _, f := range []float32{0, 1, -2, 0.5, 65504, 6.103515625e-05, 5.960464477539063e-08} {
		assert.Equal(t, f, halfToFloat32(float32ToHalf(f)), "%v", f)
	}
	assert.True(t, math.IsInf(float64(halfToFloat32(float32ToHalf(1e6))), 1))
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "0", ChunkKey(nil, "/"))
	assert.Equal(t, "3", ChunkKey([]int{3}, "/"))
	assert.Equal(t, "1/0/2", ChunkKey([]int{1, 0, 2}, "/"))
	assert.Equal(t, "1.0", ChunkKey([]int{1, 0}, "."))
	assert.Equal(t, []int{3, 1}, GridShape([]int{5, 4}, []int{2, 24}))
}

func TestMetadata_Validate(t *testing.T) {
	var m ArrayMetadata
	require.NoError(t, json.Unmarshal([]byte(`{"zarr_format":2,"shape":[4],"chunks":[2],"dtype":"<f8","compressor":{"id":"blosc","cname":"lz4","clevel":5},"fill_value":"NaN","order":"F","filters":null}`), &m))
	assert.Error(t, m.Validate())
	assert.Equal(t, 1, m.Compressor.Shuffle)
	assert.Equal(t, ".", m.Separator())
}

func TestJSONAttrs_TypedValues(t *testing.T) {
	out := jsonAttrs(map[string]any{
		"ne":    int32(1024),
		"flags": []uint8{1, 2},
		"scale": float32(math.Inf(-1)),
	})
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ne":1024,"flags":[1,2],"scale":"-Infinity"}`, string(b))
}
