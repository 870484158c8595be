package zarr

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.ngs.io/hptrack/internal/domain"
)

// Write stores ds as a consolidated Zarr v2 group.
func Write(ctx context.Context, store WritableStore, ds *domain.Dataset, enc Encoding) error {
	consolidated := map[string]json.RawMessage{}
	put := func(key string, doc any) error {
		b, err := json.MarshalIndent(doc, "", "    ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if err := store.Set(ctx, key, b); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}
		consolidated[key] = b
		return nil
	}

	if err := put(KeyGroup, GroupMetadata{ZarrFormat: 2}); err != nil {
		return err
	}
	if err := put(KeyAttrs, jsonAttrs(ds.Attrs)); err != nil {
		return err
	}

	for _, v := range ds.Vars() {
		if err := writeArray(ctx, store, ds, v, enc, put); err != nil {
			return fmt.Errorf("variable %q: %w", v.Name, err)
		}
	}

	b, err := json.MarshalIndent(ConsolidatedMetadata{Metadata: consolidated, Format: 1}, "", "    ")
	if err != nil {
		return err
	}
	return store.Set(ctx, KeyConsolidated, b)
}

func writeArray(ctx context.Context, store WritableStore, ds *domain.Dataset, v *domain.Variable, enc Encoding, put func(string, any) error) error {
	shape, err := ds.Shape(v)
	if err != nil {
		return err
	}
	ve, ok := enc[v.Name]
	if !ok {
		ve = VarEncoding{DType: v.DType, Chunks: fullChunks(shape)}
	}
	if ve.DType == "" {
		ve.DType = v.DType
	}
	if len(ve.Chunks) != len(shape) {
		return fmt.Errorf("chunks %v do not match shape %v", ve.Chunks, shape)
	}

	meta := ArrayMetadata{
		ZarrFormat:         2,
		Shape:              shape,
		Chunks:             ve.Chunks,
		DType:              DTypeString(ve.DType),
		Compressor:         ve.Compressor,
		FillValue:          NullFill,
		Order:              "C",
		DimensionSeparator: ChunkKeySeparator,
	}
	if meta.DType == "" {
		return fmt.Errorf("unsupported dtype %q", ve.DType)
	}
	pad := 0.0
	if ve.DType.IsFloat() {
		meta.FillValue = NaNFill
		pad = math.NaN()
	}

	attrs := jsonAttrs(v.Attrs)
	attrs[DimensionsAttr] = append([]string{}, v.Dims...)
	if err := put(v.Name+"/"+KeyArray, meta); err != nil {
		return err
	}
	if err := put(v.Name+"/"+KeyAttrs, attrs); err != nil {
		return err
	}

	chunkLen := product(ve.Chunks)
	buf := make([]float64, chunkLen)
	return forEachChunk(GridShape(shape, ve.Chunks), func(idx []int) error {
		origin := make([]int, len(idx))
		for i := range idx {
			origin[i] = idx[i] * ve.Chunks[i]
		}
		for i := range buf {
			buf[i] = pad
		}
		copyRegion(v.Values, shape, buf, ve.Chunks, origin, true)

		raw, err := encodeElements(buf, ve.DType)
		if err != nil {
			return err
		}
		data, err := compress(ve.Compressor, raw, ve.DType.Size())
		if err != nil {
			return fmt.Errorf("compress chunk %v: %w", idx, err)
		}
		return store.Set(ctx, v.Name+"/"+ChunkKey(idx, ChunkKeySeparator), data)
	})
}

// forEachChunk visits every position of a chunk grid in C order. A 0-d
// grid has one position.
func forEachChunk(grid []int, fn func(idx []int) error) error {
	for _, g := range grid {
		if g == 0 {
			return nil
		}
	}
	idx := make([]int, len(grid))
	for {
		if err := fn(idx); err != nil {
			return err
		}
		d := len(grid) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < grid[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

// copyRegion copies between a full array and one chunk whose first element
// sits at origin. With toChunk set the array is the source.
func copyRegion(array []float64, shape []int, chunk []float64, chunks, origin []int, toChunk bool) {
	rank := len(shape)
	if rank == 0 {
		if toChunk {
			chunk[0] = array[0]
		} else {
			array[0] = chunk[0]
		}
		return
	}

	// Extent of the chunk that lies inside the array.
	extent := make([]int, rank)
	for i := range shape {
		extent[i] = min(chunks[i], shape[i]-origin[i])
		if extent[i] <= 0 {
			return
		}
	}
	run := extent[rank-1]

	pos := make([]int, rank-1)
	for {
		aOff, cOff := 0, 0
		for i := 0; i < rank-1; i++ {
			aOff = aOff*shape[i] + origin[i] + pos[i]
			cOff = cOff*chunks[i] + pos[i]
		}
		aOff = aOff*shape[rank-1] + origin[rank-1]
		cOff *= chunks[rank-1]
		if toChunk {
			copy(chunk[cOff:cOff+run], array[aOff:aOff+run])
		} else {
			copy(array[aOff:aOff+run], chunk[cOff:cOff+run])
		}

		d := rank - 2
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < extent[d] {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return
		}
	}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// jsonAttrs copies attributes, replacing non-finite floats with the strings
// used by xarray.
func jsonAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		switch x := v.(type) {
		case float64:
			out[k] = jsonFloat(x)
		case float32:
			out[k] = jsonFloat(float64(x))
		case []float64:
			vals := make([]any, len(x))
			for i, f := range x {
				vals[i] = jsonFloat(f)
			}
			out[k] = vals
		case []float32:
			vals := make([]any, len(x))
			for i, f := range x {
				vals[i] = jsonFloat(float64(f))
			}
			out[k] = vals
		case []uint8:
			// Numbers, not base64.
			vals := make([]int, len(x))
			for i, b := range x {
				vals[i] = int(b)
			}
			out[k] = vals
		default:
			out[k] = v
		}
	}
	return out
}

func jsonFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}
