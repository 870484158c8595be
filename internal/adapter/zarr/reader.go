package zarr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"go.ngs.io/hptrack/internal/domain"
)

// Array is an opened Zarr v2 array.
type Array struct {
	Name  string
	Meta  ArrayMetadata
	Attrs map[string]any
	Dims  []string

	dtype domain.DType
	order binary.ByteOrder
}

// DType returns the in-memory type of the array.
func (a *Array) DType() domain.DType {
	return a.dtype
}

func newArray(name string, metaJSON, attrsJSON []byte) (*Array, error) {
	a := &Array{Name: name, Attrs: map[string]any{}}
	if err := json.Unmarshal(metaJSON, &a.Meta); err != nil {
		return nil, fmt.Errorf("parse %s/%s: %w", name, KeyArray, err)
	}
	if err := a.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	a.dtype, a.order, _ = ParseDType(a.Meta.DType)

	if attrsJSON != nil {
		if err := json.Unmarshal(attrsJSON, &a.Attrs); err != nil {
			return nil, fmt.Errorf("parse %s/%s: %w", name, KeyAttrs, err)
		}
	}
	if raw, ok := a.Attrs[DimensionsAttr]; ok {
		dims, err := cast.ToStringSliceE(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", name, DimensionsAttr, err)
		}
		a.Dims = dims
		delete(a.Attrs, DimensionsAttr)
	}
	if a.Dims == nil {
		for i := range a.Meta.Shape {
			a.Dims = append(a.Dims, fmt.Sprintf("dim_%d", i))
		}
	}
	if len(a.Dims) != len(a.Meta.Shape) {
		return nil, fmt.Errorf("%s: %d dimension names for rank %d", name, len(a.Dims), len(a.Meta.Shape))
	}
	return a, nil
}

// OpenArray reads the metadata of the array stored under name.
func OpenArray(ctx context.Context, store Store, name string) (*Array, error) {
	meta, err := store.Get(ctx, name+"/"+KeyArray)
	if err != nil {
		return nil, err
	}
	attrs, err := store.Get(ctx, name+"/"+KeyAttrs)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return newArray(name, meta, attrs)
}

func (a *Array) readChunk(ctx context.Context, store Store, idx []int) ([]float64, error) {
	n := product(a.Meta.Chunks)
	data, err := store.Get(ctx, a.Name+"/"+ChunkKey(idx, a.Meta.Separator()))
	if errors.Is(err, ErrNotFound) {
		fill := a.Meta.FillValue.Float()
		out := make([]float64, n)
		for i := range out {
			out[i] = fill
		}
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := decompress(a.Meta.Compressor, data)
	if err != nil {
		return nil, fmt.Errorf("chunk %v: %w", idx, err)
	}
	return decodeElements(raw, a.dtype, a.order, n)
}

// Read loads the whole array in C order.
func (a *Array) Read(ctx context.Context, store Store) ([]float64, error) {
	shape := a.Meta.Shape
	out := make([]float64, product(shape))
	err := forEachChunk(GridShape(shape, a.Meta.Chunks), func(idx []int) error {
		chunk, err := a.readChunk(ctx, store, idx)
		if err != nil {
			return err
		}
		origin := make([]int, len(idx))
		for i := range idx {
			origin[i] = idx[i] * a.Meta.Chunks[i]
		}
		copyRegion(out, shape, chunk, a.Meta.Chunks, origin, false)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.Name, err)
	}
	return out, nil
}

// ValueAt reads a single element, loading only the chunk that holds it.
func (a *Array) ValueAt(ctx context.Context, store Store, index []int) (float64, error) {
	if len(index) != len(a.Meta.Shape) {
		return 0, fmt.Errorf("%s: index %v has rank %d, want %d", a.Name, index, len(index), len(a.Meta.Shape))
	}
	idx := make([]int, len(index))
	off := 0
	for i, x := range index {
		if x < 0 || x >= a.Meta.Shape[i] {
			return 0, fmt.Errorf("%s: index %v out of range for shape %v", a.Name, index, a.Meta.Shape)
		}
		idx[i] = x / a.Meta.Chunks[i]
		off = off*a.Meta.Chunks[i] + x%a.Meta.Chunks[i]
	}
	chunk, err := a.readChunk(ctx, store, idx)
	if err != nil {
		return 0, err
	}
	return chunk[off], nil
}

// Group is an opened Zarr v2 group.
type Group struct {
	Attrs  map[string]any
	Arrays map[string]*Array
}

// Names returns the array names in lexical order.
func (g *Group) Names() []string {
	return slices.Sorted(maps.Keys(g.Arrays))
}

// OpenConsolidated opens a group from its .zmetadata document.
func OpenConsolidated(ctx context.Context, store Store) (*Group, error) {
	b, err := store.Get(ctx, KeyConsolidated)
	if err != nil {
		return nil, err
	}
	var cm ConsolidatedMetadata
	if err := json.Unmarshal(b, &cm); err != nil {
		return nil, fmt.Errorf("parse %s: %w", KeyConsolidated, err)
	}
	g := &Group{Attrs: map[string]any{}, Arrays: map[string]*Array{}}
	if raw, ok := cm.Metadata[KeyAttrs]; ok {
		if err := json.Unmarshal(raw, &g.Attrs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", KeyAttrs, err)
		}
	}
	for key, raw := range cm.Metadata {
		name, ok := strings.CutSuffix(key, "/"+KeyArray)
		if !ok || strings.Contains(name, "/") {
			continue
		}
		a, err := newArray(name, raw, cm.Metadata[name+"/"+KeyAttrs])
		if err != nil {
			return nil, err
		}
		g.Arrays[name] = a
	}
	return g, nil
}

// OpenGroup opens the named arrays of a group without consolidated
// metadata.
func OpenGroup(ctx context.Context, store Store, names ...string) (*Group, error) {
	if _, err := store.Get(ctx, KeyGroup); err != nil {
		return nil, err
	}
	g := &Group{Attrs: map[string]any{}, Arrays: map[string]*Array{}}
	b, err := store.Get(ctx, KeyAttrs)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &g.Attrs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", KeyAttrs, err)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	for _, name := range names {
		a, err := OpenArray(ctx, store, name)
		if err != nil {
			return nil, err
		}
		g.Arrays[name] = a
	}
	return g, nil
}

// Open opens a group, preferring consolidated metadata. names are opened
// individually when the store has none.
func Open(ctx context.Context, store Store, names ...string) (*Group, error) {
	g, err := OpenConsolidated(ctx, store)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return OpenGroup(ctx, store, names...)
}

// ReadDataset loads arrays of a group into a dataset. With no names every
// array of the group is read. A non-NaN fill value is exposed as the
// _FillValue attribute.
func ReadDataset(ctx context.Context, store Store, g *Group, names ...string) (*domain.Dataset, error) {
	if len(names) == 0 {
		names = g.Names()
	} else {
		names = slices.Clone(names)
	}
	ds := domain.NewDataset()
	maps.Copy(ds.Attrs, g.Attrs)

	sort.SliceStable(names, func(i, j int) bool {
		ci, cj := isDimArray(g, names[i]), isDimArray(g, names[j])
		return ci && !cj
	})
	for _, name := range names {
		a, ok := g.Arrays[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		for i, d := range a.Dims {
			if err := ds.AddDim(d, a.Meta.Shape[i]); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		values, err := a.Read(ctx, store)
		if err != nil {
			return nil, err
		}
		attrs := maps.Clone(a.Attrs)
		if f := a.Meta.FillValue; !f.Null && !math.IsNaN(f.Value) {
			if _, set := attrs[domain.AttrFillValue]; !set {
				attrs[domain.AttrFillValue] = f.Value
			}
		}
		v := &domain.Variable{
			Name:   name,
			Dims:   slices.Clone(a.Dims),
			DType:  a.dtype,
			Values: values,
			Attrs:  attrs,
		}
		if err := ds.SetVar(v); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func isDimArray(g *Group, name string) bool {
	a, ok := g.Arrays[name]
	return ok && len(a.Dims) == 1 && a.Dims[0] == name
}
