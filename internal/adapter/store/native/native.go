// Package native reads netCDF classic and netCDF-4 files without cgo.
package native

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"go.ngs.io/hptrack/internal/domain"
)

// Read loads every variable of the root group of the file at path.
func Read(path string) (*domain.Dataset, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer g.Close()
	return ReadGroup(g)
}

// ReadGroup loads the variables of an open group.
func ReadGroup(g api.Group) (*domain.Dataset, error) {
	ds := domain.NewDataset()
	ds.Attrs = attrs(g.Attributes())

	for _, name := range g.ListVariables() {
		v, err := g.GetVariable(name)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		nv, shape, err := variable(g, name, v)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		for i, d := range nv.Dims {
			if err := ds.AddDim(d, shape[i]); err != nil {
				return nil, fmt.Errorf("variable %q: %w", name, err)
			}
		}
		if err := ds.SetVar(nv); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

var kinds = map[reflect.Kind]domain.DType{
	reflect.Float32: domain.Float32,
	reflect.Float64: domain.Float64,
	reflect.Int8:    domain.Int8,
	reflect.Int16:   domain.Int16,
	reflect.Int32:   domain.Int32,
	reflect.Int64:   domain.Int64,
	reflect.Uint8:   domain.Uint8,
	reflect.Uint16:  domain.Uint16,
	reflect.Uint32:  domain.Uint32,
	reflect.Uint64:  domain.Uint64,
	reflect.String:  domain.String,
}

// variable converts the nested slices returned by the reader and reports
// the length of each dimension.
func variable(g api.Group, name string, v *api.Variable) (*domain.Variable, []int, error) {
	rv := reflect.ValueOf(v.Values)
	if !rv.IsValid() {
		return nil, nil, fmt.Errorf("no values")
	}
	dtype, ok := kinds[elemKind(rv.Type())]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported element type %s", rv.Type())
	}
	nv := &domain.Variable{
		Name:  name,
		Dims:  append([]string{}, v.Dimensions...),
		DType: dtype,
		Attrs: attrs(v.Attributes),
	}
	shape := shapeOf(rv)

	if dtype == domain.String {
		var strs []string
		walk(rv, func(e reflect.Value) { strs = append(strs, e.String()) })
		if isChar(g, name, len(shape), len(nv.Dims)) {
			width := charWidth(g, nv.Dims, strs)
			nv.DType = domain.Char
			nv.Raw = pad(strs, width)
			if len(nv.Dims) > 0 {
				shape = append(shape, width)
			}
		} else {
			nv.Raw = strs
		}
	} else {
		nv.Values, nv.Raw = numbers(rv, dtype)
	}

	if len(shape) != len(nv.Dims) {
		return nil, nil, fmt.Errorf("rank %d with %d dimensions", len(shape), len(nv.Dims))
	}
	return nv, shape, nil
}

func elemKind(t reflect.Type) reflect.Kind {
	for t.Kind() == reflect.Slice {
		t = t.Elem()
	}
	return t.Kind()
}

// shapeOf returns the lengths of nested slices in row-major order.
func shapeOf(rv reflect.Value) []int {
	var shape []int
	for v := rv; v.Kind() == reflect.Slice; {
		shape = append(shape, v.Len())
		if v.Len() == 0 {
			for et := v.Type().Elem(); et.Kind() == reflect.Slice; et = et.Elem() {
				shape = append(shape, 0)
			}
			break
		}
		v = v.Index(0)
	}
	return shape
}

// walk visits the scalar elements of nested slices in row-major order.
func walk(v reflect.Value, fn func(reflect.Value)) {
	if v.Kind() == reflect.Slice {
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i), fn)
		}
		return
	}
	fn(v)
}

// numbers flattens numeric values. 64-bit integers also keep their exact
// values.
func numbers(rv reflect.Value, dtype domain.DType) ([]float64, any) {
	var (
		values []float64
		ints   []int64
		uints  []uint64
	)
	walk(rv, func(e reflect.Value) {
		switch {
		case e.CanFloat():
			values = append(values, e.Float())
		case e.CanInt():
			values = append(values, float64(e.Int()))
			if dtype == domain.Int64 {
				ints = append(ints, e.Int())
			}
		case e.CanUint():
			values = append(values, float64(e.Uint()))
			if dtype == domain.Uint64 {
				uints = append(uints, e.Uint())
			}
		}
	})
	switch dtype {
	case domain.Int64:
		if ints == nil {
			ints = []int64{}
		}
		return values, ints
	case domain.Uint64:
		if uints == nil {
			uints = []uint64{}
		}
		return values, uints
	}
	return values, nil
}

// isChar reports whether strings read for a variable are rows of a
// character array, whose last dimension the reader folds into each string.
func isChar(g api.Group, name string, rank, ndims int) bool {
	if ndims > 0 {
		return rank == ndims-1
	}
	vg, err := g.GetVarGetter(name)
	return err == nil && vg.Type() == "char"
}

func charWidth(g api.Group, dims []string, strs []string) int {
	if len(dims) == 0 {
		return 1
	}
	if n, ok := g.GetDimension(dims[len(dims)-1]); ok && n > 0 {
		return int(n)
	}
	width := 0
	for _, s := range strs {
		width = max(width, len(s))
	}
	return width
}

// pad lays strings out in fixed-width NUL-padded rows.
func pad(strs []string, width int) []byte {
	buf := make([]byte, len(strs)*width)
	for i, s := range strs {
		copy(buf[i*width:(i+1)*width], s)
	}
	return buf
}

// attrs copies attribute values in their own Go types. Single-element
// numeric attributes become scalars.
func attrs(m api.AttributeMap) map[string]any {
	out := map[string]any{}
	if m == nil {
		return out
	}
	for _, k := range m.Keys() {
		raw, _ := m.Get(k)
		out[k] = attrValue(raw)
	}
	return out
}

func attrValue(raw any) any {
	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice && rv.Len() == 1 {
		return rv.Index(0).Interface()
	}
	return raw
}
