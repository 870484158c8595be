package domain

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// DType names the storage type of a variable.
type DType string

// Supported storage types.
const (
	Float16 DType = "float16"
	Float32 DType = "float32"
	Float64 DType = "float64"
	Int8    DType = "int8"
	Int16   DType = "int16"
	Int32   DType = "int32"
	Int64   DType = "int64"
	Uint8   DType = "uint8"
	Uint16  DType = "uint16"
	Uint32  DType = "uint32"
	Uint64  DType = "uint64"

	// Char is a netCDF character array; the last dimension holds the
	// characters of each string.
	Char DType = "char"
	// String holds one variable-length string per element.
	String DType = "string"
)

// IsFloat reports whether t is a floating point type.
func (t DType) IsFloat() bool {
	return t == Float16 || t == Float32 || t == Float64
}

// IsText reports whether t holds characters rather than numbers.
func (t DType) IsText() bool {
	return t == Char || t == String
}

// Size returns the width of one element in bytes.
func (t DType) Size() int {
	switch t {
	case Int8, Uint8, Char:
		return 1
	case Float16, Int16, Uint16:
		return 2
	case Float32, Int32, Uint32:
		return 4
	default:
		return 8
	}
}

// ErrNoCoordinate is returned when a required coordinate variable is missing.
var ErrNoCoordinate = errors.New("coordinate variable not found")

// Dim is a named dimension.
type Dim struct {
	Name string
	Len  int
}

// Variable is an n-dimensional array stored in row-major order.
//
// Numeric values are held as float64 regardless of DType; DType records
// how the variable is stored on disk. Raw keeps the exact payload where
// float64 cannot: []byte for Char, []string for String, and []int64 or
// []uint64 alongside Values for Int64 and Uint64. Text variables have no
// Values. A Variable must not be modified after it has been added to a
// Dataset.
type Variable struct {
	Name   string
	Dims   []string
	DType  DType
	Values []float64
	Raw    any
	Attrs  map[string]any
}

// Len returns the number of elements held by v.
func (v *Variable) Len() int {
	switch r := v.Raw.(type) {
	case []byte:
		return len(r)
	case []string:
		return len(r)
	}
	return len(v.Values)
}

// check verifies that v holds n elements and that Raw matches DType.
func (v *Variable) check(n int) error {
	switch r := v.Raw.(type) {
	case nil:
		if v.DType.IsText() {
			return fmt.Errorf("variable %q: %s without text payload", v.Name, v.DType)
		}
	case []byte:
		if v.DType != Char {
			return fmt.Errorf("variable %q: byte payload for %s", v.Name, v.DType)
		}
	case []string:
		if v.DType != String {
			return fmt.Errorf("variable %q: string payload for %s", v.Name, v.DType)
		}
	case []int64:
		if v.DType != Int64 || len(r) != len(v.Values) {
			return fmt.Errorf("variable %q: int64 payload does not match %s values", v.Name, v.DType)
		}
	case []uint64:
		if v.DType != Uint64 || len(r) != len(v.Values) {
			return fmt.Errorf("variable %q: uint64 payload does not match %s values", v.Name, v.DType)
		}
	default:
		return fmt.Errorf("variable %q: unsupported payload %T", v.Name, v.Raw)
	}
	if v.Len() != n {
		return fmt.Errorf("variable %q: %d values for %d elements", v.Name, v.Len(), n)
	}
	return nil
}

// Dataset is a collection of variables sharing named dimensions.
//
// Transformations never mutate a Dataset in place: they return a new one
// that shares the untouched variables.
type Dataset struct {
	dims  []Dim
	vars  []*Variable
	Attrs map[string]any
}

// NewDataset returns an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{Attrs: map[string]any{}}
}

// Dims returns the dimensions in declaration order.
func (ds *Dataset) Dims() []Dim {
	return slices.Clone(ds.dims)
}

// DimLen returns the length of the named dimension.
func (ds *Dataset) DimLen(name string) (int, bool) {
	for _, d := range ds.dims {
		if d.Name == name {
			return d.Len, true
		}
	}
	return 0, false
}

// HasDim reports whether the dataset declares the named dimension.
func (ds *Dataset) HasDim(name string) bool {
	_, ok := ds.DimLen(name)
	return ok
}

// AddDim declares a dimension. Re-declaring with the same length is a no-op.
func (ds *Dataset) AddDim(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("dimension %q: negative length %d", name, n)
	}
	if cur, ok := ds.DimLen(name); ok {
		if cur != n {
			return fmt.Errorf("dimension %q: length %d conflicts with existing length %d", name, n, cur)
		}
		return nil
	}
	ds.dims = append(ds.dims, Dim{Name: name, Len: n})
	return nil
}

// Vars returns the variables in declaration order.
func (ds *Dataset) Vars() []*Variable {
	return slices.Clone(ds.vars)
}

// VarNames returns the variable names in declaration order.
func (ds *Dataset) VarNames() []string {
	names := make([]string, len(ds.vars))
	for i, v := range ds.vars {
		names[i] = v.Name
	}
	return names
}

// Var looks up a variable by name.
func (ds *Dataset) Var(name string) (*Variable, bool) {
	for _, v := range ds.vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// IsCoord reports whether name is a dimension coordinate variable.
func (ds *Dataset) IsCoord(name string) bool {
	v, ok := ds.Var(name)
	return ok && len(v.Dims) == 1 && v.Dims[0] == name
}

// Shape returns the shape of v according to the dataset dimensions.
func (ds *Dataset) Shape(v *Variable) ([]int, error) {
	shape := make([]int, len(v.Dims))
	for i, d := range v.Dims {
		n, ok := ds.DimLen(d)
		if !ok {
			return nil, fmt.Errorf("variable %q: undeclared dimension %q", v.Name, d)
		}
		shape[i] = n
	}
	return shape, nil
}

// SetVar adds v, replacing any variable with the same name in place.
func (ds *Dataset) SetVar(v *Variable) error {
	shape, err := ds.Shape(v)
	if err != nil {
		return err
	}
	if err := v.check(product(shape)); err != nil {
		return fmt.Errorf("shape %v: %w", shape, err)
	}
	if v.Attrs == nil {
		v.Attrs = map[string]any{}
	}
	for i, cur := range ds.vars {
		if cur.Name == v.Name {
			ds.vars[i] = v
			return nil
		}
	}
	ds.vars = append(ds.vars, v)
	return nil
}

// Copy returns a shallow copy: variables are shared, containers are not.
func (ds *Dataset) Copy() *Dataset {
	attrs := maps.Clone(ds.Attrs)
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Dataset{
		dims:  slices.Clone(ds.dims),
		vars:  slices.Clone(ds.vars),
		Attrs: attrs,
	}
}

// DropVars returns a copy without the named variables. Dimensions no longer
// referenced by any variable are dropped too.
func (ds *Dataset) DropVars(names ...string) *Dataset {
	out := ds.Copy()
	out.vars = slices.DeleteFunc(out.vars, func(v *Variable) bool {
		return slices.Contains(names, v.Name)
	})
	out.pruneDims()
	return out
}

func (ds *Dataset) pruneDims() {
	used := map[string]bool{}
	for _, v := range ds.vars {
		for _, d := range v.Dims {
			used[d] = true
		}
	}
	ds.dims = slices.DeleteFunc(ds.dims, func(d Dim) bool { return !used[d.Name] })
}

// RenameDim renames a dimension, its coordinate variable and every
// reference to it. It is a no-op when from is not declared.
func (ds *Dataset) RenameDim(from, to string) (*Dataset, error) {
	if !ds.HasDim(from) {
		return ds, nil
	}
	if ds.HasDim(to) {
		return nil, fmt.Errorf("rename %q to %q: dimension already exists", from, to)
	}
	out := ds.Copy()
	for i, d := range out.dims {
		if d.Name == from {
			out.dims[i].Name = to
		}
	}
	for i, v := range out.vars {
		if v.Name != from && !slices.Contains(v.Dims, from) {
			continue
		}
		nv := v.Clone()
		if nv.Name == from {
			nv.Name = to
		}
		for j, d := range nv.Dims {
			if d == from {
				nv.Dims[j] = to
			}
		}
		out.vars[i] = nv
	}
	return out, nil
}

// EnsureIndexCoords adds an int64 index coordinate for every used dimension
// that has no coordinate variable.
func (ds *Dataset) EnsureIndexCoords() *Dataset {
	var missing []Dim
	for _, d := range ds.dims {
		if ds.IsCoord(d.Name) {
			continue
		}
		if _, clash := ds.Var(d.Name); clash {
			continue
		}
		missing = append(missing, d)
	}
	if len(missing) == 0 {
		return ds
	}
	out := ds.Copy()
	for _, d := range missing {
		out.vars = append(out.vars, IndexCoord(d.Name, d.Len))
	}
	return out
}

// Validate checks the dataset invariants: declared dimensions, value counts,
// and a 1-D coordinate of matching length for every used dimension.
func (ds *Dataset) Validate() error {
	used := map[string]bool{}
	for _, v := range ds.vars {
		shape, err := ds.Shape(v)
		if err != nil {
			return err
		}
		if err := v.check(product(shape)); err != nil {
			return fmt.Errorf("shape %v: %w", shape, err)
		}
		for _, d := range v.Dims {
			used[d] = true
		}
	}
	for _, d := range ds.dims {
		if !used[d.Name] {
			continue
		}
		c, ok := ds.Var(d.Name)
		if !ok || len(c.Dims) != 1 || c.Dims[0] != d.Name {
			return fmt.Errorf("dimension %q: %w", d.Name, ErrNoCoordinate)
		}
		if c.Len() != d.Len {
			return fmt.Errorf("dimension %q: coordinate has %d values, want %d", d.Name, c.Len(), d.Len)
		}
	}
	return nil
}

// Clone returns a copy of v sharing its payload. Dims and Attrs are copied
// so the result can be edited freely.
func (v *Variable) Clone() *Variable {
	nv := v.With(v.Values)
	nv.Raw = v.Raw
	return nv
}

// With returns a numeric copy of v holding values. Any raw payload is
// dropped. Dims and Attrs are copied so the result can be edited freely.
func (v *Variable) With(values []float64) *Variable {
	attrs := maps.Clone(v.Attrs)
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &Variable{
		Name:   v.Name,
		Dims:   slices.Clone(v.Dims),
		DType:  v.DType,
		Values: values,
		Attrs:  attrs,
	}
}

// HasDim reports whether v is indexed by the named dimension.
func (v *Variable) HasDim(name string) bool {
	return slices.Contains(v.Dims, name)
}

// IndexCoord builds an int64 coordinate 0..n-1.
func IndexCoord(name string, n int) *Variable {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	return &Variable{Name: name, Dims: []string{name}, DType: Int64, Values: vals, Attrs: map[string]any{}}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// axisLayout splits shape around axis into outer, axis length and inner
// strides for row-major traversal.
func axisLayout(shape []int, axis int) (outer, n, inner int) {
	outer = product(shape[:axis])
	n = shape[axis]
	inner = product(shape[axis+1:])
	return outer, n, inner
}

// Isel selects positions idx along dim for every variable indexed by it.
// The dimension takes the length of idx.
func (ds *Dataset) Isel(dim string, idx []int) (*Dataset, error) {
	n, ok := ds.DimLen(dim)
	if !ok {
		return nil, fmt.Errorf("isel: unknown dimension %q", dim)
	}
	for _, i := range idx {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("isel: index %d out of range for %q (len %d)", i, dim, n)
		}
	}
	out := ds.Copy()
	for i, d := range out.dims {
		if d.Name == dim {
			out.dims[i].Len = len(idx)
		}
	}
	for i, v := range out.vars {
		axis := slices.Index(v.Dims, dim)
		if axis < 0 {
			continue
		}
		shape, err := ds.Shape(v)
		if err != nil {
			return nil, err
		}
		nv := v.Clone()
		if v.Values != nil {
			nv.Values = selectAxis(v.Values, shape, axis, idx)
		}
		switch r := v.Raw.(type) {
		case []byte:
			nv.Raw = selectAxis(r, shape, axis, idx)
		case []string:
			nv.Raw = selectAxis(r, shape, axis, idx)
		case []int64:
			nv.Raw = selectAxis(r, shape, axis, idx)
		case []uint64:
			nv.Raw = selectAxis(r, shape, axis, idx)
		}
		out.vars[i] = nv
	}
	return out, nil
}

// selectAxis gathers positions idx along axis of a row-major array.
func selectAxis[T any](src []T, shape []int, axis int, idx []int) []T {
	outer, size, inner := axisLayout(shape, axis)
	dst := make([]T, outer*len(idx)*inner)
	for o := 0; o < outer; o++ {
		for k, i := range idx {
			copy(dst[(o*len(idx)+k)*inner:(o*len(idx)+k+1)*inner], src[(o*size+i)*inner:(o*size+i+1)*inner])
		}
	}
	return dst
}
