// Package netcdf reads and writes datasets with the netCDF C library.
package netcdf

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	nc "github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/hptrack/internal/domain"
)

// Attributes whose type must match the variable type.
var typedAttrs = []string{domain.AttrFillValue, domain.AttrMissingValue, "valid_min", "valid_max", "valid_range"}

var ncTypes = map[domain.DType]nc.Type{
	domain.Float16: nc.FLOAT,
	domain.Float32: nc.FLOAT,
	domain.Float64: nc.DOUBLE,
	domain.Int8:    nc.BYTE,
	domain.Uint8:   nc.UBYTE,
	domain.Int16:   nc.SHORT,
	domain.Uint16:  nc.USHORT,
	domain.Int32:   nc.INT,
	domain.Uint32:  nc.UINT,
	domain.Int64:   nc.INT64,
	domain.Uint64:  nc.UINT64,
	domain.Char:    nc.CHAR,
}

var dtypes = map[nc.Type]domain.DType{
	nc.FLOAT:  domain.Float32,
	nc.DOUBLE: domain.Float64,
	nc.BYTE:   domain.Int8,
	nc.UBYTE:  domain.Uint8,
	nc.SHORT:  domain.Int16,
	nc.USHORT: domain.Uint16,
	nc.INT:    domain.Int32,
	nc.UINT:   domain.Uint32,
	nc.INT64:  domain.Int64,
	nc.UINT64: domain.Uint64,
	nc.CHAR:   domain.Char,
}

// Attribute types by Go element kind.
var attrTypes = map[reflect.Kind]nc.Type{
	reflect.Float32: nc.FLOAT,
	reflect.Float64: nc.DOUBLE,
	reflect.Int8:    nc.BYTE,
	reflect.Uint8:   nc.UBYTE,
	reflect.Int16:   nc.SHORT,
	reflect.Uint16:  nc.USHORT,
	reflect.Int32:   nc.INT,
	reflect.Uint32:  nc.UINT,
	reflect.Int:     nc.INT64,
	reflect.Int64:   nc.INT64,
	reflect.Uint:    nc.UINT64,
	reflect.Uint64:  nc.UINT64,
}

// ErrStringType is returned for netCDF-4 string variables, which the C
// bindings cannot transfer.
var ErrStringType = errors.New("netCDF string type is not supported")

// Write stores ds as a netCDF-4 file at path, replacing any existing file.
// Float16 variables are widened to float32.
func Write(path string, ds *domain.Dataset) (err error) {
	f, err := nc.CreateFile(path, nc.CLOBBER|nc.NETCDF4)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	dims := map[string]nc.Dim{}
	for _, d := range ds.Dims() {
		nd, err := f.AddDim(d.Name, uint64(d.Len))
		if err != nil {
			return fmt.Errorf("dimension %q: %w", d.Name, err)
		}
		dims[d.Name] = nd
	}

	for _, k := range sortedKeys(ds.Attrs) {
		if err := writeAttr(f.Attr(k), ds.Attrs[k], nc.DOUBLE, false); err != nil {
			return fmt.Errorf("global attribute %q: %w", k, err)
		}
	}

	vars := make([]nc.Var, 0, len(ds.Vars()))
	for _, v := range ds.Vars() {
		t, ok := ncTypes[v.DType]
		if !ok {
			if v.DType == domain.String {
				return fmt.Errorf("variable %q: %w", v.Name, ErrStringType)
			}
			return fmt.Errorf("variable %q: unsupported dtype %q", v.Name, v.DType)
		}
		vd := make([]nc.Dim, len(v.Dims))
		for i, d := range v.Dims {
			vd[i] = dims[d]
		}
		nv, err := f.AddVar(v.Name, t, vd)
		if err != nil {
			return fmt.Errorf("variable %q: %w", v.Name, err)
		}
		for _, k := range sortedKeys(v.Attrs) {
			typed := t != nc.CHAR && slices.Contains(typedAttrs, k)
			if err := writeAttr(nv.Attr(k), v.Attrs[k], t, typed); err != nil {
				return fmt.Errorf("variable %q: attribute %q: %w", v.Name, k, err)
			}
		}
		vars = append(vars, nv)
	}

	if err := f.EndDef(); err != nil {
		return fmt.Errorf("end define mode: %w", err)
	}
	for i, v := range ds.Vars() {
		if v.Len() == 0 {
			continue
		}
		if err := writeValues(vars[i], ncTypes[v.DType], v); err != nil {
			return fmt.Errorf("write %q: %w", v.Name, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// writeValues writes the payload of v, preferring its exact raw form.
func writeValues(nv nc.Var, t nc.Type, v *domain.Variable) error {
	switch r := v.Raw.(type) {
	case []byte:
		return nv.WriteBytes(r)
	case []int64:
		return nv.WriteInt64s(r)
	case []uint64:
		return nv.WriteUint64s(r)
	}
	vals := v.Values
	switch t {
	case nc.DOUBLE:
		return nv.WriteFloat64s(vals)
	case nc.FLOAT:
		return nv.WriteFloat32s(convert[float32](vals))
	case nc.BYTE:
		return nv.WriteInt8s(convert[int8](vals))
	case nc.UBYTE:
		return nv.WriteUint8s(convert[uint8](vals))
	case nc.SHORT:
		return nv.WriteInt16s(convert[int16](vals))
	case nc.USHORT:
		return nv.WriteUint16s(convert[uint16](vals))
	case nc.INT:
		return nv.WriteInt32s(convert[int32](vals))
	case nc.UINT:
		return nv.WriteUint32s(convert[uint32](vals))
	case nc.INT64:
		return nv.WriteInt64s(convert[int64](vals))
	case nc.UINT64:
		return nv.WriteUint64s(convert[uint64](vals))
	}
	return fmt.Errorf("unsupported type %v", t)
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// convert narrows values to T. Non-finite values become zero in integer
// types.
func convert[T number](vals []float64) []T {
	out := make([]T, len(vals))
	var zero T
	isInt := T(1)/T(2) == zero
	for i, v := range vals {
		if isInt && (math.IsNaN(v) || math.IsInf(v, 0)) {
			continue
		}
		out[i] = T(v)
	}
	return out
}

// writeAttr stores a string or numeric attribute in the netCDF type of its
// Go type. Typed attributes take the type of their variable.
func writeAttr(a nc.Attr, val any, varType nc.Type, typed bool) error {
	if s, ok := val.(string); ok {
		if s == "" {
			// The C bindings cannot write an empty attribute.
			return a.WriteBytes([]byte{0})
		}
		return a.WriteBytes([]byte(s))
	}
	rv, kind, ok := attrElems(val)
	if !ok {
		return a.WriteBytes([]byte(fmt.Sprint(val)))
	}
	if rv.Len() == 0 {
		return nil
	}
	t, ok := attrTypes[kind]
	if !ok {
		return fmt.Errorf("unsupported attribute value %T", val)
	}
	if typed {
		t = varType
	}
	switch t {
	case nc.DOUBLE:
		return a.WriteFloat64s(elems[float64](rv))
	case nc.FLOAT:
		return a.WriteFloat32s(elems[float32](rv))
	case nc.BYTE:
		return a.WriteInt8s(elems[int8](rv))
	case nc.UBYTE:
		return a.WriteUint8s(elems[uint8](rv))
	case nc.SHORT:
		return a.WriteInt16s(elems[int16](rv))
	case nc.USHORT:
		return a.WriteUint16s(elems[uint16](rv))
	case nc.INT:
		return a.WriteInt32s(elems[int32](rv))
	case nc.UINT:
		return a.WriteUint32s(elems[uint32](rv))
	case nc.INT64:
		return a.WriteInt64s(elems[int64](rv))
	case nc.UINT64:
		return a.WriteUint64s(elems[uint64](rv))
	}
	return fmt.Errorf("unsupported attribute type %v", t)
}

// attrElems returns a numeric attribute as a slice value and the kind of
// its elements. ok is false for non-numeric values.
func attrElems(val any) (reflect.Value, reflect.Kind, bool) {
	rv := reflect.ValueOf(val)
	if !rv.IsValid() {
		return rv, reflect.Invalid, false
	}
	if rv.Kind() != reflect.Slice {
		s := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		s.Index(0).Set(rv)
		rv = s
	}
	kind := rv.Type().Elem().Kind()
	if kind == reflect.Interface && rv.Len() > 0 {
		kind = rv.Index(0).Elem().Kind()
	}
	_, ok := attrTypes[kind]
	return rv, kind, ok || rv.Len() == 0
}

// elems converts the numbers of rv to T without passing integers through
// float64.
func elems[T number](rv reflect.Value) []T {
	out := make([]T, rv.Len())
	var zero T
	isInt := T(1)/T(2) == zero
	for i := range out {
		e := rv.Index(i)
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		switch {
		case e.CanInt():
			out[i] = T(e.Int())
		case e.CanUint():
			out[i] = T(e.Uint())
		case e.CanFloat():
			f := e.Float()
			if isInt && (math.IsNaN(f) || math.IsInf(f, 0)) {
				continue
			}
			out[i] = T(f)
		}
	}
	return out
}

// Read loads every variable of the file at path. String variables of
// netCDF-4 files fail with ErrStringType.
func Read(path string) (*domain.Dataset, error) {
	f, err := nc.OpenFile(path, nc.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	ds := domain.NewDataset()
	nattrs, err := f.NAttrs()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nattrs; i++ {
		a, err := f.AttrN(i)
		if err != nil {
			return nil, err
		}
		val, err := readAttr(a)
		if err != nil {
			return nil, fmt.Errorf("global attribute %q: %w", a.Name(), err)
		}
		ds.Attrs[a.Name()] = val
	}

	nvars, err := f.NVars()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nvars; i++ {
		v, err := readVar(ds, f.VarN(i))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := ds.SetVar(v); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func readVar(ds *domain.Dataset, v nc.Var) (*domain.Variable, error) {
	name, err := v.Name()
	if err != nil {
		return nil, err
	}
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	dtype, ok := dtypes[t]
	if !ok {
		if t == nc.STRING {
			return nil, fmt.Errorf("variable %q: %w", name, ErrStringType)
		}
		return nil, fmt.Errorf("variable %q: unsupported type %v", name, t)
	}
	dims, err := v.Dims()
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	out := &domain.Variable{Name: name, DType: dtype, Dims: make([]string, len(dims)), Attrs: map[string]any{}}
	total := 1
	for i, d := range dims {
		dn, err := d.Name()
		if err != nil {
			return nil, err
		}
		n, err := d.Len()
		if err != nil {
			return nil, err
		}
		if err := ds.AddDim(dn, int(n)); err != nil {
			return nil, err
		}
		out.Dims[i] = dn
		total *= int(n)
	}
	if err := readValues(v, t, total, out); err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}

	nattrs, err := v.NAttrs()
	if err != nil {
		return nil, err
	}
	for i := 0; i < nattrs; i++ {
		a, err := v.AttrN(i)
		if err != nil {
			return nil, err
		}
		val, err := readAttr(a)
		if err != nil {
			return nil, fmt.Errorf("variable %q: attribute %q: %w", name, a.Name(), err)
		}
		out.Attrs[a.Name()] = val
	}
	return out, nil
}

// readValues fills the payload of out with the n elements of v.
func readValues(v nc.Var, t nc.Type, n int, out *domain.Variable) error {
	if n == 0 {
		if t == nc.CHAR {
			out.Raw = []byte{}
		}
		return nil
	}
	var err error
	switch t {
	case nc.CHAR:
		buf := make([]byte, n)
		err = v.ReadBytes(buf)
		out.Raw = buf
	case nc.DOUBLE:
		buf := make([]float64, n)
		err = v.ReadFloat64s(buf)
		out.Values = buf
	case nc.FLOAT:
		buf := make([]float32, n)
		out.Values, err = widen(buf, v.ReadFloat32s(buf))
	case nc.BYTE:
		buf := make([]int8, n)
		out.Values, err = widen(buf, v.ReadInt8s(buf))
	case nc.UBYTE:
		buf := make([]uint8, n)
		out.Values, err = widen(buf, v.ReadUint8s(buf))
	case nc.SHORT:
		buf := make([]int16, n)
		out.Values, err = widen(buf, v.ReadInt16s(buf))
	case nc.USHORT:
		buf := make([]uint16, n)
		out.Values, err = widen(buf, v.ReadUint16s(buf))
	case nc.INT:
		buf := make([]int32, n)
		out.Values, err = widen(buf, v.ReadInt32s(buf))
	case nc.UINT:
		buf := make([]uint32, n)
		out.Values, err = widen(buf, v.ReadUint32s(buf))
	case nc.INT64:
		buf := make([]int64, n)
		out.Values, err = widen(buf, v.ReadInt64s(buf))
		out.Raw = buf
	case nc.UINT64:
		buf := make([]uint64, n)
		out.Values, err = widen(buf, v.ReadUint64s(buf))
		out.Raw = buf
	default:
		return fmt.Errorf("unsupported type %v", t)
	}
	return err
}

func widen[T number](buf []T, err error) ([]float64, error) {
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(buf))
	for i, x := range buf {
		out[i] = float64(x)
	}
	return out, nil
}

// readAttr returns text attributes as strings and numeric attributes in
// their own Go type: a scalar for one value, a slice otherwise.
func readAttr(a nc.Attr) (any, error) {
	t, err := a.Type()
	if err != nil {
		return nil, err
	}
	n, err := a.Len()
	if err != nil {
		return nil, err
	}
	if t == nc.CHAR {
		if n == 0 {
			return "", nil
		}
		buf := make([]byte, n)
		if err := a.ReadBytes(buf); err != nil {
			return nil, err
		}
		return strings.TrimRight(string(buf), "\x00"), nil
	}
	if n == 0 {
		return []float64{}, nil
	}
	switch t {
	case nc.DOUBLE:
		return attrOf(make([]float64, n), a.ReadFloat64s)
	case nc.FLOAT:
		return attrOf(make([]float32, n), a.ReadFloat32s)
	case nc.BYTE:
		return attrOf(make([]int8, n), a.ReadInt8s)
	case nc.UBYTE:
		return attrOf(make([]uint8, n), a.ReadUint8s)
	case nc.SHORT:
		return attrOf(make([]int16, n), a.ReadInt16s)
	case nc.USHORT:
		return attrOf(make([]uint16, n), a.ReadUint16s)
	case nc.INT:
		return attrOf(make([]int32, n), a.ReadInt32s)
	case nc.UINT:
		return attrOf(make([]uint32, n), a.ReadUint32s)
	case nc.INT64:
		return attrOf(make([]int64, n), a.ReadInt64s)
	case nc.UINT64:
		return attrOf(make([]uint64, n), a.ReadUint64s)
	}
	return nil, fmt.Errorf("unsupported attribute type %v", t)
}

func attrOf[T number](buf []T, read func([]T) error) (any, error) {
	if err := read(buf); err != nil {
		return nil, err
	}
	if len(buf) == 1 {
		return buf[0], nil
	}
	return buf, nil
}
