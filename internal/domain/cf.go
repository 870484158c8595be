package domain

import (
	"fmt"
	"math"
	"reflect"

	"github.com/spf13/cast"
)

// CF attribute names consumed by DecodeCF.
const (
	AttrFillValue    = "_FillValue"
	AttrMissingValue = "missing_value"
	AttrScaleFactor  = "scale_factor"
	AttrAddOffset    = "add_offset"
)

// DecodeCF applies CF mask-and-scale decoding to every variable that
// carries the relevant attributes: values equal to _FillValue or
// missing_value become NaN, then value*scale_factor+add_offset is applied.
// The consumed attributes are removed. Integer variables that are decoded
// become float32 (up to 16 bits) or float64.
func DecodeCF(ds *Dataset) (*Dataset, error) {
	out := ds
	for _, v := range ds.vars {
		nv, changed, err := decodeVar(v)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		if out == ds {
			out = ds.Copy()
		}
		if err := out.SetVar(nv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeVar(v *Variable) (*Variable, bool, error) {
	if v.DType.IsText() {
		return v, false, nil
	}
	var fills []float64
	for _, key := range []string{AttrFillValue, AttrMissingValue} {
		raw, ok := v.Attrs[key]
		if !ok {
			continue
		}
		vals, err := attrFloats(raw)
		if err != nil {
			return nil, false, fmt.Errorf("variable %q: attribute %s: %w", v.Name, key, err)
		}
		fills = append(fills, vals...)
	}

	scale, offset := 1.0, 0.0
	_, hasScale := v.Attrs[AttrScaleFactor]
	_, hasOffset := v.Attrs[AttrAddOffset]
	if hasScale {
		s, err := attrScalar(v.Attrs[AttrScaleFactor])
		if err != nil {
			return nil, false, fmt.Errorf("variable %q: attribute %s: %w", v.Name, AttrScaleFactor, err)
		}
		scale = s
	}
	if hasOffset {
		o, err := attrScalar(v.Attrs[AttrAddOffset])
		if err != nil {
			return nil, false, fmt.Errorf("variable %q: attribute %s: %w", v.Name, AttrAddOffset, err)
		}
		offset = o
	}

	_, hasFill := v.Attrs[AttrFillValue]
	_, hasMissing := v.Attrs[AttrMissingValue]
	if !hasFill && !hasMissing && !hasScale && !hasOffset {
		return v, false, nil
	}

	vals := make([]float64, len(v.Values))
	for i, x := range v.Values {
		if isFill(x, fills) {
			vals[i] = math.NaN()
			continue
		}
		vals[i] = x*scale + offset
	}

	nv := v.With(vals)
	for _, key := range []string{AttrFillValue, AttrMissingValue, AttrScaleFactor, AttrAddOffset} {
		delete(nv.Attrs, key)
	}
	if !nv.DType.IsFloat() {
		if nv.DType.Size() <= 2 && !hasScale && !hasOffset {
			nv.DType = Float32
		} else {
			nv.DType = Float64
		}
	}
	return nv, true, nil
}

func isFill(x float64, fills []float64) bool {
	for _, f := range fills {
		if x == f || (math.IsNaN(f) && math.IsNaN(x)) {
			return true
		}
	}
	return false
}

// attrFloats converts a scalar or slice attribute to float64 values.
func attrFloats(raw any) ([]float64, error) {
	rv := reflect.ValueOf(raw)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]float64, rv.Len())
		for i := range out {
			f, err := cast.ToFloat64E(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, err
	}
	return []float64{f}, nil
}

func attrScalar(raw any) (float64, error) {
	vals, err := attrFloats(raw)
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("empty attribute")
	}
	return vals[0], nil
}

// RenameLatLon renames latitude/longitude dimensions and variables to
// lat/lon. Names that are absent are skipped.
func RenameLatLon(ds *Dataset) (*Dataset, error) {
	out := ds
	for from, to := range map[string]string{"latitude": "lat", "longitude": "lon"} {
		var err error
		if out.HasDim(from) {
			out, err = out.RenameDim(from, to)
			if err != nil {
				return nil, err
			}
			continue
		}
		if v, ok := out.Var(from); ok {
			if _, clash := out.Var(to); clash {
				return nil, fmt.Errorf("rename %q to %q: variable already exists", from, to)
			}
			nv := v.Clone()
			nv.Name = to
			out = out.Copy()
			for i, cur := range out.vars {
				if cur == v {
					out.vars[i] = nv
				}
			}
		}
	}
	return out, nil
}
