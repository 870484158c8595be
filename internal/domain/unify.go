package domain

import (
	"fmt"
	"maps"
	"slices"
)

// UnifyDimensions replaces every use of oldDim by newDim.
//
// Variables indexed by oldDim are rebuilt over newDim with the same payload
// and attributes. Any other variable is carried over unchanged unless it is
// named in drop. Global attributes are copied. The lengths of the two
// dimensions are not compared up front: a mismatch fails when the rebuilt
// variable is added.
func UnifyDimensions(ds *Dataset, newDim, oldDim string, drop []string) (*Dataset, error) {
	newLen, ok := ds.DimLen(newDim)
	if !ok {
		return nil, fmt.Errorf("unify: dimension %q not found", newDim)
	}

	out := NewDataset()
	maps.Copy(out.Attrs, ds.Attrs)

	for _, v := range ds.vars {
		if !v.HasDim(oldDim) {
			if slices.Contains(drop, v.Name) {
				continue
			}
			for _, d := range v.Dims {
				n, _ := ds.DimLen(d)
				if err := out.AddDim(d, n); err != nil {
					return nil, err
				}
			}
			if err := out.SetVar(v); err != nil {
				return nil, err
			}
			continue
		}

		nv := v.Clone()
		for i, d := range nv.Dims {
			n, _ := ds.DimLen(d)
			if d == oldDim {
				nv.Dims[i] = newDim
				n = newLen
			}
			if err := out.AddDim(nv.Dims[i], n); err != nil {
				return nil, err
			}
		}
		if err := out.SetVar(nv); err != nil {
			return nil, fmt.Errorf("unify %q: %w", v.Name, err)
		}
	}
	return out, nil
}
