// Package hrrr loads HRRR surface analyses from the public Zarr archive
// and puts them on a regular latitude/longitude grid.
package hrrr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.ngs.io/hptrack/internal/adapter/zarr"
	"go.ngs.io/hptrack/internal/domain"
)

// Coordinate arrays of an HRRR analysis group.
const (
	XCoord    = "projection_x_coordinate"
	YCoord    = "projection_y_coordinate"
	TimeCoord = "time"
)

// Field is one archived parameter and the variable name it is loaded as.
type Field struct {
	Level string
	Param string
	Name  string
}

// Fields are the surface parameters converted to HEALPix.
var Fields = []Field{
	{Level: "10m_above_ground", Param: "UGRD", Name: "u"},
	{Level: "10m_above_ground", Param: "VGRD", Name: "v"},
	{Level: "2m_above_ground", Param: "RH", Name: "rh"},
	{Level: "2m_above_ground", Param: "TMP", Name: "tmp"},
	{Level: "2m_above_ground", Param: "DPT", Name: "dpt"},
	{Level: "2m_above_ground", Param: "POT", Name: "pot"},
	{Level: "2m_above_ground", Param: "SPFH", Name: "spfh"},
}

// GroupPath returns the key prefix of the analysis group of param at t. The
// data array lives in the subgroup named after the level.
func GroupPath(t time.Time, level, param string) string {
	t = t.UTC()
	day := t.Format("20060102")
	return fmt.Sprintf("sfc/%s/%s_%02dz_anl.zarr/%s/%s", day, day, t.Hour(), level, param)
}

// HourlyTimes returns n consecutive hours starting at start.
func HourlyTimes(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

// Loader reads analyses from a store laid out like the hrrrzarr bucket.
type Loader struct {
	Store  zarr.Store
	Logger *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Load reads every field of Fields at times and adds the derived wind
// speed ws. The result has dimensions (time, y, x) in projected metres.
func (l *Loader) Load(ctx context.Context, times []time.Time) (*domain.Dataset, error) {
	var out *domain.Dataset
	for _, f := range Fields {
		ds, err := l.LoadField(ctx, times, f)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = ds
		} else {
			v, _ := ds.Var(f.Name)
			if err := out.SetVar(v); err != nil {
				return nil, fmt.Errorf("%s: grid differs from %s: %w", f.Param, Fields[0].Param, err)
			}
		}
		if f.Name == "v" {
			u, ok := out.Var("u")
			if !ok {
				continue
			}
			v, _ := out.Var("v")
			ws, err := WindSpeed(u, v)
			if err != nil {
				return nil, err
			}
			if err := out.SetVar(ws); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// LoadField reads one parameter at each of times and concatenates the
// hours along time. Values are rounded to float32.
func (l *Loader) LoadField(ctx context.Context, times []time.Time, f Field) (*domain.Dataset, error) {
	if len(times) == 0 {
		return nil, errors.New("hrrr: no times requested")
	}
	start := time.Now()
	var (
		x, y      *domain.Variable
		timeVals  []float64
		timeAttrs map[string]any
		timeType  domain.DType
		values    []float64
		attrs     map[string]any
	)
	for _, t := range times {
		group := GroupPath(t, f.Level, f.Param)
		gs := zarr.Sub(l.Store, group)
		g, err := zarr.Open(ctx, gs)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", group, err)
		}

		gx, err := readCoord(ctx, gs, g, XCoord, "x")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", group, err)
		}
		gy, err := readCoord(ctx, gs, g, YCoord, "y")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", group, err)
		}
		if x == nil {
			x, y = gx, gy
		} else if len(gx.Values) != len(x.Values) || len(gy.Values) != len(y.Values) {
			return nil, fmt.Errorf("%s: grid is %dx%d, want %dx%d", group, len(gy.Values), len(gx.Values), len(y.Values), len(x.Values))
		}

		tv, ta, tt, err := readTime(ctx, gs, g, t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", group, err)
		}
		if timeAttrs == nil {
			timeAttrs, timeType = ta, tt
		}

		sub := zarr.Sub(gs, f.Level)
		a, err := zarr.OpenArray(ctx, sub, f.Param)
		if err != nil {
			return nil, fmt.Errorf("open %s/%s/%s: %w", group, f.Level, f.Param, err)
		}
		vals, err := a.Read(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", group, err)
		}
		if want := len(tv) * len(x.Values) * len(y.Values); len(vals) != want {
			return nil, fmt.Errorf("%s: %s has %d values, want %d", group, f.Param, len(vals), want)
		}
		if attrs == nil {
			attrs = a.Attrs
		}
		timeVals = append(timeVals, tv...)
		values = append(values, vals...)
	}

	ds := domain.NewDataset()
	for _, d := range []domain.Dim{{Name: "time", Len: len(timeVals)}, {Name: "y", Len: len(y.Values)}, {Name: "x", Len: len(x.Values)}} {
		if err := ds.AddDim(d.Name, d.Len); err != nil {
			return nil, err
		}
	}
	data := &domain.Variable{
		Name:   f.Param,
		Dims:   []string{"time", "y", "x"},
		DType:  domain.Float32,
		Values: values,
		Attrs:  attrs,
	}
	for _, v := range []*domain.Variable{
		{Name: "time", Dims: []string{"time"}, DType: timeType, Values: timeVals, Attrs: timeAttrs},
		y, x, data,
	} {
		if err := ds.SetVar(v); err != nil {
			return nil, err
		}
	}
	ds, err := domain.DecodeCF(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Param, err)
	}

	v, _ := ds.Var(f.Param)
	nv := v.With(toFloat32(v.Values))
	nv.Name = f.Name
	nv.DType = domain.Float32
	out := ds.DropVars(f.Param)
	if err := out.SetVar(nv); err != nil {
		return nil, err
	}

	l.logger().Debug("loaded hrrr field",
		"param", f.Param,
		"level", f.Level,
		"hours", len(times),
		"ny", len(y.Values),
		"nx", len(x.Values),
		"duration", time.Since(start),
	)
	return out, nil
}

func readCoord(ctx context.Context, store zarr.Store, g *zarr.Group, name, dim string) (*domain.Variable, error) {
	a, ok := g.Arrays[name]
	if !ok {
		var err error
		if a, err = zarr.OpenArray(ctx, store, name); err != nil {
			return nil, fmt.Errorf("coordinate %s: %w", name, err)
		}
	}
	vals, err := a.Read(ctx, store)
	if err != nil {
		return nil, err
	}
	return &domain.Variable{Name: dim, Dims: []string{dim}, DType: a.DType(), Values: vals, Attrs: a.Attrs}, nil
}

// readTime returns the time values of a group. Groups without a time array
// get t as seconds since the epoch.
func readTime(ctx context.Context, store zarr.Store, g *zarr.Group, t time.Time) ([]float64, map[string]any, domain.DType, error) {
	a, ok := g.Arrays[TimeCoord]
	if !ok {
		var err error
		a, err = zarr.OpenArray(ctx, store, TimeCoord)
		if errors.Is(err, zarr.ErrNotFound) {
			attrs := map[string]any{"units": "seconds since 1970-01-01", "calendar": "proleptic_gregorian"}
			return []float64{float64(t.Unix())}, attrs, domain.Int64, nil
		}
		if err != nil {
			return nil, nil, "", err
		}
	}
	vals, err := a.Read(ctx, store)
	if err != nil {
		return nil, nil, "", err
	}
	return vals, a.Attrs, a.DType(), nil
}

func toFloat32(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(float32(v))
	}
	return out
}

// WindSpeed derives the 10 m wind speed magnitude from its components.
func WindSpeed(u, v *domain.Variable) (*domain.Variable, error) {
	if len(u.Values) != len(v.Values) {
		return nil, fmt.Errorf("wind speed: u has %d values, v has %d", len(u.Values), len(v.Values))
	}
	vals := make([]float64, len(u.Values))
	for i := range vals {
		vals[i] = float64(float32(math.Hypot(u.Values[i], v.Values[i])))
	}
	return &domain.Variable{
		Name:   "ws",
		Dims:   append([]string(nil), u.Dims...),
		DType:  domain.Float32,
		Values: vals,
		Attrs: map[string]any{
			"units":     "m/s",
			"long_name": "HRRR Wind Speed Magnitude 10m above surface",
		},
	}, nil
}
