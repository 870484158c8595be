// Package proj converts between geographic coordinates and the projected
// grids of regional model output.
package proj

import (
	"fmt"

	"github.com/ctessum/geom/proj"
)

// HRRR is the Lambert conformal conic projection of the HRRR CONUS grid on
// a sphere of radius 6371229 m.
const HRRR = "+proj=lcc +lat_1=38.5 +lat_2=38.5 +lat_0=38.5 +lon_0=-97.5 +x_0=0 +y_0=0 +a=6371229 +b=6371229 +to_meter=1"

const longLat = "+proj=longlat"

// Projection converts points between longitude/latitude in degrees and a
// projected coordinate system in metres.
type Projection struct {
	forward proj.Transformer
	inverse proj.Transformer
}

// New parses a PROJ.4 definition.
func New(def string) (*Projection, error) {
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse projection %q: %w", def, err)
	}
	ll, err := proj.Parse(longLat)
	if err != nil {
		return nil, err
	}
	fwd, err := ll.NewTransform(sr)
	if err != nil {
		return nil, fmt.Errorf("projection transform: %w", err)
	}
	inv, err := sr.NewTransform(ll)
	if err != nil {
		return nil, fmt.Errorf("inverse projection transform: %w", err)
	}
	return &Projection{forward: fwd, inverse: inv}, nil
}

// Forward projects (lon, lat) to (x, y).
func (p *Projection) Forward(lon, lat float64) (x, y float64, err error) {
	return p.forward(lon, lat)
}

// Inverse unprojects (x, y) to (lon, lat).
func (p *Projection) Inverse(x, y float64) (lon, lat float64, err error) {
	return p.inverse(x, y)
}

// ForwardAll projects parallel slices of longitudes and latitudes.
func (p *Projection) ForwardAll(lons, lats []float64) (xs, ys []float64, err error) {
	if len(lons) != len(lats) {
		return nil, nil, fmt.Errorf("got %d longitudes and %d latitudes", len(lons), len(lats))
	}
	xs = make([]float64, len(lons))
	ys = make([]float64, len(lats))
	for i := range lons {
		xs[i], ys[i], err = p.forward(lons[i], lats[i])
		if err != nil {
			return nil, nil, fmt.Errorf("project (%g, %g): %w", lons[i], lats[i], err)
		}
	}
	return xs, ys, nil
}
