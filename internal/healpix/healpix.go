// Package healpix implements the nested HEALPix pixelisation for
// power-of-two resolutions.
package healpix

import (
	"fmt"
	"math"
)

// MaxZoom is the finest resolution supported with int64 pixel indices.
const MaxZoom = 29

var (
	jrll = [12]int64{2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4}
	jpll = [12]int64{1, 3, 5, 7, 0, 2, 4, 6, 1, 3, 5, 7}
)

// Nside returns the number of pixels along a base pixel edge at zoom.
func Nside(zoom int) int64 {
	return int64(1) << uint(zoom)
}

// Npix returns the total number of pixels at zoom, 12*4^zoom.
func Npix(zoom int) int64 {
	return 12 * Nside(zoom) * Nside(zoom)
}

// CheckZoom validates a zoom level.
func CheckZoom(zoom int) error {
	if zoom < 0 || zoom > MaxZoom {
		return fmt.Errorf("healpix: zoom %d out of range [0, %d]", zoom, MaxZoom)
	}
	return nil
}

// Pix2AngNest returns the colatitude theta and longitude phi, in radians, of
// the centre of nested pixel pix. nside must be a power of two.
func Pix2AngNest(nside, pix int64) (theta, phi float64) {
	npface := nside * nside
	npix := 12 * npface
	face := pix / npface
	ipf := pix % npface
	ix := compressBits(ipf)
	iy := compressBits(ipf >> 1)

	fact2 := 4 / float64(npix)
	nl4 := 4 * nside
	jr := jrll[face]*nside - ix - iy - 1

	var (
		nr     int64
		z      float64
		kshift int64
	)
	switch {
	case jr < nside:
		nr = jr
		z = 1 - float64(nr*nr)*fact2
	case jr > 3*nside:
		nr = nl4 - jr
		z = float64(nr*nr)*fact2 - 1
	default:
		fact1 := float64(2*nside) * fact2
		nr = nside
		z = float64(2*nside-jr) * fact1
		kshift = (jr - nside) & 1
	}

	jp := (jpll[face]*nr + ix - iy + 1 + kshift) / 2
	if jp > nl4 {
		jp -= nl4
	}
	if jp < 1 {
		jp += nl4
	}

	phi = (float64(jp) - float64(kshift+1)*0.5) * (math.Pi / 2 / float64(nr))
	theta = math.Acos(z)
	return theta, phi
}

// Ang2PixNest returns the nested pixel containing the point at colatitude
// theta and longitude phi, in radians. nside must be a power of two.
func Ang2PixNest(nside int64, theta, phi float64) int64 {
	z := math.Cos(theta)
	za := math.Abs(z)
	tt := math.Mod(phi, 2*math.Pi) / (math.Pi / 2)
	if tt < 0 {
		tt += 4
	}

	var face, ix, iy int64
	if za <= 2.0/3.0 {
		temp1 := float64(nside) * (0.5 + tt)
		temp2 := float64(nside) * z * 0.75
		jp := int64(temp1 - temp2)
		jm := int64(temp1 + temp2)
		ifp := jp / nside
		ifm := jm / nside
		switch {
		case ifp == ifm:
			face = ifp | 4
		case ifp < ifm:
			face = ifp
		default:
			face = ifm + 8
		}
		ix = jm & (nside - 1)
		iy = nside - (jp & (nside - 1)) - 1
	} else {
		ntt := min(int64(tt), 3)
		tp := tt - float64(ntt)
		tmp := float64(nside) * math.Sqrt(3*(1-za))
		jp := min(int64(tp*tmp), nside-1)
		jm := min(int64((1-tp)*tmp), nside-1)
		if z >= 0 {
			face = ntt
			ix = nside - jm - 1
			iy = nside - jp - 1
		} else {
			face = ntt + 8
			ix = jp
			iy = jm
		}
	}
	return face*nside*nside + spreadBits(ix) + spreadBits(iy)<<1
}

// LonLat returns the centre of pixel pix at zoom in degrees, with longitude
// in [0, 360).
func LonLat(zoom int, pix int64) (lon, lat float64) {
	theta, phi := Pix2AngNest(Nside(zoom), pix)
	return phi * 180 / math.Pi, 90 - theta*180/math.Pi
}

// Pixel returns the nested pixel at zoom containing the point (lon, lat)
// given in degrees. Longitude may be signed.
func Pixel(zoom int, lon, lat float64) int64 {
	theta := (90 - lat) * math.Pi / 180
	phi := lon * math.Pi / 180
	return Ang2PixNest(Nside(zoom), theta, phi)
}

// Parent returns the index of the pixel containing pix one zoom level up.
func Parent(pix int64) int64 {
	return pix >> 2
}

// Nested is the nested HEALPix tiling.
type Nested struct{}

// CellCenters returns the centre longitude and latitude, in degrees, of every
// pixel at zoom, ordered by pixel index. Longitudes are in [-180, 180) when
// signedLon is set, else in [0, 360).
func (Nested) CellCenters(zoom int, signedLon bool) (lon, lat []float64) {
	n := Npix(zoom)
	lon = make([]float64, n)
	lat = make([]float64, n)
	for p := int64(0); p < n; p++ {
		lo, la := LonLat(zoom, p)
		if signedLon {
			lo = math.Mod(lo+180, 360) - 180
		}
		lon[p], lat[p] = lo, la
	}
	return lon, lat
}

// CellCenters is Nested{}.CellCenters.
func CellCenters(zoom int, signedLon bool) (lon, lat []float64) {
	return Nested{}.CellCenters(zoom, signedLon)
}

// compressBits gathers the even bits of v into the low half.
func compressBits(v int64) int64 {
	x := uint64(v) & 0x5555555555555555
	x = (x | x>>1) & 0x3333333333333333
	x = (x | x>>2) & 0x0f0f0f0f0f0f0f0f
	x = (x | x>>4) & 0x00ff00ff00ff00ff
	x = (x | x>>8) & 0x0000ffff0000ffff
	x = (x | x>>16) & 0x00000000ffffffff
	return int64(x)
}

// spreadBits is the inverse of compressBits.
func spreadBits(v int64) int64 {
	x := uint64(v) & 0x00000000ffffffff
	x = (x | x<<16) & 0x0000ffff0000ffff
	x = (x | x<<8) & 0x00ff00ff00ff00ff
	x = (x | x<<4) & 0x0f0f0f0f0f0f0f0f
	x = (x | x<<2) & 0x3333333333333333
	x = (x | x<<1) & 0x5555555555555555
	return int64(x)
}
