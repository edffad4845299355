// Package geodesy implements WGS84 geodetic math: conversions between
// cartographic and Earth-centred Earth-fixed (ECEF) coordinates, surface
// normals and local East-North-Up frames. All functions are pure.
package geodesy

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS84 ellipsoid parameters (metres).
const (
	WGS84SemiMajorAxis = 6378137.0
	WGS84SemiMinorAxis = 6356752.3142451793

	// MeanEarthRadius is used for great-circle distances only.
	MeanEarthRadius = 6371000.0

	// centerToleranceSquared bounds the radii-normalised squared norm below
	// which a point is projected radially instead of along the normal.
	centerToleranceSquared = 0.1
	convergenceEpsilon     = 1e-14
	maxSurfaceIterations   = 64
)

var (
	radii = r3.Vec{X: WGS84SemiMajorAxis, Y: WGS84SemiMajorAxis, Z: WGS84SemiMinorAxis}

	radiiSquared = r3.Vec{
		X: WGS84SemiMajorAxis * WGS84SemiMajorAxis,
		Y: WGS84SemiMajorAxis * WGS84SemiMajorAxis,
		Z: WGS84SemiMinorAxis * WGS84SemiMinorAxis,
	}

	oneOverRadii = r3.Vec{X: 1 / radii.X, Y: 1 / radii.Y, Z: 1 / radii.Z}

	oneOverRadiiSquared = r3.Vec{X: 1 / radiiSquared.X, Y: 1 / radiiSquared.Y, Z: 1 / radiiSquared.Z}
)

// Radii returns the WGS84 radii (a, a, b).
func Radii() r3.Vec { return radii }

// Cartographic is a geodetic position: longitude and latitude in radians,
// height in metres above the WGS84 ellipsoid.
type Cartographic struct {
	Longitude float64
	Latitude  float64
	Height    float64
}

// NewCartographic constructs a Cartographic from radians and metres.
func NewCartographic(longitude, latitude, height float64) Cartographic {
	return Cartographic{Longitude: longitude, Latitude: latitude, Height: height}
}

// FromDegrees constructs a Cartographic from degrees and metres.
func FromDegrees(lonDeg, latDeg, height float64) Cartographic {
	return Cartographic{
		Longitude: lonDeg * math.Pi / 180,
		Latitude:  latDeg * math.Pi / 180,
		Height:    height,
	}
}

// Degrees returns longitude and latitude in degrees plus height in metres.
func (c Cartographic) Degrees() (lonDeg, latDeg, height float64) {
	return c.Longitude * 180 / math.Pi, c.Latitude * 180 / math.Pi, c.Height
}

// GeodeticSurfaceNormalCartographic returns the unit surface normal at the
// given longitude and latitude.
func GeodeticSurfaceNormalCartographic(c Cartographic) r3.Vec {
	cosLat := math.Cos(c.Latitude)
	return r3.Unit(r3.Vec{
		X: cosLat * math.Cos(c.Longitude),
		Y: cosLat * math.Sin(c.Longitude),
		Z: math.Sin(c.Latitude),
	})
}

// GeodeticSurfaceNormal returns the geodetic up direction at p: the unit
// ellipsoid normal at the surface point below (or above) p. It matches
// GeodeticSurfaceNormalCartographic for any height. The normal is undefined
// at the planet centre; there the function returns +Z.
func GeodeticSurfaceNormal(p r3.Vec) r3.Vec {
	surface, ok := ScaleToGeodeticSurface(p)
	if !ok {
		return r3.Vec{Z: 1}
	}
	return surfaceNormal(surface)
}

// surfaceNormal is the ellipsoid gradient direction, exact only for points
// on the surface.
func surfaceNormal(p r3.Vec) r3.Vec {
	n := mulComponents(p, oneOverRadiiSquared)
	if r3.Norm(n) == 0 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(n)
}

// CartographicToEcef converts a geodetic position to ECEF metres.
func CartographicToEcef(c Cartographic) r3.Vec {
	n := GeodeticSurfaceNormalCartographic(c)
	k := mulComponents(radiiSquared, n)
	gamma := math.Sqrt(r3.Dot(n, k))
	return r3.Add(r3.Scale(1/gamma, k), r3.Scale(c.Height, n))
}

// ScaleToGeodeticSurface projects p along the geodetic normal onto the
// ellipsoid surface. ok is false for the planet centre.
func ScaleToGeodeticSurface(p r3.Vec) (surface r3.Vec, ok bool) {
	x2 := p.X * p.X * oneOverRadii.X * oneOverRadii.X
	y2 := p.Y * p.Y * oneOverRadii.Y * oneOverRadii.Y
	z2 := p.Z * p.Z * oneOverRadii.Z * oneOverRadii.Z

	squaredNorm := x2 + y2 + z2
	ratio := math.Sqrt(1 / squaredNorm)
	intersection := r3.Scale(ratio, p)

	if squaredNorm < centerToleranceSquared {
		if math.IsInf(ratio, 0) || math.IsNaN(ratio) {
			return r3.Vec{}, false
		}
		return intersection, true
	}

	gradient := r3.Scale(2, mulComponents(intersection, oneOverRadiiSquared))
	lambda := (1 - ratio) * r3.Norm(p) / (0.5 * r3.Norm(gradient))
	correction := 0.0

	var xm, ym, zm float64
	for i := 0; i < maxSurfaceIterations; i++ {
		lambda -= correction

		xm = 1 / (1 + lambda*oneOverRadiiSquared.X)
		ym = 1 / (1 + lambda*oneOverRadiiSquared.Y)
		zm = 1 / (1 + lambda*oneOverRadiiSquared.Z)

		xm2, ym2, zm2 := xm*xm, ym*ym, zm*zm
		xm3, ym3, zm3 := xm2*xm, ym2*ym, zm2*zm

		fn := x2*xm2 + y2*ym2 + z2*zm2 - 1
		if math.Abs(fn) <= convergenceEpsilon {
			break
		}
		denominator := x2*xm3*oneOverRadiiSquared.X + y2*ym3*oneOverRadiiSquared.Y + z2*zm3*oneOverRadiiSquared.Z
		correction = fn / (-2 * denominator)
	}

	return r3.Vec{X: p.X * xm, Y: p.Y * ym, Z: p.Z * zm}, true
}

// EcefToCartographic converts ECEF metres to a geodetic position. ok is false
// only for degenerate input at the planet centre, where no surface normal
// exists.
func EcefToCartographic(p r3.Vec) (c Cartographic, ok bool) {
	if !isFinite(p) {
		return Cartographic{}, false
	}
	surface, ok := ScaleToGeodeticSurface(p)
	if !ok {
		return Cartographic{}, false
	}
	n := surfaceNormal(surface)
	h := r3.Sub(p, surface)

	height := r3.Norm(h)
	if r3.Dot(h, p) < 0 {
		height = -height
	}
	return Cartographic{
		Longitude: math.Atan2(n.Y, n.X),
		Latitude:  math.Asin(clamp(n.Z, -1, 1)),
		Height:    height,
	}, true
}

// GreatCircleDistance returns the haversine distance in metres between two
// positions, measured on the mean Earth sphere and ignoring height.
func GreatCircleDistance(a, b Cartographic) float64 {
	dLat := b.Latitude - a.Latitude
	dLon := b.Longitude - a.Longitude
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Latitude)*math.Cos(b.Latitude)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return MeanEarthRadius * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

func mulComponents(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

func isFinite(v r3.Vec) bool {
	for _, f := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
