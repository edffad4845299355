package geodesy

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// axisEpsilon decides when a point lies on the polar axis.
const axisEpsilon = 1e-14

// EastNorthUpRotation returns the rotation whose columns are the East, North
// and Up unit vectors at p. On the polar axis East falls back to +Y. At the
// planet centre the frame is undefined; callers must not rely on the result
// there.
func EastNorthUpRotation(p r3.Vec) Mat3 {
	up := GeodeticSurfaceNormal(p)

	var east r3.Vec
	if math.Abs(p.X) < axisEpsilon && math.Abs(p.Y) < axisEpsilon {
		east = r3.Vec{Y: 1}
		if p.Z < 0 {
			up = r3.Vec{Z: -1}
		} else {
			up = r3.Vec{Z: 1}
		}
	} else {
		east = r3.Unit(r3.Vec{X: -p.Y, Y: p.X})
	}
	north := r3.Cross(up, east)
	return Mat3FromColumns(east, north, up)
}

// EastNorthUpFrame returns the affine frame mapping local ENU coordinates at
// p to ECEF: columns East, North, Up, translated to p.
func EastNorthUpFrame(p r3.Vec) Mat4 {
	return Compose(EastNorthUpRotation(p), p)
}

// HeadingPitchRoll is a local orientation relative to an ENU frame. Heading
// is clockwise from north, pitch is positive above the horizon. Angles are in
// radians.
type HeadingPitchRoll struct {
	Heading float64
	Pitch   float64
	Roll    float64
}

// HeadingPitchFromDirection expresses an ECEF direction as heading and pitch
// in the ENU frame at p. Roll is always zero since a direction carries none.
// ok is false for a zero direction.
func HeadingPitchFromDirection(p, direction r3.Vec) (hpr HeadingPitchRoll, ok bool) {
	if r3.Norm(direction) == 0 {
		return HeadingPitchRoll{}, false
	}
	local := EastNorthUpRotation(p).Transpose().MulVec(r3.Unit(direction))
	return HeadingPitchRoll{
		Heading: math.Atan2(local.X, local.Y),
		Pitch:   math.Asin(clamp(local.Z, -1, 1)),
	}, true
}

// DirectionFromHeadingPitch returns the ECEF unit direction for hpr in the
// ENU frame at p.
func DirectionFromHeadingPitch(p r3.Vec, hpr HeadingPitchRoll) r3.Vec {
	cp := math.Cos(hpr.Pitch)
	local := r3.Vec{
		X: math.Sin(hpr.Heading) * cp,
		Y: math.Cos(hpr.Heading) * cp,
		Z: math.Sin(hpr.Pitch),
	}
	return EastNorthUpRotation(p).MulVec(local)
}
