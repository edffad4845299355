package geodesy

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestEastNorthUpFrame_Equator(t *testing.T) {
	p := CartographicToEcef(FromDegrees(0, 0, 0))
	frame := EastNorthUpFrame(p)

	want := Mat4{
		{0, 0, 1, p.X},
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
	}
	if !frame.ApproxEqual(want, 1e-12) {
		t.Fatalf("ENU at (0,0) = %v, want %v", frame, want)
	}
}

func TestEastNorthUpFrame_Orthonormal(t *testing.T) {
	for _, c := range []Cartographic{
		FromDegrees(-73.98, 40.75, 20),
		FromDegrees(151.2, -33.85, 0),
		FromDegrees(0, 90, 0),
		FromDegrees(0, -90, 0),
	} {
		p := CartographicToEcef(c)
		rot := EastNorthUpRotation(p)
		if !rot.IsOrthonormal(1e-12) {
			t.Fatalf("ENU at %+v is not orthonormal: %v", c, rot)
		}
		east, north, up := rot.Column(0), rot.Column(1), rot.Column(2)
		if r3.Norm(r3.Sub(r3.Cross(east, north), up)) > 1e-12 {
			t.Fatalf("ENU at %+v is not right-handed", c)
		}
		if r3.Dot(up, p) <= 0 {
			t.Fatalf("up at %+v points into the planet", c)
		}
	}
}

func TestEastNorthUpFrame_UpIsGeodeticAtAltitude(t *testing.T) {
	c := FromDegrees(-105.27, 40.01, 400e3)
	up := EastNorthUpRotation(CartographicToEcef(c)).Column(2)
	if d := r3.Norm(r3.Sub(up, GeodeticSurfaceNormalCartographic(c))); d > 1e-12 {
		t.Fatalf("up at 400 km is off the geodetic normal by %g", d)
	}
}

func TestEastNorthUpFrame_PolesUseFallbackEast(t *testing.T) {
	rot := EastNorthUpRotation(r3.Vec{Z: WGS84SemiMinorAxis})
	if rot.Column(0) != (r3.Vec{Y: 1}) {
		t.Fatalf("north pole east = %+v, want +Y", rot.Column(0))
	}
	south := EastNorthUpRotation(r3.Vec{Z: -WGS84SemiMinorAxis})
	if south.Column(2) != (r3.Vec{Z: -1}) {
		t.Fatalf("south pole up = %+v, want -Z", south.Column(2))
	}
}

func TestHeadingPitch_RoundTrip(t *testing.T) {
	p := CartographicToEcef(FromDegrees(10, 45, 1500))
	cases := []HeadingPitchRoll{
		{Heading: 0, Pitch: 0},
		{Heading: math.Pi / 2, Pitch: -0.3},
		{Heading: -2.5, Pitch: 1.2},
	}
	for _, in := range cases {
		dir := DirectionFromHeadingPitch(p, in)
		out, ok := HeadingPitchFromDirection(p, dir)
		if !ok {
			t.Fatalf("HeadingPitchFromDirection(%+v) failed", in)
		}
		if !scalar.EqualWithinAbs(out.Heading, in.Heading, 1e-12) || !scalar.EqualWithinAbs(out.Pitch, in.Pitch, 1e-12) {
			t.Fatalf("round trip: in %+v out %+v", in, out)
		}
	}
	if _, ok := HeadingPitchFromDirection(p, r3.Vec{}); ok {
		t.Fatalf("expected zero direction to be rejected")
	}
}

func TestMat4_AffineInverse(t *testing.T) {
	p := CartographicToEcef(FromDegrees(-122.4, 37.8, 50))
	frame := EastNorthUpFrame(p)
	inv, ok := frame.AffineInverse()
	if !ok {
		t.Fatalf("AffineInverse failed")
	}
	if got := inv.Mul(frame); !got.ApproxEqual(Identity4(), 1e-9) {
		t.Fatalf("inv*frame = %v, want identity", got)
	}

	var prod mat.Dense
	prod.Mul(frame.Dense(), inv.Dense())
	if !mat.EqualApprox(&prod, Identity4().Dense(), 1e-6) {
		t.Fatalf("frame*inv is not identity: %v", mat.Formatted(&prod))
	}
}

func TestMat3_InverseGeneral(t *testing.T) {
	m := Mat3{{2, 0, 0}, {0, 3, 1}, {0, 0, 4}}
	inv, ok := m.Inverse()
	if !ok {
		t.Fatalf("Inverse failed")
	}
	if got := m.Mul(inv); !got.ApproxEqual(Identity3(), 1e-12) {
		t.Fatalf("m*inv = %v, want identity", got)
	}
	if _, ok := (Mat3{}).Inverse(); ok {
		t.Fatalf("expected singular matrix to fail")
	}
}

func TestMat3_Orthonormalize(t *testing.T) {
	skewed := Mat3{{1, 0.01, 0}, {0, 1, 0.02}, {0.001, 0, 1}}
	o := skewed.Orthonormalize()
	if !o.IsOrthonormal(1e-12) {
		t.Fatalf("Orthonormalize result is not orthonormal: %v", o)
	}
	if !o.ApproxEqual(skewed, 0.05) {
		t.Fatalf("Orthonormalize moved too far: %v", o)
	}
	if got := (Mat3{}).Orthonormalize(); got != Identity3() {
		t.Fatalf("degenerate input = %v, want identity", got)
	}
}
