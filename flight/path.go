package flight

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
)

// ErrInvalidEndpoint is returned when a flight endpoint has no geodetic
// position, i.e. it is the planet centre or not finite.
var ErrInvalidEndpoint = errors.New("flight endpoint has no geodetic position")

const (
	profilePower  = 8.0
	profileFactor = 1e6
)

// heightProfile maps flight progress in [0,1] to height in metres.
type heightProfile func(t float64) float64

// newHeightProfile rises from start to altitude and descends to end along a
// flattened power curve. When altitude does not clear both endpoints the
// height is interpolated linearly instead.
func newHeightProfile(start, end, altitude float64) (profile heightProfile, parabolic bool) {
	if altitude <= math.Max(start, end) {
		return func(t float64) float64 {
			return start + t*(end-start)
		}, false
	}
	s := -math.Pow((altitude-start)*profileFactor, 1/profilePower)
	e := math.Pow((altitude-end)*profileFactor, 1/profilePower)
	return func(t float64) float64 {
		x := s + t*(e-s)
		return altitude - math.Pow(x, profilePower)/profileFactor
	}, true
}

// lookDown is used when a flight endpoint has no usable direction.
var lookDown = geodesy.HeadingPitchRoll{Pitch: -math.Pi / 2}

// Plan is an in-progress flight between two ECEF poses.
type Plan struct {
	BeginEcef            r3.Vec
	DestinationEcef      r3.Vec
	BeginDirection       r3.Vec
	DestinationDirection r3.Vec

	Begin       geodesy.Cartographic
	Destination geodesy.Cartographic
	BeginHPR    geodesy.HeadingPitchRoll
	DestHPR     geodesy.HeadingPitchRoll

	Elapsed  time.Duration
	Duration time.Duration

	// Altitude is the cruise height and Parabolic whether the height
	// profile climbs to it.
	Altitude  float64
	Parabolic bool

	height heightProfile
}

// NewPlan computes a flight from begin to destination. A non-positive
// duration selects the default derived from the great-circle distance.
func NewPlan(cfg Config, beginEcef, beginDir, destEcef, destDir r3.Vec, duration time.Duration) (*Plan, error) {
	cfg = cfg.ApplyDefaults()

	begin, ok := geodesy.EcefToCartographic(beginEcef)
	if !ok {
		return nil, ErrInvalidEndpoint
	}
	dest, ok := geodesy.EcefToCartographic(destEcef)
	if !ok {
		return nil, ErrInvalidEndpoint
	}

	beginHPR, ok := geodesy.HeadingPitchFromDirection(beginEcef, beginDir)
	if !ok {
		beginHPR = lookDown
	}
	destHPR, ok := geodesy.HeadingPitchFromDirection(destEcef, destDir)
	if !ok {
		destHPR = lookDown
		destDir = geodesy.DirectionFromHeadingPitch(destEcef, destHPR)
	}

	if duration <= 0 {
		duration = cfg.DefaultDuration(geodesy.GreatCircleDistance(begin, dest))
	}

	chord := geodesy.EastNorthUpRotation(beginEcef).Transpose().MulVec(r3.Sub(destEcef, beginEcef))
	altitude := cfg.CruiseAltitude(math.Hypot(chord.X, chord.Y), math.Abs(chord.Z))
	height, parabolic := newHeightProfile(begin.Height, dest.Height, altitude)

	return &Plan{
		BeginEcef:            beginEcef,
		DestinationEcef:      destEcef,
		BeginDirection:       beginDir,
		DestinationDirection: destDir,
		Begin:                begin,
		Destination:          dest,
		BeginHPR:             beginHPR,
		DestHPR:              destHPR,
		Duration:             duration,
		Altitude:             altitude,
		Parabolic:            parabolic,
		height:               height,
	}, nil
}

// Progress returns the completed fraction in [0,1].
func (p *Plan) Progress() float64 {
	if p.Duration <= 0 || p.Elapsed >= p.Duration {
		return 1
	}
	return float64(p.Elapsed) / float64(p.Duration)
}

// Done reports whether the elapsed time has reached the duration.
func (p *Plan) Done() bool {
	return p.Elapsed >= p.Duration
}

// At returns the interpolated ECEF position and view direction at progress t.
func (p *Plan) At(t float64) (position, direction r3.Vec) {
	t = math.Max(0, math.Min(1, t))
	c := geodesy.Cartographic{
		Longitude: p.Begin.Longitude + t*shortestAngle(p.Destination.Longitude-p.Begin.Longitude),
		Latitude:  p.Begin.Latitude + t*(p.Destination.Latitude-p.Begin.Latitude),
		Height:    p.height(t),
	}
	position = geodesy.CartographicToEcef(c)
	hpr := geodesy.HeadingPitchRoll{
		Heading: p.BeginHPR.Heading + t*shortestAngle(p.DestHPR.Heading-p.BeginHPR.Heading),
		Pitch:   p.BeginHPR.Pitch + t*(p.DestHPR.Pitch-p.BeginHPR.Pitch),
	}
	return position, geodesy.DirectionFromHeadingPitch(position, hpr)
}

// shortestAngle wraps a into [-π, π].
func shortestAngle(a float64) float64 {
	return math.Remainder(a, 2*math.Pi)
}
