// Package orbit moves anchored objects along SGP4 orbits or keeps them at
// fixed ECEF positions, once per frame.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrInvalidTLE is returned for TLE lines that cannot be parsed.
	ErrInvalidTLE = errors.New("invalid TLE")
	// ErrPropagation is returned when SGP4 produces no usable position.
	ErrPropagation = errors.New("sgp4 propagation failed")
)

const kmToM = 1000.0

// Propagator yields an object's ECEF position in metres at a given time.
type Propagator interface {
	PositionAt(t time.Time) (r3.Vec, error)
}

// StaticPropagator keeps an object at a fixed ECEF position.
type StaticPropagator struct {
	Position r3.Vec
}

// PositionAt returns the fixed position.
func (s StaticPropagator) PositionAt(time.Time) (r3.Vec, error) {
	return s.Position, nil
}

// SGP4Propagator propagates a two-line element set with SGP4 and rotates
// the result into ECEF.
type SGP4Propagator struct {
	sat satellite.Satellite
}

// NewSGP4Propagator parses a TLE. go-satellite aborts on some malformed
// input, so the lines are checked first and any panic is turned into
// ErrInvalidTLE.
func NewSGP4Propagator(line1, line2 string) (p *SGP4Propagator, err error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)
	if err := validateTLE(line1, line2); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: %v", ErrInvalidTLE, r)
		}
	}()
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init code %d %s", ErrInvalidTLE, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{sat: sat}, nil
}

// PositionAt propagates to t (converted to UTC, whole seconds).
func (p *SGP4Propagator) PositionAt(t time.Time) (r3.Vec, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	eci, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	if !finite(eci) {
		return r3.Vec{}, fmt.Errorf("%w: non-finite position at %s", ErrPropagation, t.Format(time.RFC3339))
	}
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	ecef := satellite.ECIToECEF(eci, satellite.ThetaG_JD(jd))

	pos := r3.Vec{X: ecef.X * kmToM, Y: ecef.Y * kmToM, Z: ecef.Z * kmToM}
	if r3.Norm(pos) < 6.2e6 {
		return r3.Vec{}, fmt.Errorf("%w: position below the surface at %s", ErrPropagation, t.Format(time.RFC3339))
	}
	return pos, nil
}

func validateTLE(line1, line2 string) error {
	if len(line1) != 69 || len(line2) != 69 {
		return fmt.Errorf("%w: lines must be 69 characters, got %d and %d", ErrInvalidTLE, len(line1), len(line2))
	}
	if line1[0] != '1' || line2[0] != '2' {
		return fmt.Errorf("%w: lines must start with 1 and 2", ErrInvalidTLE)
	}
	if line1[2:7] != line2[2:7] {
		return fmt.Errorf("%w: catalogue numbers differ (%q, %q)", ErrInvalidTLE, line1[2:7], line2[2:7])
	}
	return nil
}

func finite(v satellite.Vector3) bool {
	for _, f := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
