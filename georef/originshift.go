package georef

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
	"github.com/signalsfoundry/georef/internal/logging"
)

// OriginShiftState is the floating-origin record applied to every renderable
// position before it reaches single-precision storage.
//
// AbsToRel translates by -Origin and then applies Rotation; RelToAbs is its
// inverse. Both are recomputed together on every mutation.
type OriginShiftState struct {
	Origin   r3.Vec
	Rotation geodesy.Mat3
	AbsToRel geodesy.Mat4
	RelToAbs geodesy.Mat4
}

// NewOriginShiftState computes the matrix pair for origin and rotation.
// rotation must be invertible; a singular rotation leaves RelToAbs as the
// pure translation back to origin.
func NewOriginShiftState(origin r3.Vec, rotation geodesy.Mat3) OriginShiftState {
	absToRel := geodesy.FromRotation(rotation).Mul(geodesy.Translation(r3.Scale(-1, origin)))

	// inverse(R · T(-o)) = T(o) · R⁻¹, built directly to keep the pair exact.
	inv, ok := rotation.Inverse()
	if !ok {
		inv = geodesy.Identity3()
	}
	relToAbs := geodesy.Compose(inv, origin)

	return OriginShiftState{
		Origin:   origin,
		Rotation: rotation,
		AbsToRel: absToRel,
		RelToAbs: relToAbs,
	}
}

// IdentityOriginShiftState is the state of a level before any shift.
func IdentityOriginShiftState() OriginShiftState {
	return NewOriginShiftState(r3.Vec{}, geodesy.Identity3())
}

// ShiftMetricsRecorder observes origin moves.
type ShiftMetricsRecorder interface {
	ObserveOriginShift(distance float64)
}

// OriginShift is the single source of truth for a level's floating origin.
//
// None of its mutators can fail. Rotations are assumed orthonormal unless
// WithRotationNormalization is set; a skewed rotation is a caller error that
// is not checked.
type OriginShift struct {
	state OriginShiftState
	bus   *Bus[OriginShiftState]

	normalize bool

	log     logging.Logger
	metrics ShiftMetricsRecorder
}

// OriginShiftOption customises OriginShift construction.
type OriginShiftOption func(*OriginShift)

// WithRotationNormalization orthonormalizes every rotation passed to
// SetOriginAndRotation before use.
func WithRotationNormalization() OriginShiftOption {
	return func(s *OriginShift) {
		s.normalize = true
	}
}

// WithShiftLogger attaches a logger.
func WithShiftLogger(l logging.Logger) OriginShiftOption {
	return func(s *OriginShift) {
		if l != nil {
			s.log = l
		}
	}
}

// WithShiftMetrics attaches a metrics recorder.
func WithShiftMetrics(m ShiftMetricsRecorder) OriginShiftOption {
	return func(s *OriginShift) {
		s.metrics = m
	}
}

// NewOriginShift returns an origin shift in the identity state.
func NewOriginShift(opts ...OriginShiftOption) *OriginShift {
	initial := IdentityOriginShiftState()
	s := &OriginShift{
		state: initial,
		bus:   NewBus(initial),
		log:   logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// SetOrigin moves the origin, keeping the rotation.
func (s *OriginShift) SetOrigin(origin r3.Vec) {
	s.apply(origin, s.state.Rotation)
}

// ShiftOrigin moves the origin by delta, keeping the rotation.
func (s *OriginShift) ShiftOrigin(delta r3.Vec) {
	s.apply(r3.Add(s.state.Origin, delta), s.state.Rotation)
}

// SetOriginAndRotation replaces both origin and rotation.
func (s *OriginShift) SetOriginAndRotation(origin r3.Vec, rotation geodesy.Mat3) {
	if s.normalize {
		rotation = rotation.Orthonormalize()
	}
	s.apply(origin, rotation)
}

// Origin returns the current origin.
func (s *OriginShift) Origin() r3.Vec { return s.state.Origin }

// Rotation returns the current rotation.
func (s *OriginShift) Rotation() geodesy.Mat3 { return s.state.Rotation }

// AbsToRel returns the ECEF-to-relative matrix.
func (s *OriginShift) AbsToRel() geodesy.Mat4 { return s.state.AbsToRel }

// RelToAbs returns the relative-to-ECEF matrix.
func (s *OriginShift) RelToAbs() geodesy.Mat4 { return s.state.RelToAbs }

// State returns a copy of the full state.
func (s *OriginShift) State() OriginShiftState { return s.state }

// OnOriginShifting subscribes to shift broadcasts. fn is called immediately
// with the current state, even if no shift has happened yet.
func (s *OriginShift) OnOriginShifting(fn func(OriginShiftState)) *Subscription {
	return s.bus.Subscribe(fn)
}

// Subscribers returns the number of attached observers.
func (s *OriginShift) Subscribers() int {
	return s.bus.Len()
}

func (s *OriginShift) apply(origin r3.Vec, rotation geodesy.Mat3) {
	prev := s.state.Origin
	s.state = NewOriginShiftState(origin, rotation)

	distance := r3.Norm(r3.Sub(origin, prev))
	if s.metrics != nil {
		s.metrics.ObserveOriginShift(distance)
	}
	s.log.Debug(context.Background(), "origin shifted",
		logging.Vec("origin", origin),
		logging.Float("distance_m", distance),
		logging.Int("subscribers", s.bus.Len()),
	)

	s.bus.Publish(s.state)
}
