package georef

import (
	"context"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
	"github.com/signalsfoundry/georef/internal/logging"
)

// Pose is an object's render-space placement. Position stays in double
// precision here; Position32 is what a single-precision engine stores.
type Pose struct {
	Position r3.Vec
	// Rotation holds the local East, North and Up axes in render space.
	Rotation geodesy.Mat3
}

// Transform returns the pose as an affine matrix.
func (p Pose) Transform() geodesy.Mat4 {
	return geodesy.Compose(p.Rotation, p.Position)
}

// Position32 narrows the position for single-precision storage.
func (p Pose) Position32() [3]float32 {
	return [3]float32{float32(p.Position.X), float32(p.Position.Y), float32(p.Position.Z)}
}

// PoseSink receives the recomputed pose of an anchored object.
type PoseSink interface {
	SetLocalPose(Pose)
}

// PoseSinkFunc adapts a function to PoseSink.
type PoseSinkFunc func(Pose)

// SetLocalPose calls f.
func (f PoseSinkFunc) SetLocalPose(p Pose) { f(p) }

// Anchor keeps a scene object at an absolute ECEF position. Its local pose
// is absToRel · ENU(position): the ENU frame at its own location pushed
// through the origin shift, so "up" stays correct however far it is from
// the shared origin. Basis changes do not move anchors.
//
// The position must not be the planet centre, where ENU is undefined; such
// an anchor falls back to the polar frame and logs a warning.
type Anchor struct {
	id       string
	position r3.Vec
	frame    Frame
	sink     PoseSink
	pose     Pose

	shiftSub *Subscription

	log logging.Logger
}

// AnchorOption customises Anchor construction.
type AnchorOption func(*Anchor)

// WithAnchorID overrides the generated ID.
func WithAnchorID(id string) AnchorOption {
	return func(a *Anchor) {
		if id != "" {
			a.id = id
		}
	}
}

// WithAnchorSink attaches the object whose pose the anchor drives.
func WithAnchorSink(s PoseSink) AnchorOption {
	return func(a *Anchor) {
		a.sink = s
	}
}

// WithAnchorLogger attaches a logger.
func WithAnchorLogger(l logging.Logger) AnchorOption {
	return func(a *Anchor) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAnchor creates an anchor at the ECEF position and attaches it to the
// frame's notifications. The pose is resolved before NewAnchor returns.
func NewAnchor(frame Frame, position r3.Vec, opts ...AnchorOption) *Anchor {
	a := &Anchor{
		id:       uuid.NewString(),
		position: position,
		frame:    frame,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.checkPosition()
	a.Attach()
	return a
}

// ID returns the anchor's identifier.
func (a *Anchor) ID() string { return a.id }

// Position returns the absolute ECEF position.
func (a *Anchor) Position() r3.Vec { return a.position }

// Pose returns the last resolved render-space pose.
func (a *Anchor) Pose() Pose { return a.pose }

// LocalTransform returns the last resolved pose as a matrix.
func (a *Anchor) LocalTransform() geodesy.Mat4 { return a.pose.Transform() }

// Cartographic returns the anchor's geodetic position.
func (a *Anchor) Cartographic() (geodesy.Cartographic, bool) {
	return geodesy.EcefToCartographic(a.position)
}

// Attached reports whether the anchor follows notifications.
func (a *Anchor) Attached() bool { return a.shiftSub != nil }

// SetPosition stores the absolute position and immediately resolves the
// pose from the frame's current state, whatever order shifts arrived in.
func (a *Anchor) SetPosition(p r3.Vec) {
	a.position = p
	a.checkPosition()
	a.resolve(a.frame.shift.State())
}

// SetCartographic is SetPosition for a geodetic position.
func (a *Anchor) SetCartographic(c geodesy.Cartographic) {
	a.SetPosition(geodesy.CartographicToEcef(c))
}

// OnOriginShifting resolves the pose against a new shift state.
func (a *Anchor) OnOriginShifting(state OriginShiftState) {
	a.resolve(state)
}

// Attach subscribes to shift notifications. The bus replays the current
// state, so the pose is fresh once Attach returns.
func (a *Anchor) Attach() {
	if a.Attached() {
		return
	}
	a.shiftSub = a.frame.shift.OnOriginShifting(a.OnOriginShifting)
}

// Detach stops following notifications. The last pose is kept.
func (a *Anchor) Detach() {
	a.shiftSub.Unsubscribe()
	a.shiftSub = nil
}

func (a *Anchor) resolve(shift OriginShiftState) {
	local := EcefToRelative(shift).Mul(geodesy.EastNorthUpFrame(a.position))
	a.pose = Pose{Position: local.Translation(), Rotation: local.Linear()}
	if a.sink != nil {
		a.sink.SetLocalPose(a.pose)
	}
}

func (a *Anchor) checkPosition() {
	if a.position == (r3.Vec{}) {
		a.log.Warn(context.Background(), "anchor placed at the planet centre; local frame is undefined",
			logging.String("anchor_id", a.id))
	}
}
