package georef

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
)

// Frame is the coordinate pipeline of a level. Render (relative) space is
// ECEF pushed through the origin shift, whose origin is an ECEF position, so
// the shift origin always lands on render zero. Engine space is the
// georeferenced ENU frame of the active basis; it is independent of the
// shift and used by collaborators that work in level-local coordinates.
// Frame holds references, so every call reflects the state at call time.
type Frame struct {
	transforms *TransformRegistry
	shift      *OriginShift
}

// NewFrame binds a registry and an origin shift.
func NewFrame(transforms *TransformRegistry, shift *OriginShift) Frame {
	return Frame{transforms: transforms, shift: shift}
}

// Transforms returns the level's transform registry.
func (f Frame) Transforms() *TransformRegistry { return f.transforms }

// OriginShift returns the level's origin shift.
func (f Frame) OriginShift() *OriginShift { return f.shift }

// EcefToRelative returns the shift's absToRel.
func (f Frame) EcefToRelative() geodesy.Mat4 {
	return EcefToRelative(f.shift.State())
}

// RelativeToEcef returns the shift's relToAbs.
func (f Frame) RelativeToEcef() geodesy.Mat4 {
	return RelativeToEcef(f.shift.State())
}

// EcefToEngine returns the active basis' ECEF-to-engine matrix.
func (f Frame) EcefToEngine() geodesy.Mat4 {
	return f.transforms.Basis().EcefToEngine
}

// EngineToEcef returns the active basis' engine-to-ECEF matrix.
func (f Frame) EngineToEcef() geodesy.Mat4 {
	return f.transforms.Basis().EngineToEcef
}

// EngineToRelative maps engine space into render space:
// absToRel · engineToEcef.
func (f Frame) EngineToRelative() geodesy.Mat4 {
	return f.shift.State().AbsToRel.Mul(f.transforms.Basis().EngineToEcef)
}

// ToRelative maps an ECEF position into render space.
func (f Frame) ToRelative(ecef r3.Vec) r3.Vec {
	return f.EcefToRelative().MulPoint(ecef)
}

// ToEcef maps a render-space position back to ECEF.
func (f Frame) ToEcef(rel r3.Vec) r3.Vec {
	return f.RelativeToEcef().MulPoint(rel)
}

// ToEngine maps an ECEF position into engine space.
func (f Frame) ToEngine(ecef r3.Vec) r3.Vec {
	return f.EcefToEngine().MulPoint(ecef)
}

// EcefToRelative is the ECEF-to-render matrix of a shift state.
func EcefToRelative(shift OriginShiftState) geodesy.Mat4 {
	return shift.AbsToRel
}

// RelativeToEcef is the render-to-ECEF matrix of a shift state.
func RelativeToEcef(shift OriginShiftState) geodesy.Mat4 {
	return shift.RelToAbs
}
