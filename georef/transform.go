// Package georef holds the level-wide georeferencing state: the coordinate
// transform basis between engine space and ECEF, the floating-origin shift
// state over ECEF, and the anchors that follow the shift.
//
// Everything here runs on a single update thread. Mutators recompute and
// broadcast before returning, so observers never see a half-applied change.
package georef

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
)

// CoordinateTransformBasis is the affine pair mapping engine space to ECEF
// and back. It is always handed out by value.
type CoordinateTransformBasis struct {
	Origin       r3.Vec
	EngineToEcef geodesy.Mat4
	EcefToEngine geodesy.Mat4
}

// IdentityBasis is the basis of an ungeoreferenced level: engine space is ECEF.
func IdentityBasis() CoordinateTransformBasis {
	return CoordinateTransformBasis{
		EngineToEcef: geodesy.Identity4(),
		EcefToEngine: geodesy.Identity4(),
	}
}

// BasisAtOrigin computes the basis anchored at origin with ENU orientation.
func BasisAtOrigin(origin r3.Vec) CoordinateTransformBasis {
	engineToEcef := geodesy.EastNorthUpFrame(origin)
	// The ENU rotation is orthonormal by construction, so the inverse exists.
	ecefToEngine, _ := engineToEcef.AffineInverse()
	return CoordinateTransformBasis{
		Origin:       origin,
		EngineToEcef: engineToEcef,
		EcefToEngine: ecefToEngine,
	}
}

// CalculateEngineToEcefAtOrigin previews the engine-to-ECEF matrix a
// transform would have at origin, without mutating anything.
func CalculateEngineToEcefAtOrigin(origin r3.Vec) geodesy.Mat4 {
	return BasisAtOrigin(origin).EngineToEcef
}

// CalculateEcefToEngineAtOrigin previews the ECEF-to-engine matrix a
// transform would have at origin, without mutating anything.
func CalculateEcefToEngineAtOrigin(origin r3.Vec) geodesy.Mat4 {
	return BasisAtOrigin(origin).EcefToEngine
}

// CoordinateTransform owns one level's basis and broadcasts every change.
type CoordinateTransform struct {
	name  string
	basis CoordinateTransformBasis
	bus   *Bus[CoordinateTransformBasis]
}

// NewIdentityTransform returns a transform whose basis is the identity.
func NewIdentityTransform(name string) *CoordinateTransform {
	basis := IdentityBasis()
	return &CoordinateTransform{name: name, basis: basis, bus: NewBus(basis)}
}

// NewCoordinateTransform returns a transform anchored at origin.
func NewCoordinateTransform(name string, origin r3.Vec) *CoordinateTransform {
	basis := BasisAtOrigin(origin)
	return &CoordinateTransform{name: name, basis: basis, bus: NewBus(basis)}
}

// Name identifies the transform in logs and metrics.
func (t *CoordinateTransform) Name() string { return t.name }

// SetOrigin re-anchors the basis at origin and broadcasts the new basis.
func (t *CoordinateTransform) SetOrigin(origin r3.Vec) {
	t.basis = BasisAtOrigin(origin)
	t.bus.Publish(t.basis)
}

// Basis returns a copy of the current basis.
func (t *CoordinateTransform) Basis() CoordinateTransformBasis { return t.basis }

// Origin returns the ECEF anchor of the basis.
func (t *CoordinateTransform) Origin() r3.Vec { return t.basis.Origin }

// EngineToEcef returns the engine-to-ECEF matrix.
func (t *CoordinateTransform) EngineToEcef() geodesy.Mat4 { return t.basis.EngineToEcef }

// EcefToEngine returns the ECEF-to-engine matrix.
func (t *CoordinateTransform) EcefToEngine() geodesy.Mat4 { return t.basis.EcefToEngine }

// OnChanged subscribes to basis changes; fn is called immediately with the
// current basis.
func (t *CoordinateTransform) OnChanged(fn func(CoordinateTransformBasis)) *Subscription {
	return t.bus.Subscribe(fn)
}
