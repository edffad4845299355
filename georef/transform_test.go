package georef

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
)

type countingTransformMetrics struct{ changes int }

func (c *countingTransformMetrics) IncTransformChanges() { c.changes++ }

func TestCoordinateTransformBasisInverse(t *testing.T) {
	tr := NewIdentityTransform("test")
	for _, c := range []geodesy.Cartographic{
		geodesy.FromDegrees(-105.25, 39.74, 1600),
		geodesy.FromDegrees(139.69, 35.68, 40),
		geodesy.FromDegrees(0, 89.9, 0),
		geodesy.FromDegrees(-45, -60, 5000),
	} {
		tr.SetOrigin(geodesy.CartographicToEcef(c))
		got := tr.EcefToEngine().Mul(tr.EngineToEcef())
		if !got.ApproxEqual(geodesy.Identity4(), 1e-9) {
			t.Fatalf("ecefToEngine*engineToEcef at %+v = %v, want identity", c, got)
		}
	}
}

func TestCoordinateTransformOriginMapsToEngineZero(t *testing.T) {
	origin := geodesy.CartographicToEcef(geodesy.FromDegrees(2.35, 48.85, 35))
	tr := NewCoordinateTransform("paris", origin)

	if got := tr.EcefToEngine().MulPoint(origin); r3.Norm(got) > 1e-6 {
		t.Fatalf("origin in engine space = %+v, want zero", got)
	}
	// One metre up in ECEF is +Z in engine space.
	up := geodesy.GeodeticSurfaceNormal(origin)
	got := tr.EcefToEngine().MulPoint(r3.Add(origin, up))
	if r3.Norm(r3.Sub(got, r3.Vec{Z: 1})) > 1e-6 {
		t.Fatalf("up in engine space = %+v, want (0,0,1)", got)
	}
}

func TestCoordinateTransformPreviewDoesNotMutate(t *testing.T) {
	tr := NewIdentityTransform("test")
	calls := 0
	tr.OnChanged(func(CoordinateTransformBasis) { calls++ })

	origin := geodesy.CartographicToEcef(geodesy.FromDegrees(10, 10, 0))
	preview := CalculateEngineToEcefAtOrigin(origin)
	previewInv := CalculateEcefToEngineAtOrigin(origin)

	if tr.EngineToEcef() != geodesy.Identity4() {
		t.Fatalf("preview mutated the transform")
	}
	if calls != 1 {
		t.Fatalf("preview fired change events: calls=%d", calls)
	}

	tr.SetOrigin(origin)
	if tr.EngineToEcef() != preview || tr.EcefToEngine() != previewInv {
		t.Fatalf("committed basis differs from preview")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestCoordinateTransformChangeCarriesValue(t *testing.T) {
	tr := NewIdentityTransform("test")
	var seen []CoordinateTransformBasis
	tr.OnChanged(func(b CoordinateTransformBasis) { seen = append(seen, b) })

	first := geodesy.CartographicToEcef(geodesy.FromDegrees(1, 1, 0))
	tr.SetOrigin(first)
	tr.SetOrigin(geodesy.CartographicToEcef(geodesy.FromDegrees(2, 2, 0)))

	if len(seen) != 3 {
		t.Fatalf("got %d notifications, want 3", len(seen))
	}
	if seen[1].Origin != first {
		t.Fatalf("earlier notification was mutated: %+v", seen[1].Origin)
	}
}

func TestTransformRegistryDefaultsAndReplay(t *testing.T) {
	metrics := &countingTransformMetrics{}
	reg := NewTransformRegistry(WithTransformMetrics(metrics))

	if reg.GetCoordinateTransform() == nil {
		t.Fatalf("registry returned nil transform")
	}
	if reg.Basis() != IdentityBasis() {
		t.Fatalf("default basis is not identity")
	}

	var refs []*CoordinateTransform
	reg.OnTransformChanged(func(tr *CoordinateTransform) { refs = append(refs, tr) })
	if len(refs) != 1 || refs[0] != reg.GetCoordinateTransform() {
		t.Fatalf("late subscriber did not receive the current reference: %v", refs)
	}

	denver := NewCoordinateTransform("denver", geodesy.CartographicToEcef(geodesy.FromDegrees(-105, 39.7, 1600)))
	reg.SetCoordinateTransform(denver)
	reg.SetCoordinateTransform(denver)

	var late []*CoordinateTransform
	reg.OnTransformChanged(func(tr *CoordinateTransform) { late = append(late, tr) })
	if len(late) != 1 || late[0] != denver {
		t.Fatalf("late subscriber replay = %v, want [denver]", late)
	}
	if len(refs) != 2 {
		t.Fatalf("reassigning the same transform re-broadcast: %d notifications", len(refs))
	}

	reg.SetCoordinateTransform(nil)
	if reg.GetCoordinateTransform() == nil || reg.Basis() != IdentityBasis() {
		t.Fatalf("clearing the transform did not restore the identity default")
	}
	if metrics.changes != 2 {
		t.Fatalf("transform changes recorded = %d, want 2", metrics.changes)
	}
}

func TestTransformRegistryFollowsActiveBasis(t *testing.T) {
	reg := NewTransformRegistry()
	a := NewIdentityTransform("a")
	b := NewIdentityTransform("b")
	reg.SetCoordinateTransform(a)

	var bases []CoordinateTransformBasis
	reg.OnBasisChanged(func(basis CoordinateTransformBasis) { bases = append(bases, basis) })

	originA := geodesy.CartographicToEcef(geodesy.FromDegrees(5, 5, 0))
	a.SetOrigin(originA)
	if len(bases) != 2 || bases[1].Origin != originA {
		t.Fatalf("registry did not forward active basis change: %+v", bases)
	}

	reg.SetCoordinateTransform(b)
	a.SetOrigin(geodesy.CartographicToEcef(geodesy.FromDegrees(6, 6, 0)))
	if len(bases) != 3 {
		t.Fatalf("inactive transform leaked a basis change: %d notifications", len(bases))
	}
	if bases[2] != IdentityBasis() {
		t.Fatalf("reassignment did not publish the new basis")
	}
}
