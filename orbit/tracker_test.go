package orbit

import (
	"errors"
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
	"github.com/signalsfoundry/georef/georef"
)

// ISS sample TLE.
const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

type capturingUpdater struct {
	positions map[string]r3.Vec
	calls     map[string]int
}

func (c *capturingUpdater) UpdateObjectPosition(id string, pos r3.Vec) error {
	if c.positions == nil {
		c.positions = make(map[string]r3.Vec)
		c.calls = make(map[string]int)
	}
	c.positions[id] = pos
	c.calls[id]++
	return nil
}

func TestSGP4Propagator_MatchesLibraryGeodetic(t *testing.T) {
	p, err := NewSGP4Propagator(issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}

	at := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	pos, err := p.PositionAt(at)
	if err != nil {
		t.Fatalf("PositionAt: %v", err)
	}
	if r := r3.Norm(pos); r < 6.6e6 || r > 6.9e6 {
		t.Fatalf("ISS radius %.0f m outside low Earth orbit", r)
	}

	c, ok := geodesy.EcefToCartographic(pos)
	if !ok {
		t.Fatalf("EcefToCartographic failed for %+v", pos)
	}

	sat := satellite.TLEToSat(issLine1, issLine2, satellite.GravityWGS72)
	eci, _ := satellite.Propagate(sat, 2021, 10, 2, 0, 0, 0)
	gmst := satellite.ThetaG_JD(satellite.JDay(2021, 10, 2, 0, 0, 0))
	altKm, _, lla := satellite.ECIToLLA(eci, gmst)

	if d := math.Abs(c.Latitude - lla.Latitude); d > 1e-3 {
		t.Fatalf("latitude %v vs library %v", c.Latitude, lla.Latitude)
	}
	if d := math.Abs(math.Remainder(c.Longitude-lla.Longitude, 2*math.Pi)); d > 1e-3 {
		t.Fatalf("longitude %v vs library %v", c.Longitude, lla.Longitude)
	}
	if d := math.Abs(c.Height - altKm*1000); d > 2000 {
		t.Fatalf("height %.0f m vs library %.0f m", c.Height, altKm*1000)
	}
}

func TestSGP4Propagator_ChangesOverTime(t *testing.T) {
	p, err := NewSGP4Propagator(issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}
	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	first, err := p.PositionAt(t1)
	if err != nil {
		t.Fatalf("PositionAt: %v", err)
	}
	second, err := p.PositionAt(t1.Add(5 * time.Minute))
	if err != nil {
		t.Fatalf("PositionAt: %v", err)
	}
	// Roughly 7.66 km/s for five minutes, along a slightly curved path.
	if d := r3.Norm(r3.Sub(first, second)); d < 2.0e6 || d > 2.4e6 {
		t.Fatalf("ISS moved %.0f m in five minutes", d)
	}
}

func TestNewSGP4Propagator_RejectsBadLines(t *testing.T) {
	cases := map[string][2]string{
		"short":    {"1 25544U", issLine2},
		"swapped":  {issLine2, issLine1},
		"mismatch": {issLine1, "2 25545" + issLine2[7:]},
	}
	for name, lines := range cases {
		if _, err := NewSGP4Propagator(lines[0], lines[1]); !errors.Is(err, ErrInvalidTLE) {
			t.Fatalf("%s: err = %v, want ErrInvalidTLE", name, err)
		}
	}
}

func TestTracker_AddUpdateAndRemove(t *testing.T) {
	updater := &capturingUpdater{}
	tr := NewTracker(WithPositionUpdater(updater))

	if err := tr.AddSatellite("iss", issLine1, issLine2); err != nil {
		t.Fatalf("AddSatellite: %v", err)
	}
	ground := r3.Vec{X: 1, Y: 2, Z: 3}
	if err := tr.AddStatic("ground", ground); err != nil {
		t.Fatalf("AddStatic: %v", err)
	}
	if err := tr.AddStatic("iss", ground); !errors.Is(err, ErrObjectExists) {
		t.Fatalf("duplicate Add err = %v, want ErrObjectExists", err)
	}
	if err := tr.AddSatellite("bad", "nope", "nope"); !errors.Is(err, ErrInvalidTLE) {
		t.Fatalf("AddSatellite bad err = %v", err)
	}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	if err := tr.UpdatePositions(t1); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	firstSat := updater.positions["iss"]

	if err := tr.UpdatePositions(t1.Add(time.Minute)); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	if updater.positions["iss"] == firstSat {
		t.Fatalf("satellite did not move")
	}
	if updater.positions["ground"] != ground || updater.calls["ground"] != 2 {
		t.Fatalf("static object = %+v after %d calls", updater.positions["ground"], updater.calls["ground"])
	}

	if err := tr.Remove("ground"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tr.Remove("ground"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("second Remove err = %v", err)
	}
	if err := tr.UpdatePositions(t1.Add(2 * time.Minute)); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	if updater.calls["ground"] != 2 {
		t.Fatalf("removed object was updated")
	}
}

type failingPropagator struct{}

func (failingPropagator) PositionAt(time.Time) (r3.Vec, error) {
	return r3.Vec{}, ErrPropagation
}

func TestTracker_JoinsErrorsAndKeepsGoing(t *testing.T) {
	updater := &capturingUpdater{}
	tr := NewTracker(WithPositionUpdater(updater))
	_ = tr.Add("a-broken", failingPropagator{})
	_ = tr.AddStatic("b-fine", r3.Vec{X: 7e6})

	err := tr.UpdatePositions(time.Now())
	if !errors.Is(err, ErrPropagation) {
		t.Fatalf("err = %v, want ErrPropagation", err)
	}
	if updater.calls["b-fine"] != 1 {
		t.Fatalf("healthy object skipped after a failure")
	}
}

func TestLevelUpdater_CreatesThenMovesAnchors(t *testing.T) {
	lv := georef.NewLevel()
	tr := NewTracker(WithPositionUpdater(LevelUpdater{Level: lv}))
	if err := tr.AddSatellite("iss", issLine1, issLine2); err != nil {
		t.Fatalf("AddSatellite: %v", err)
	}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	if err := tr.UpdatePositions(t1); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	a, err := lv.GetAnchor("iss")
	if err != nil {
		t.Fatalf("anchor not created: %v", err)
	}
	want, _ := tr.PositionOf("iss", t1)
	if a.Position() != want {
		t.Fatalf("anchor at %+v, want %+v", a.Position(), want)
	}

	// Recentre on the satellite; its render position collapses to zero.
	lv.OriginShift().SetOrigin(want)
	if p := a.Pose().Position; r3.Norm(p) > 1e-6 {
		t.Fatalf("anchor render position %+v, want zero", p)
	}

	t2 := t1.Add(10 * time.Second)
	if err := tr.UpdatePositions(t2); err != nil {
		t.Fatalf("UpdatePositions: %v", err)
	}
	if len(lv.ListAnchors()) != 1 {
		t.Fatalf("second update created another anchor")
	}
	if d := r3.Norm(a.Pose().Position); d < 50e3 || d > 100e3 {
		t.Fatalf("anchor moved %.0f m in ten seconds", d)
	}
}
