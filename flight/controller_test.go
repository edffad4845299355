package flight

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
	"github.com/signalsfoundry/georef/georef"
	"github.com/signalsfoundry/georef/internal/logging"
)

const tick = 10 * time.Millisecond

type flightCounts struct {
	started   int
	completed []time.Duration
}

func (f *flightCounts) FlightStarted()                  { f.started++ }
func (f *flightCounts) FlightCompleted(d time.Duration) { f.completed = append(f.completed, d) }

func ecefAt(lon, lat, h float64) r3.Vec {
	return geodesy.CartographicToEcef(geodesy.FromDegrees(lon, lat, h))
}

// newTestController places a camera at (lon, lat, h) looking north along
// the horizon.
func newTestController(t *testing.T, lv *georef.Level, lon, lat, h float64, opts ...Option) (*Controller, *SimpleCamera) {
	t.Helper()
	pos := ecefAt(lon, lat, h)
	dir := geodesy.DirectionFromHeadingPitch(pos, geodesy.HeadingPitchRoll{})
	f := lv.Frame()
	m := f.EcefToRelative()
	cam := NewSimpleCamera(m.MulPoint(pos), m.MulDirection(dir))
	return NewController(f, cam, opts...), cam
}

func TestFlightCompletesWithSingleStopEvent(t *testing.T) {
	ctx := context.Background()
	lv := georef.NewLevel()
	counts := &flightCounts{}
	c, _ := newTestController(t, lv, 0, 0, 1000, WithMetrics(counts))

	dest := ecefAt(10, 0, 1000)
	var events []r3.Vec
	c.BindStopFlyHandler(func(d r3.Vec) { events = append(events, d) })

	require.NoError(t, c.FlyToEcefLocation(ctx, dest, r3.Vec{}))
	require.Equal(t, MidFly, c.State())
	plan, ok := c.Plan()
	require.True(t, ok)
	require.Equal(t, 3*time.Second, plan.Duration)
	require.True(t, plan.Parabolic)

	steps := int(plan.Duration / tick)
	for i := 1; i <= steps; i++ {
		c.Update(ctx, tick)
		if i < steps {
			require.Equal(t, MidFly, c.State(), "step %d", i)
			require.Empty(t, events)
		}
	}

	require.Equal(t, NoFly, c.State())
	require.Len(t, events, 1)
	require.Equal(t, dest, events[0])

	pos, _ := c.CameraEcef()
	require.InDelta(t, 0, r3.Norm(r3.Sub(pos, dest)), 1e-6)

	for i := 0; i < 10; i++ {
		c.Update(ctx, tick)
	}
	require.Len(t, events, 1)
	require.Equal(t, 1, counts.started)
	require.Equal(t, []time.Duration{3 * time.Second}, counts.completed)
}

func TestFlightExplicitDuration(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, georef.NewLevel(), 5, 45, 200)

	require.NoError(t, c.FlyToEcefLocationWithDuration(ctx, ecefAt(5.01, 45, 200), r3.Vec{}, 500*time.Millisecond))
	for i := 0; i < 49; i++ {
		c.Update(ctx, tick)
	}
	require.Equal(t, MidFly, c.State())
	require.InDelta(t, 0.98, c.Progress(), 1e-9)
	c.Update(ctx, tick)
	require.Equal(t, NoFly, c.State())
	require.Zero(t, c.Progress())
}

func TestFlightLogsTypedFields(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: "info", Format: "json", Output: &buf})
	c, _ := newTestController(t, georef.NewLevel(), 5, 45, 200, WithLogger(log))

	require.NoError(t, c.FlyToEcefLocationWithDuration(ctx, ecefAt(5.01, 45, 200), r3.Vec{}, 500*time.Millisecond))
	for i := 0; i < 50; i++ {
		c.Update(ctx, tick)
	}
	require.Equal(t, NoFly, c.State())

	records := map[string]map[string]any{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		records[rec["msg"].(string)] = rec
	}
	started, ok := records["flight started"]
	require.True(t, ok, "no flight started record")
	require.Equal(t, "500ms", started["duration"])
	require.IsType(t, true, started["parabolic"])

	completed, ok := records["flight completed"]
	require.True(t, ok, "no flight completed record")
	require.Equal(t, "500ms", completed["duration"])
}

func TestFlightCancellationIsContinuous(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, georef.NewLevel(), 0, 0, 1000)

	require.NoError(t, c.FlyToEcefLocation(ctx, ecefAt(10, 0, 1000), r3.Vec{}))

	prev, _ := c.CameraEcef()
	maxStep := 0.0
	for i := 0; i < 150; i++ {
		c.Update(ctx, tick)
		pos, _ := c.CameraEcef()
		maxStep = math.Max(maxStep, r3.Norm(r3.Sub(pos, prev)))
		prev = pos
	}

	var events int
	c.BindStopFlyHandler(func(r3.Vec) { events++ })
	require.NoError(t, c.FlyToEcefLocation(ctx, ecefAt(5, 10, 0), r3.Vec{}))

	plan, ok := c.Plan()
	require.True(t, ok)
	require.InDelta(t, 0, r3.Norm(r3.Sub(plan.BeginEcef, prev)), 1e-6)

	c.Update(ctx, tick)
	pos, _ := c.CameraEcef()
	require.LessOrEqual(t, r3.Norm(r3.Sub(pos, prev)), maxStep)
	require.Zero(t, events, "superseded flight must not fire stop-fly")
}

func TestFlightSurvivesOriginShiftAndBasisChange(t *testing.T) {
	ctx := context.Background()

	ref, _ := newTestController(t, georef.NewLevel(), -122, 37, 50)
	lv := georef.NewLevel()
	moving, _ := newTestController(t, lv, -122, 37, 50)

	dest := ecefAt(-121, 38, 20)
	require.NoError(t, ref.FlyToEcefLocation(ctx, dest, r3.Vec{}))
	require.NoError(t, moving.FlyToEcefLocation(ctx, dest, r3.Vec{}))

	for i := 1; i <= 300; i++ {
		switch i {
		case 50:
			lv.OriginShift().ShiftOrigin(r3.Vec{X: 1e4, Y: -2e4, Z: 3e3})
		case 120:
			lv.Georeference("bay", ecefAt(-121.5, 37.5, 0))
		case 200:
			lv.OriginShift().SetOriginAndRotation(r3.Vec{X: 500, Z: -250}, rotZ(0.4))
		}
		ref.Update(ctx, tick)
		moving.Update(ctx, tick)

		want, wantDir := ref.CameraEcef()
		got, gotDir := moving.CameraEcef()
		require.InDelta(t, 0, r3.Norm(r3.Sub(got, want)), 1e-4, "tick %d", i)
		require.InDelta(t, 0, r3.Norm(r3.Sub(r3.Unit(gotDir), r3.Unit(wantDir))), 1e-9, "tick %d", i)
		// Render position is absToRel of the ECEF pose whatever the basis.
		rel := lv.OriginShift().AbsToRel().MulPoint(got)
		require.InDelta(t, 0, r3.Norm(r3.Sub(rel, moving.camera.(*SimpleCamera).Position)), 1e-6, "tick %d", i)
	}
	require.Equal(t, NoFly, moving.State())
}

func TestIdleCameraKeepsEcefPoseAcrossShift(t *testing.T) {
	lv := georef.NewLevel()
	c, cam := newTestController(t, lv, 30, -20, 300)
	before, beforeDir := c.CameraEcef()
	relBefore := cam.Position

	lv.OriginShift().SetOrigin(ecefAt(30, -20, 0))

	after, afterDir := c.CameraEcef()
	require.InDelta(t, 0, r3.Norm(r3.Sub(after, before)), 1e-6)
	require.InDelta(t, 0, r3.Norm(r3.Sub(afterDir, beforeDir)), 1e-9)
	require.Less(t, r3.Norm(cam.Position), r3.Norm(relBefore))
	require.InDelta(t, 300, r3.Norm(cam.Position), 1e-3)

	c.Close()
	lv.OriginShift().ShiftOrigin(r3.Vec{X: 10})
	require.Equal(t, 0, lv.OriginShift().Subscribers())
}

func TestStopFlyFiresNoEvent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestController(t, georef.NewLevel(), 0, 0, 0)
	fired := false
	sub := c.BindStopFlyHandler(func(r3.Vec) { fired = true })
	defer sub.Unsubscribe()

	require.NoError(t, c.FlyToEcefLocation(ctx, ecefAt(1, 1, 0), r3.Vec{}))
	c.Update(ctx, tick)
	c.StopFly()
	require.Equal(t, NoFly, c.State())
	c.Update(ctx, 10*time.Second)
	require.False(t, fired)
}

func TestFlyToPlanetCentreFails(t *testing.T) {
	c, _ := newTestController(t, georef.NewLevel(), 0, 0, 0)
	err := c.FlyToEcefLocation(context.Background(), r3.Vec{}, r3.Vec{})
	require.ErrorIs(t, err, ErrInvalidEndpoint)
	require.Equal(t, NoFly, c.State())
}

func TestStateString(t *testing.T) {
	require.Equal(t, "no-fly", NoFly.String())
	require.Equal(t, "mid-fly", MidFly.String())
	require.Equal(t, "State(7)", State(7).String())
}

func rotZ(angle float64) geodesy.Mat3 {
	s, c := math.Sincos(angle)
	return geodesy.Mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}
