// Package flight moves a camera smoothly between two ECEF poses. The path is
// planned in ECEF and pushed through the origin shift on every tick, so
// shifts during a flight do not bend it.
package flight

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/geodesy"
	"github.com/signalsfoundry/georef/georef"
	"github.com/signalsfoundry/georef/internal/logging"
)

// State is the controller state.
type State int

const (
	// NoFly is the idle state.
	NoFly State = iota
	// MidFly means a flight is being interpolated.
	MidFly
)

func (s State) String() string {
	switch s {
	case NoFly:
		return "no-fly"
	case MidFly:
		return "mid-fly"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MetricsRecorder observes flight lifecycles.
type MetricsRecorder interface {
	FlightStarted()
	FlightCompleted(d time.Duration)
}

// Controller drives a Camera along flight plans.
//
// The camera lives in render space. The controller re-projects it whenever
// the origin shift changes so the camera keeps its ECEF pose, and evaluates
// flights in ECEF every tick.
type Controller struct {
	frame  georef.Frame
	camera Camera
	cfg    Config

	log     logging.Logger
	metrics MetricsRecorder

	state State
	plan  *Plan

	stopFly georef.Signal[r3.Vec]

	shiftSub *georef.Subscription
	// relToEcef is the render-to-ECEF matrix the camera pose was last
	// expressed in.
	relToEcef geodesy.Mat4
}

// Option customises Controller construction.
type Option func(*Controller)

// WithConfig overrides the default flight configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) {
		c.cfg = cfg.ApplyDefaults()
	}
}

// WithLogger attaches a logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController binds a camera to a level frame and subscribes to its
// shift notifications.
func NewController(frame georef.Frame, camera Camera, opts ...Option) *Controller {
	c := &Controller{
		frame:  frame,
		camera: camera,
		cfg:    DefaultConfig(),
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.relToEcef = frame.RelativeToEcef()
	c.shiftSub = frame.OriginShift().OnOriginShifting(c.reproject)
	return c
}

// Close detaches the controller from the frame. A flight in progress is
// dropped without a stop-fly event.
func (c *Controller) Close() {
	c.shiftSub.Unsubscribe()
	c.StopFly()
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// Plan returns a copy of the active flight plan, if any.
func (c *Controller) Plan() (Plan, bool) {
	if c.plan == nil {
		return Plan{}, false
	}
	return *c.plan, true
}

// Progress returns the active flight's completed fraction, or 0 when idle.
func (c *Controller) Progress() float64 {
	if c.plan == nil {
		return 0
	}
	return c.plan.Progress()
}

// CameraEcef returns the camera pose in ECEF.
func (c *Controller) CameraEcef() (position, direction r3.Vec) {
	pos, dir := c.camera.RelativePose()
	m := c.frame.RelativeToEcef()
	return m.MulPoint(pos), m.MulDirection(dir)
}

// BindStopFlyHandler registers fn to be called with the destination every
// time a flight completes.
func (c *Controller) BindStopFlyHandler(fn func(destination r3.Vec)) *georef.Subscription {
	return c.stopFly.Connect(fn)
}

// FlyToEcefLocation starts a flight to destination with the default
// duration. destDirection is the ECEF view direction on arrival; a zero
// direction looks straight down. A flight already in progress is replaced
// and the new one starts from the camera's current pose.
func (c *Controller) FlyToEcefLocation(ctx context.Context, destination, destDirection r3.Vec) error {
	return c.FlyToEcefLocationWithDuration(ctx, destination, destDirection, 0)
}

// FlyToEcefLocationWithDuration is FlyToEcefLocation with an explicit
// duration. A non-positive duration selects the default.
func (c *Controller) FlyToEcefLocationWithDuration(ctx context.Context, destination, destDirection r3.Vec, d time.Duration) error {
	beginPos, beginDir := c.CameraEcef()
	plan, err := NewPlan(c.cfg, beginPos, beginDir, destination, destDirection, d)
	if err != nil {
		return fmt.Errorf("fly to %v: %w", destination, err)
	}

	if c.state == MidFly {
		c.log.Debug(ctx, "flight superseded",
			logging.Float("progress", c.plan.Progress()),
		)
	}
	c.plan = plan
	c.state = MidFly
	if c.metrics != nil {
		c.metrics.FlightStarted()
	}

	lon, lat, h := plan.Destination.Degrees()
	c.log.Info(ctx, "flight started",
		logging.Float("dest_lon_deg", lon),
		logging.Float("dest_lat_deg", lat),
		logging.Float("dest_height_m", h),
		logging.Duration("duration", plan.Duration),
		logging.Float("altitude_m", plan.Altitude),
		logging.Bool("parabolic", plan.Parabolic),
	)
	return nil
}

// Update advances the controller by dt. It is a no-op while idle.
func (c *Controller) Update(ctx context.Context, dt time.Duration) {
	if c.state == MidFly {
		c.ProcessMidFlyState(ctx, dt)
	}
}

// ProcessMidFlyState advances the active flight by dt and places the camera.
// When the flight reaches its duration the camera is put exactly on the
// destination, the controller returns to NoFly and stop-fly handlers run.
func (c *Controller) ProcessMidFlyState(ctx context.Context, dt time.Duration) {
	p := c.plan
	if p == nil {
		return
	}
	if dt > 0 {
		p.Elapsed += dt
	}

	if !p.Done() {
		pos, dir := p.At(p.Progress())
		c.place(pos, dir)
		return
	}

	c.place(p.DestinationEcef, p.DestinationDirection)
	c.plan = nil
	c.state = NoFly
	if c.metrics != nil {
		c.metrics.FlightCompleted(p.Duration)
	}
	c.log.Info(ctx, "flight completed",
		logging.Vec("destination", p.DestinationEcef),
		logging.Duration("duration", p.Duration),
	)
	c.stopFly.Emit(p.DestinationEcef)
}

// StopFly abandons the active flight where it is. No stop-fly event fires.
func (c *Controller) StopFly() {
	c.plan = nil
	c.state = NoFly
}

func (c *Controller) place(ecef, direction r3.Vec) {
	m := c.frame.EcefToRelative()
	dir := m.MulDirection(direction)
	if r3.Norm(dir) > 0 {
		dir = r3.Unit(dir)
	}
	c.camera.SetRelativePose(m.MulPoint(ecef), dir)
	c.relToEcef = c.frame.RelativeToEcef()
}

// reproject keeps the camera's ECEF pose fixed across an origin shift.
func (c *Controller) reproject(shift georef.OriginShiftState) {
	pos, dir := c.camera.RelativePose()
	ecefPos := c.relToEcef.MulPoint(pos)
	ecefDir := c.relToEcef.MulDirection(dir)

	m := georef.EcefToRelative(shift)
	c.camera.SetRelativePose(m.MulPoint(ecefPos), m.MulDirection(ecefDir))
	c.relToEcef = georef.RelativeToEcef(shift)
}
