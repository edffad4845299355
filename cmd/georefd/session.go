package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/flight"
	"github.com/signalsfoundry/georef/geodesy"
	"github.com/signalsfoundry/georef/georef"
	"github.com/signalsfoundry/georef/internal/logging"
	"github.com/signalsfoundry/georef/internal/observability"
	"github.com/signalsfoundry/georef/orbit"
	"github.com/signalsfoundry/georef/timectrl"
)

const originAnchorID = "origin"

// Session is one georeferenced level driven frame by frame: a camera touring
// waypoints, a floating origin following the camera and a tracked satellite.
type Session struct {
	cfg    Config
	log    logging.Logger
	tracer trace.Tracer

	level   *georef.Level
	camera  *flight.SimpleCamera
	flights *flight.Controller
	rebaser *georef.Rebaser
	tracker *orbit.Tracker
	clock   *timectrl.TimeController

	leg        int
	arrivals   int
	flightSpan trace.Span
}

// NewSession builds the level and its collaborators. collector may be nil.
func NewSession(cfg Config, log logging.Logger, collector *observability.GeorefCollector) (*Session, error) {
	if log == nil {
		log = logging.Noop()
	}
	if len(cfg.Tour) == 0 {
		return nil, fmt.Errorf("session needs at least one tour waypoint")
	}

	level := georef.NewLevel(
		georef.WithLevelLogger(log),
		georef.WithLevelMetrics(collector),
		georef.WithRegistryOptions(georef.WithTransformMetrics(collector)),
		georef.WithOriginShiftOptions(georef.WithShiftMetrics(collector)),
	)
	originEcef := geodesy.CartographicToEcef(cfg.Origin)
	level.Georeference("session", originEcef)
	level.OriginShift().SetOrigin(originEcef)

	frame := level.Frame()
	lookDown := geodesy.DirectionFromHeadingPitch(originEcef, geodesy.HeadingPitchRoll{Pitch: -0.3})
	toRel := frame.EcefToRelative()
	camera := flight.NewSimpleCamera(toRel.MulPoint(originEcef), toRel.MulDirection(lookDown))

	flights := flight.NewController(frame, camera,
		flight.WithLogger(log.With(logging.String("component", "flight"))),
		flight.WithMetrics(collector),
	)

	tracker := orbit.NewTracker(
		orbit.WithPositionUpdater(orbit.LevelUpdater{Level: level}),
		orbit.WithTrackerLogger(log.With(logging.String("component", "orbit"))),
	)
	if err := tracker.AddStatic(originAnchorID, originEcef); err != nil {
		return nil, err
	}
	if cfg.SatelliteID != "" {
		if err := tracker.AddSatellite(cfg.SatelliteID, cfg.TLELine1, cfg.TLELine2); err != nil {
			return nil, err
		}
	}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}

	s := &Session{
		cfg:     cfg,
		log:     log,
		tracer:  observability.Tracer(),
		level:   level,
		camera:  camera,
		flights: flights,
		rebaser: georef.NewRebaser(level.OriginShift(), georef.RebaserConfig{Threshold: cfg.RebaseThreshold}, log.With(logging.String("component", "rebaser"))),
		tracker: tracker,
		clock:   timectrl.NewTimeController(cfg.StartTime, cfg.TickInterval, mode),
	}
	flights.BindStopFlyHandler(s.onArrival)
	return s, nil
}

// Level returns the session's level.
func (s *Session) Level() *georef.Level { return s.level }

// Flights returns the camera flight controller.
func (s *Session) Flights() *flight.Controller { return s.flights }

// Arrivals returns the number of completed tour legs.
func (s *Session) Arrivals() int { return s.arrivals }

// Run steps the session on the clock until ctx is done or the configured
// duration has passed. The returned channel closes when the loop exits.
func (s *Session) Run(ctx context.Context) (<-chan struct{}, error) {
	s.clock.AddListener(func(now time.Time, dt time.Duration) {
		s.tick(ctx, now, dt)
	})
	done, err := s.clock.Run(ctx, s.cfg.Duration)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "session started",
		logging.String("mode", s.clock.Mode.String()),
		logging.Duration("tick", s.cfg.TickInterval),
		logging.Int("waypoints", len(s.cfg.Tour)),
	)
	return done, nil
}

// Step advances one frame synchronously.
func (s *Session) Step(ctx context.Context) {
	now := s.clock.Advance(s.cfg.TickInterval)
	s.tick(ctx, now, s.cfg.TickInterval)
}

// Close ends any flight and detaches everything from the level.
func (s *Session) Close() {
	s.endFlightSpan(fmt.Errorf("session closed"))
	s.flights.Close()
	s.level.Close()
}

func (s *Session) tick(ctx context.Context, now time.Time, dt time.Duration) {
	if err := s.tracker.UpdatePositions(now); err != nil {
		s.log.Warn(ctx, "tracked objects not updated", logging.Err(err))
	}

	if s.flights.State() == flight.NoFly {
		s.startNextLeg(ctx)
	}
	s.flights.Update(ctx, dt)

	pos, _ := s.camera.RelativePose()
	before := s.level.OriginShift().Origin()
	if s.rebaser.UpdateRelative(ctx, pos) {
		distance := r3.Norm(r3.Sub(s.level.OriginShift().Origin(), before))
		observability.RecordRebase(ctx, s.tracer, distance, s.rebaser.Rebases())
	}
}

func (s *Session) startNextLeg(ctx context.Context) {
	dest := s.cfg.Tour[s.leg%len(s.cfg.Tour)]
	destEcef := geodesy.CartographicToEcef(dest)
	lookAhead := geodesy.DirectionFromHeadingPitch(destEcef, geodesy.HeadingPitchRoll{Pitch: -0.3})

	spanCtx, span := observability.StartFlightSpan(ctx, s.tracer, s.leg, dest.Height)
	if err := s.flights.FlyToEcefLocationWithDuration(spanCtx, destEcef, lookAhead, s.cfg.FlightDuration); err != nil {
		observability.EndSpan(span, err)
		s.log.Warn(ctx, "tour leg skipped", logging.Int("leg", s.leg), logging.Err(err))
		s.leg++
		return
	}
	s.flightSpan = span
	s.leg++
}

func (s *Session) onArrival(dest r3.Vec) {
	s.arrivals++
	s.endFlightSpan(nil)
	s.log.Debug(context.Background(), "tour leg reached",
		logging.Int("arrivals", s.arrivals),
		logging.Vec("destination", dest),
	)
}

func (s *Session) endFlightSpan(err error) {
	observability.EndSpan(s.flightSpan, err)
	s.flightSpan = nil
}
