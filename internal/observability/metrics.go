package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GeorefCollector bundles Prometheus metrics for a georeferenced session and
// the georefd RPC surface. It satisfies the metrics recorder interfaces of
// the georef and flight packages.
type GeorefCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	OriginShifts        prometheus.Counter
	OriginShiftDistance prometheus.Histogram
	Anchors             prometheus.Gauge
	TransformChanges    prometheus.Counter

	FlightsStarted   prometheus.Counter
	FlightsCompleted prometheus.Counter
	FlightDurations  prometheus.Histogram
}

// NewGeorefCollector registers georef Prometheus metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewGeorefCollector(reg prometheus.Registerer) (*GeorefCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "georef_rpc_requests_total",
		Help: "Total number of handled georefd RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "georef_rpc_requests_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "georef_rpc_request_duration_seconds",
		Help:    "georefd RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "georef_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	shifts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "georef_origin_shifts_total",
		Help: "Number of floating-origin moves.",
	}), "georef_origin_shifts_total")
	if err != nil {
		return nil, err
	}
	shiftDistance, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "georef_origin_shift_distance_meters",
		Help:    "Distance the floating origin moved per shift.",
		Buckets: prometheus.ExponentialBuckets(1, 10, 9),
	}), "georef_origin_shift_distance_meters")
	if err != nil {
		return nil, err
	}
	anchors, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "georef_anchors",
		Help: "Current number of anchors registered in the level.",
	}), "georef_anchors")
	if err != nil {
		return nil, err
	}
	transformChanges, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "georef_transform_changes_total",
		Help: "Number of active coordinate basis changes.",
	}), "georef_transform_changes_total")
	if err != nil {
		return nil, err
	}

	started, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "georef_flights_started_total",
		Help: "Number of camera flights started, including superseding ones.",
	}), "georef_flights_started_total")
	if err != nil {
		return nil, err
	}
	completed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "georef_flights_completed_total",
		Help: "Number of camera flights that reached their destination.",
	}), "georef_flights_completed_total")
	if err != nil {
		return nil, err
	}
	flightDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "georef_flight_duration_seconds",
		Help:    "Planned duration of completed camera flights.",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
	}), "georef_flight_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &GeorefCollector{
		gatherer:            gatherer,
		RPCRequests:         requests,
		RPCDurations:        durations,
		OriginShifts:        shifts,
		OriginShiftDistance: shiftDistance,
		Anchors:             anchors,
		TransformChanges:    transformChanges,
		FlightsStarted:      started,
		FlightsCompleted:    completed,
		FlightDurations:     flightDurations,
	}, nil
}

// ObserveOriginShift records one origin move.
func (c *GeorefCollector) ObserveOriginShift(distance float64) {
	if c == nil {
		return
	}
	c.OriginShifts.Inc()
	c.OriginShiftDistance.Observe(distance)
}

// SetAnchorCount updates the anchor gauge.
func (c *GeorefCollector) SetAnchorCount(n int) {
	if c == nil {
		return
	}
	c.Anchors.Set(float64(n))
}

// IncTransformChanges counts an active basis change.
func (c *GeorefCollector) IncTransformChanges() {
	if c == nil {
		return
	}
	c.TransformChanges.Inc()
}

// FlightStarted counts a started flight.
func (c *GeorefCollector) FlightStarted() {
	if c == nil {
		return
	}
	c.FlightsStarted.Inc()
}

// FlightCompleted counts a finished flight and its duration.
func (c *GeorefCollector) FlightCompleted(d time.Duration) {
	if c == nil {
		return
	}
	c.FlightsCompleted.Inc()
	c.FlightDurations.Observe(d.Seconds())
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *GeorefCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		c.RPCRequests.WithLabelValues(service, method, code).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GeorefCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer
	if c != nil {
		gatherer = c.gatherer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds c to reg, returning the already registered collector of the
// same type when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, name string) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
			var zero C
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero C
		return zero, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	return register(reg, counter, name)
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	return register(reg, h, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}
