package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/georef/internal/logging"
)

// InstrumentationName names the tracer used across georef.
const InstrumentationName = "github.com/signalsfoundry/georef"

// Span attribute keys.
const (
	AttrFlightLeg        = attribute.Key("georef.flight.leg")
	AttrFlightDestHeight = attribute.Key("georef.flight.dest_height_m")
	AttrShiftDistance    = attribute.Key("georef.shift.distance_m")
	AttrRebases          = attribute.Key("georef.rebases")
)

// TracingConfig governs how georefd tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	SampleRatio float64
	// Output receives stdout exporter spans. Defaults to os.Stdout.
	Output io.Writer
}

// TracingConfigFromEnv reads GEOREF_TRACING_* variables through getenv.
// A nil getenv uses os.Getenv.
func TracingConfigFromEnv(getenv func(string) string) TracingConfig {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(getenv("GEOREF_TRACING_ENABLED"), "true"),
		ServiceName: getenv("GEOREF_TRACING_SERVICE_NAME"),
		Exporter:    strings.ToLower(getenv("GEOREF_TRACING_EXPORTER")),
		Endpoint:    getenv("GEOREF_OTLP_ENDPOINT"),
		SampleRatio: 1,
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "georefd"
	}
	if cfg.Exporter == "" {
		cfg.Exporter = "stdout"
	}
	if raw := getenv("GEOREF_TRACING_SAMPLE_RATIO"); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

// InitTracing installs the global tracer provider and propagators. The
// returned function flushes and stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.namespace", "georef"),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		out := cfg.Output
		if out == nil {
			out = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q", cfg.Exporter)
	}
}

// ShutdownWithTimeout runs shutdown with a five second budget and logs a
// failure instead of returning it.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// Tracer returns the georef tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// StartFlightSpan opens the span covering one camera flight. It stays open
// until EndSpan is called on arrival or cancellation.
func StartFlightSpan(ctx context.Context, tracer trace.Tracer, leg int, destHeight float64) (context.Context, trace.Span) {
	return tracer.Start(ctx, "georef.flight", trace.WithAttributes(
		AttrFlightLeg.Int(leg),
		AttrFlightDestHeight.Float64(destHeight),
	))
}

// EndSpan marks span failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RecordRebase emits an instantaneous span for one origin shift.
func RecordRebase(ctx context.Context, tracer trace.Tracer, distance float64, rebases int) {
	_, span := tracer.Start(ctx, "georef.rebase", trace.WithAttributes(
		AttrShiftDistance.Float64(distance),
		AttrRebases.Int(rebases),
	))
	span.End()
}
