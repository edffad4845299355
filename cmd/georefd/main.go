// Command georefd runs a georeferenced floating-origin session and exposes
// its health over gRPC and its metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/georef/internal/logging"
	"github.com/signalsfoundry/georef/internal/observability"
)

// healthService is the gRPC health service name reporting session state.
const healthService = "georef.Session"

func main() {
	cfg, err := ParseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(os.Getenv), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "georefd exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves health and metrics while the session loop runs, and returns
// once ctx is cancelled or the session's duration has elapsed.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	ctx, log = logging.WithSessionLogger(ctx, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := observability.NewGeorefCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}

	session, err := NewSession(cfg, log, collector)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	defer session.Close()

	var metricsSrv *http.Server
	if cfg.MetricsAddress != "" {
		metricsSrv = serveMetrics(cfg.MetricsAddress, collector, log)
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			sessionLoggerInterceptor(log),
			collector.UnaryServerInterceptor(),
		),
	)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting gRPC health server", logging.String("addr", lis.Addr().String()))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- err
		}
	}()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done, err := session.Run(sessionCtx)
	if err != nil {
		healthSrv.Shutdown()
		server.Stop()
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		return fmt.Errorf("session clock: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down georefd")
	case <-done:
		log.Info(ctx, "session finished", logging.Int("arrivals", session.Arrivals()))
	case runErr = <-serveErr:
		log.Error(ctx, "gRPC server exited", logging.Err(runErr))
	}
	cancel()
	<-done

	healthSrv.Shutdown()
	server.GracefulStop()

	if metricsSrv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return runErr
}

func serveMetrics(addr string, collector *observability.GeorefCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// sessionLoggerInterceptor attaches the session logger, annotated with the
// RPC method, to every request context.
func sessionLoggerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		reqLog := base.With(logging.String("method", info.FullMethod))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		resp, err := handler(ctx, req)
		if err != nil {
			reqLog.Debug(ctx, "rpc failed", logging.Err(err))
		}
		return resp, err
	}
}
