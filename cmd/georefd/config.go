package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/georef/geodesy"
)

// Default satellite: ISS, epoch 2021-10-02.
const (
	defaultTLE1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	defaultTLE2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

// Config is the georefd runtime configuration.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	LogLevel       string
	LogFormat      string

	TickInterval time.Duration
	Duration     time.Duration
	Accelerated  bool
	StartTime    time.Time

	// Origin is the georeference of the level.
	Origin geodesy.Cartographic
	// Tour lists the positions the camera flies between, in order.
	Tour            []geodesy.Cartographic
	RebaseThreshold float64
	FlightDuration  time.Duration

	SatelliteID string
	TLELine1    string
	TLELine2    string
}

// DefaultConfig returns the configuration used when no flag or variable is
// set.
func DefaultConfig() Config {
	return Config{
		ListenAddress:   ":50061",
		MetricsAddress:  ":9091",
		LogLevel:        "info",
		LogFormat:       "text",
		TickInterval:    50 * time.Millisecond,
		Accelerated:     false,
		StartTime:       time.Date(2021, time.October, 2, 0, 0, 0, 0, time.UTC),
		Origin:          geodesy.FromDegrees(-105.2705, 40.015, 1624),
		RebaseThreshold: 5000,
		SatelliteID:     "iss",
		TLELine1:        defaultTLE1,
		TLELine2:        defaultTLE2,
	}
}

// ParseConfig reads flags from args. Every flag falls back to a GEOREF_*
// variable from getenv and then to DefaultConfig.
func ParseConfig(args []string, getenv func(string) string, output io.Writer) (Config, error) {
	d := DefaultConfig()
	env := func(key, def string) string {
		if v := getenv("GEOREF_" + key); v != "" {
			return v
		}
		return def
	}

	fs := flag.NewFlagSet("georefd", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	listen := fs.String("grpc-addr", env("GRPC_ADDR", d.ListenAddress), "TCP address the gRPC health server listens on")
	metrics := fs.String("metrics-addr", env("METRICS_ADDR", d.MetricsAddress), "HTTP address for Prometheus /metrics; empty disables it")
	logLevel := fs.String("log-level", env("LOG_LEVEL", d.LogLevel), "debug, info, warn or error")
	logFormat := fs.String("log-format", env("LOG_FORMAT", d.LogFormat), "text or json")
	tick := fs.String("tick", env("TICK", d.TickInterval.String()), "frame interval")
	duration := fs.String("duration", env("DURATION", "0s"), "total session time; 0 runs until interrupted")
	accelerated := fs.String("accelerated", env("ACCELERATED", strconv.FormatBool(d.Accelerated)), "step frames as fast as possible")
	start := fs.String("start", env("START", d.StartTime.Format(time.RFC3339)), "session start time (RFC 3339)")
	origin := fs.String("origin", env("ORIGIN", formatCartographic(d.Origin)), "georeference origin lon,lat,height")
	tour := fs.String("tour", env("TOUR", ""), "camera tour as lon,lat,height;...; empty builds one around the origin")
	threshold := fs.String("rebase-threshold", env("REBASE_THRESHOLD", strconv.FormatFloat(d.RebaseThreshold, 'f', -1, 64)), "metres the camera may drift before the origin follows")
	flightDur := fs.String("flight-duration", env("FLIGHT_DURATION", "0s"), "duration of each tour leg; 0 uses the distance-based default")
	satID := fs.String("satellite-id", env("SATELLITE_ID", d.SatelliteID), "anchor ID of the tracked satellite; empty disables tracking")
	tle1 := fs.String("tle1", env("TLE1", d.TLELine1), "satellite TLE line 1")
	tle2 := fs.String("tle2", env("TLE2", d.TLELine2), "satellite TLE line 2")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddress:  *listen,
		MetricsAddress: *metrics,
		LogLevel:       *logLevel,
		LogFormat:      *logFormat,
		SatelliteID:    *satID,
		TLELine1:       *tle1,
		TLELine2:       *tle2,
	}

	var err error
	if cfg.TickInterval, err = time.ParseDuration(*tick); err != nil || cfg.TickInterval <= 0 {
		return Config{}, fmt.Errorf("invalid tick %q", *tick)
	}
	if cfg.Duration, err = time.ParseDuration(*duration); err != nil || cfg.Duration < 0 {
		return Config{}, fmt.Errorf("invalid duration %q", *duration)
	}
	if cfg.FlightDuration, err = time.ParseDuration(*flightDur); err != nil {
		return Config{}, fmt.Errorf("invalid flight duration %q: %w", *flightDur, err)
	}
	if cfg.Accelerated, err = strconv.ParseBool(*accelerated); err != nil {
		return Config{}, fmt.Errorf("invalid accelerated %q: %w", *accelerated, err)
	}
	if cfg.StartTime, err = time.Parse(time.RFC3339, *start); err != nil {
		return Config{}, fmt.Errorf("invalid start: %w", err)
	}
	if cfg.RebaseThreshold, err = strconv.ParseFloat(*threshold, 64); err != nil {
		return Config{}, fmt.Errorf("invalid rebase threshold: %w", err)
	}
	if cfg.Origin, err = geodesy.ParseCartographic(*origin); err != nil {
		return Config{}, err
	}
	if cfg.Tour, err = geodesy.ParseCartographicList(*tour); err != nil {
		return Config{}, err
	}
	if len(cfg.Tour) == 0 {
		cfg.Tour = defaultTour(cfg.Origin)
	}
	return cfg, nil
}

// defaultTour circles the origin at a few kilometres, then climbs out to
// orbit-viewing distance and back.
func defaultTour(origin geodesy.Cartographic) []geodesy.Cartographic {
	lon, lat, _ := origin.Degrees()
	return []geodesy.Cartographic{
		geodesy.FromDegrees(lon+0.05, lat, 1500),
		geodesy.FromDegrees(lon, lat+0.05, 1500),
		geodesy.FromDegrees(lon-0.05, lat, 1500),
		geodesy.FromDegrees(lon+10, lat+5, 400e3),
		geodesy.FromDegrees(lon, lat-0.05, 1500),
	}
}

func formatCartographic(c geodesy.Cartographic) string {
	lon, lat, h := c.Degrees()
	return strings.Join([]string{
		strconv.FormatFloat(lon, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(h, 'f', -1, 64),
	}, ",")
}
