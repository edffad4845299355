package flight

import (
	"math"
	"time"
)

// Config holds the tunables of the default flight plan.
type Config struct {
	// BaseDuration is added to the distance-derived part of the default
	// duration.
	// Default: 2s
	BaseDuration time.Duration

	// MaxDuration caps the default duration. Explicit durations are not capped.
	// Default: 3s
	MaxDuration time.Duration

	// MetersPerSecond is the travel distance covered by each extra second of
	// default duration.
	// Default: 1e6
	MetersPerSecond float64

	// AltitudeFactor scales the larger chord component into the cruise
	// altitude.
	// Default: 0.2
	AltitudeFactor float64

	// MaxAltitude caps the cruise altitude in metres.
	// Default: 1e9
	MaxAltitude float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseDuration:    2 * time.Second,
		MaxDuration:     3 * time.Second,
		MetersPerSecond: 1e6,
		AltitudeFactor:  0.2,
		MaxAltitude:     1e9,
	}
}

// ApplyDefaults fills zero or negative fields with defaults.
func (c Config) ApplyDefaults() Config {
	d := DefaultConfig()
	if c.BaseDuration <= 0 {
		c.BaseDuration = d.BaseDuration
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = d.MaxDuration
	}
	if c.MetersPerSecond <= 0 {
		c.MetersPerSecond = d.MetersPerSecond
	}
	if c.AltitudeFactor <= 0 {
		c.AltitudeFactor = d.AltitudeFactor
	}
	if c.MaxAltitude <= 0 {
		c.MaxAltitude = d.MaxAltitude
	}
	return c
}

// DefaultDuration returns ceil(distance/MetersPerSecond)+BaseDuration,
// capped at MaxDuration.
func (c Config) DefaultDuration(distance float64) time.Duration {
	secs := math.Ceil(distance/c.MetersPerSecond) + c.BaseDuration.Seconds()
	d := time.Duration(secs * float64(time.Second))
	if d > c.MaxDuration {
		d = c.MaxDuration
	}
	return d
}

// CruiseAltitude returns the apex height for a flight whose chord has the
// given horizontal and vertical extents.
func (c Config) CruiseAltitude(horizontal, vertical float64) float64 {
	return math.Min(math.Max(horizontal, vertical)*c.AltitudeFactor, c.MaxAltitude)
}
