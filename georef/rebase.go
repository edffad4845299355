package georef

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/internal/logging"
)

// RebaserConfig controls when the floating origin follows the focus.
type RebaserConfig struct {
	// Threshold is the distance in metres the focus may drift from the
	// origin before the origin is moved onto it.
	// Default: 5000
	Threshold float64
}

// DefaultRebaserConfig returns a RebaserConfig with sensible defaults.
func DefaultRebaserConfig() RebaserConfig {
	return RebaserConfig{Threshold: 5000}
}

// ApplyDefaults fills zero or negative fields with defaults.
func (c RebaserConfig) ApplyDefaults() RebaserConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultRebaserConfig().Threshold
	}
	return c
}

// Rebaser re-centres an OriginShift on a moving focus, typically the
// camera, once the focus has drifted past the threshold.
type Rebaser struct {
	shift *OriginShift
	cfg   RebaserConfig
	log   logging.Logger

	rebases int
}

// NewRebaser binds a rebaser to shift.
func NewRebaser(shift *OriginShift, cfg RebaserConfig, log logging.Logger) *Rebaser {
	if log == nil {
		log = logging.Noop()
	}
	return &Rebaser{shift: shift, cfg: cfg.ApplyDefaults(), log: log}
}

// Config returns the effective configuration.
func (r *Rebaser) Config() RebaserConfig { return r.cfg }

// Rebases returns how many times the origin has been moved.
func (r *Rebaser) Rebases() int { return r.rebases }

// Update checks an ECEF focus position and shifts the origin
// onto it when it is farther than the threshold. It reports whether a shift
// happened.
func (r *Rebaser) Update(ctx context.Context, focus r3.Vec) bool {
	delta := r3.Sub(focus, r.shift.Origin())
	distance := r3.Norm(delta)
	if distance <= r.cfg.Threshold {
		return false
	}
	r.shift.ShiftOrigin(delta)
	r.rebases++
	r.log.Info(ctx, "origin rebased onto focus",
		logging.Vec("origin", r.shift.Origin()),
		logging.Float("distance_m", distance),
		logging.Int("rebases", r.rebases),
	)
	return true
}

// UpdateRelative is Update for a focus given in render space.
func (r *Rebaser) UpdateRelative(ctx context.Context, focus r3.Vec) bool {
	return r.Update(ctx, r.shift.RelToAbs().MulPoint(focus))
}
