package georef

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/internal/logging"
)

var (
	// ErrAnchorExists indicates an anchor with the same ID is already registered.
	ErrAnchorExists = errors.New("anchor already exists")
	// ErrAnchorNotFound indicates a requested anchor was not found.
	ErrAnchorNotFound = errors.New("anchor not found")
)

// LevelMetricsRecorder receives anchor counts for a level.
type LevelMetricsRecorder interface {
	SetAnchorCount(n int)
}

// Level is the explicit handle that replaces an engine's level-scoped
// singletons: it owns the transform registry, the origin shift and the
// anchors placed in the level.
type Level struct {
	transforms *TransformRegistry
	shift      *OriginShift
	anchors    map[string]*Anchor

	log     logging.Logger
	metrics LevelMetricsRecorder

	registryOpts []RegistryOption
	shiftOpts    []OriginShiftOption
}

// LevelOption customises Level construction.
type LevelOption func(*Level)

// WithLevelLogger attaches a logger that is also handed to the registry,
// origin shift and anchors.
func WithLevelLogger(l logging.Logger) LevelOption {
	return func(lv *Level) {
		if l != nil {
			lv.log = l
		}
	}
}

// WithLevelMetrics attaches a recorder for anchor counts.
func WithLevelMetrics(m LevelMetricsRecorder) LevelOption {
	return func(lv *Level) {
		lv.metrics = m
	}
}

// WithRegistryOptions forwards options to the transform registry.
func WithRegistryOptions(opts ...RegistryOption) LevelOption {
	return func(lv *Level) {
		lv.registryOpts = append(lv.registryOpts, opts...)
	}
}

// WithOriginShiftOptions forwards options to the origin shift.
func WithOriginShiftOptions(opts ...OriginShiftOption) LevelOption {
	return func(lv *Level) {
		lv.shiftOpts = append(lv.shiftOpts, opts...)
	}
}

// NewLevel activates a level: identity transform, identity origin shift and
// no anchors.
func NewLevel(opts ...LevelOption) *Level {
	lv := &Level{
		anchors: make(map[string]*Anchor),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(lv)
		}
	}

	regOpts := append([]RegistryOption{WithRegistryLogger(lv.log.With(logging.String("component", "transform-registry")))}, lv.registryOpts...)
	shiftOpts := append([]OriginShiftOption{WithShiftLogger(lv.log.With(logging.String("component", "origin-shift")))}, lv.shiftOpts...)
	lv.transforms = NewTransformRegistry(regOpts...)
	lv.shift = NewOriginShift(shiftOpts...)
	lv.updateMetrics()
	return lv
}

// Transforms returns the level's transform registry.
func (lv *Level) Transforms() *TransformRegistry { return lv.transforms }

// OriginShift returns the level's origin shift.
func (lv *Level) OriginShift() *OriginShift { return lv.shift }

// Frame returns the level's ECEF-to-render pipeline.
func (lv *Level) Frame() Frame { return NewFrame(lv.transforms, lv.shift) }

// Georeference installs a coordinate transform anchored at origin and makes
// it the active one.
func (lv *Level) Georeference(name string, origin r3.Vec) *CoordinateTransform {
	t := NewCoordinateTransform(name, origin)
	lv.transforms.SetCoordinateTransform(t)
	return t
}

// CreateAnchor places a new anchor at the ECEF position and registers it.
func (lv *Level) CreateAnchor(position r3.Vec, opts ...AnchorOption) (*Anchor, error) {
	all := append([]AnchorOption{WithAnchorLogger(lv.log.With(logging.String("component", "anchor")))}, opts...)
	a := NewAnchor(lv.Frame(), position, all...)
	if err := lv.AddAnchor(a); err != nil {
		a.Detach()
		return nil, err
	}
	return a, nil
}

// AddAnchor registers an existing anchor and attaches it.
func (lv *Level) AddAnchor(a *Anchor) error {
	if _, exists := lv.anchors[a.ID()]; exists {
		return fmt.Errorf("anchor %q: %w", a.ID(), ErrAnchorExists)
	}
	a.Attach()
	lv.anchors[a.ID()] = a
	lv.updateMetrics()
	lv.log.Debug(context.Background(), "anchor added",
		logging.String("anchor_id", a.ID()),
		logging.Vec("position", a.Position()),
	)
	return nil
}

// GetAnchor returns the anchor with the given ID.
func (lv *Level) GetAnchor(id string) (*Anchor, error) {
	a, ok := lv.anchors[id]
	if !ok {
		return nil, fmt.Errorf("anchor %q: %w", id, ErrAnchorNotFound)
	}
	return a, nil
}

// RemoveAnchor detaches and forgets an anchor.
func (lv *Level) RemoveAnchor(id string) error {
	a, ok := lv.anchors[id]
	if !ok {
		return fmt.Errorf("anchor %q: %w", id, ErrAnchorNotFound)
	}
	a.Detach()
	delete(lv.anchors, id)
	lv.updateMetrics()
	return nil
}

// ListAnchors returns the registered anchors ordered by ID.
func (lv *Level) ListAnchors() []*Anchor {
	res := make([]*Anchor, 0, len(lv.anchors))
	for _, a := range lv.anchors {
		res = append(res, a)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID() < res[j].ID() })
	return res
}

// Close deactivates the level: every anchor is detached and dropped.
func (lv *Level) Close() {
	for id, a := range lv.anchors {
		a.Detach()
		delete(lv.anchors, id)
	}
	lv.updateMetrics()
}

func (lv *Level) updateMetrics() {
	if lv.metrics != nil {
		lv.metrics.SetAnchorCount(len(lv.anchors))
	}
}
