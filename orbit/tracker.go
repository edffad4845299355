package orbit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/signalsfoundry/georef/georef"
	"github.com/signalsfoundry/georef/internal/logging"
)

var (
	// ErrObjectExists indicates an object with the same ID is already tracked.
	ErrObjectExists = errors.New("tracked object already exists")
	// ErrObjectNotFound indicates a requested object is not tracked.
	ErrObjectNotFound = errors.New("tracked object not found")
)

// PositionUpdater receives propagated positions.
type PositionUpdater interface {
	UpdateObjectPosition(id string, ecef r3.Vec) error
}

// LevelUpdater places every tracked object as an anchor in a level,
// creating the anchor on first sight.
type LevelUpdater struct {
	Level *georef.Level
	// Options are applied to anchors the updater creates.
	Options func(id string) []georef.AnchorOption
}

// UpdateObjectPosition moves or creates the anchor named id.
func (u LevelUpdater) UpdateObjectPosition(id string, ecef r3.Vec) error {
	a, err := u.Level.GetAnchor(id)
	if errors.Is(err, georef.ErrAnchorNotFound) {
		opts := []georef.AnchorOption{georef.WithAnchorID(id)}
		if u.Options != nil {
			opts = append(opts, u.Options(id)...)
		}
		_, err = u.Level.CreateAnchor(ecef, opts...)
		return err
	}
	if err != nil {
		return err
	}
	a.SetPosition(ecef)
	return nil
}

// Tracker owns a set of propagators and pushes their positions to an
// updater on every UpdatePositions call.
type Tracker struct {
	mu      sync.Mutex
	objects map[string]Propagator

	updater PositionUpdater
	log     logging.Logger
}

// TrackerOption customises Tracker construction.
type TrackerOption func(*Tracker)

// WithPositionUpdater sets where propagated positions go.
func WithPositionUpdater(u PositionUpdater) TrackerOption {
	return func(t *Tracker) {
		t.updater = u
	}
}

// WithTrackerLogger attaches a logger.
func WithTrackerLogger(l logging.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		objects: make(map[string]Propagator),
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// AddSatellite tracks a TLE-defined satellite under id.
func (t *Tracker) AddSatellite(id, line1, line2 string) error {
	p, err := NewSGP4Propagator(line1, line2)
	if err != nil {
		return fmt.Errorf("satellite %q: %w", id, err)
	}
	return t.Add(id, p)
}

// AddStatic tracks an object that never moves.
func (t *Tracker) AddStatic(id string, ecef r3.Vec) error {
	return t.Add(id, StaticPropagator{Position: ecef})
}

// Add tracks an arbitrary propagator.
func (t *Tracker) Add(id string, p Propagator) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.objects[id]; exists {
		return fmt.Errorf("object %q: %w", id, ErrObjectExists)
	}
	t.objects[id] = p
	return nil
}

// Remove stops tracking id.
func (t *Tracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.objects[id]; !ok {
		return fmt.Errorf("object %q: %w", id, ErrObjectNotFound)
	}
	delete(t.objects, id)
	return nil
}

// IDs returns the tracked IDs in sorted order.
func (t *Tracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.objects))
	for id := range t.objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PositionOf propagates a single object to at.
func (t *Tracker) PositionOf(id string, at time.Time) (r3.Vec, error) {
	t.mu.Lock()
	p, ok := t.objects[id]
	t.mu.Unlock()
	if !ok {
		return r3.Vec{}, fmt.Errorf("object %q: %w", id, ErrObjectNotFound)
	}
	return p.PositionAt(at)
}

// UpdatePositions propagates every object to at and forwards the results in
// ID order. Objects that fail are skipped; their errors are joined.
func (t *Tracker) UpdatePositions(at time.Time) error {
	var errs []error
	for _, id := range t.IDs() {
		pos, err := t.PositionOf(id, at)
		if err != nil {
			errs = append(errs, fmt.Errorf("object %q: %w", id, err))
			continue
		}
		if t.updater == nil {
			continue
		}
		if err := t.updater.UpdateObjectPosition(id, pos); err != nil {
			errs = append(errs, fmt.Errorf("object %q: %w", id, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		t.log.Warn(context.Background(), "position update incomplete",
			logging.Err(err),
			logging.Int("failed", len(errs)),
		)
		return err
	}
	return nil
}
