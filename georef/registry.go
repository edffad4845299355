package georef

import (
	"context"

	"github.com/signalsfoundry/georef/internal/logging"
)

// TransformMetricsRecorder is notified whenever the active basis changes.
type TransformMetricsRecorder interface {
	IncTransformChanges()
}

// TransformRegistry tracks the one active CoordinateTransform of a level.
// It is passed around explicitly instead of living in a global. The registry
// never holds nil: it starts with an identity transform and falls back to it
// when the active transform is cleared.
type TransformRegistry struct {
	fallback *CoordinateTransform
	active   *CoordinateTransform

	transforms *Bus[*CoordinateTransform]
	bases      *Bus[CoordinateTransformBasis]

	// activeSub follows basis changes of the active transform.
	activeSub *Subscription

	log     logging.Logger
	metrics TransformMetricsRecorder
}

// RegistryOption customises TransformRegistry construction.
type RegistryOption func(*TransformRegistry)

// WithRegistryLogger attaches a logger.
func WithRegistryLogger(l logging.Logger) RegistryOption {
	return func(r *TransformRegistry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTransformMetrics attaches a metrics recorder.
func WithTransformMetrics(m TransformMetricsRecorder) RegistryOption {
	return func(r *TransformRegistry) {
		r.metrics = m
	}
}

// NewTransformRegistry returns a registry whose active transform is the
// identity.
func NewTransformRegistry(opts ...RegistryOption) *TransformRegistry {
	fallback := NewIdentityTransform("default")
	r := &TransformRegistry{
		fallback:   fallback,
		active:     fallback,
		transforms: NewBus(fallback),
		bases:      NewBus(fallback.Basis()),
		log:        logging.Noop(),
	}
	r.follow(fallback)
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// GetCoordinateTransform returns the active transform; never nil.
func (r *TransformRegistry) GetCoordinateTransform() *CoordinateTransform {
	return r.active
}

// SetCoordinateTransform makes t the active transform and broadcasts the
// change. Passing nil restores the identity default.
func (r *TransformRegistry) SetCoordinateTransform(t *CoordinateTransform) {
	if t == nil {
		t = r.fallback
	}
	if t == r.active {
		return
	}
	r.active = t
	r.log.Info(context.Background(), "active coordinate transform changed",
		logging.String("transform", t.Name()),
		logging.Vec("origin", t.Origin()),
	)
	r.transforms.Publish(t)
	r.follow(t)
}

// OnTransformChanged subscribes to reassignment of the active transform. fn
// is called immediately with the current reference.
func (r *TransformRegistry) OnTransformChanged(fn func(*CoordinateTransform)) *Subscription {
	return r.transforms.Subscribe(fn)
}

// OnBasisChanged subscribes to the basis of whichever transform is active,
// covering both reassignment and SetOrigin on the active transform. fn is
// called immediately with the current basis.
func (r *TransformRegistry) OnBasisChanged(fn func(CoordinateTransformBasis)) *Subscription {
	return r.bases.Subscribe(fn)
}

// Basis returns the active basis.
func (r *TransformRegistry) Basis() CoordinateTransformBasis {
	return r.active.Basis()
}

func (r *TransformRegistry) follow(t *CoordinateTransform) {
	r.activeSub.Unsubscribe()
	// The subscription replays t's current basis, which publishes the
	// reassignment to basis listeners.
	r.activeSub = t.OnChanged(func(b CoordinateTransformBasis) {
		if r.active != t {
			return
		}
		if r.metrics != nil {
			r.metrics.IncTransformChanges()
		}
		r.bases.Publish(b)
	})
}
