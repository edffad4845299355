package georef

// Subscription detaches a callback from a Bus or Signal. Unsubscribe is
// idempotent and takes effect from the next broadcast on.
type Subscription struct {
	cancel func()
}

// Unsubscribe removes the callback. Safe to call on a nil Subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
}

type observer[T any] struct {
	id     uint64
	fn     func(T)
	active bool
}

// observers is the ordered subscriber list shared by Bus and Signal.
// Delivery iterates over a snapshot, so subscribing or unsubscribing from
// inside a callback never disturbs the broadcast in flight.
type observers[T any] struct {
	list   []*observer[T]
	nextID uint64

	delivering bool
	pending    []T
}

func (o *observers[T]) add(fn func(T)) (*observer[T], *Subscription) {
	o.nextID++
	ob := &observer[T]{id: o.nextID, fn: fn, active: true}
	o.list = append(o.list, ob)
	return ob, &Subscription{cancel: func() { o.remove(ob.id) }}
}

func (o *observers[T]) remove(id uint64) {
	for i, ob := range o.list {
		if ob.id == id {
			ob.active = false
			o.list = append(o.list[:i:i], o.list[i+1:]...)
			return
		}
	}
}

// broadcast delivers v to every active observer. A broadcast requested from
// inside a callback is queued and delivered once the current one finishes,
// so observers see values strictly in publish order. before runs right
// before each value goes out.
func (o *observers[T]) broadcast(v T, before func(T)) {
	if o.delivering {
		o.pending = append(o.pending, v)
		return
	}
	o.delivering = true
	// A panicking callback abandons the broadcast together with whatever it
	// queued.
	defer func() {
		o.delivering = false
		o.pending = nil
	}()

	for {
		if before != nil {
			before(v)
		}
		snapshot := append([]*observer[T](nil), o.list...)
		for _, ob := range snapshot {
			if ob.active {
				ob.fn(v)
			}
		}
		if len(o.pending) == 0 {
			return
		}
		v = o.pending[0]
		o.pending = o.pending[1:]
	}
}

// Bus is a one-to-many channel that remembers the last published value and
// replays it to every new subscriber before any live update. A fresh Bus
// replays its initial value, so no subscriber ever observes an unset state.
//
// Bus is not safe for concurrent use; all calls happen on the update thread.
type Bus[T any] struct {
	current T
	obs     observers[T]
}

// NewBus returns a Bus whose current value is initial.
func NewBus[T any](initial T) *Bus[T] {
	return &Bus[T]{current: initial}
}

// Subscribe registers fn and synchronously calls it with the current value.
func (b *Bus[T]) Subscribe(fn func(T)) *Subscription {
	ob, sub := b.obs.add(fn)
	ob.fn(b.current)
	return sub
}

// Publish makes v the current value and delivers it to every subscriber.
func (b *Bus[T]) Publish(v T) {
	b.obs.broadcast(v, func(next T) { b.current = next })
}

// Current returns the value most recently delivered.
func (b *Bus[T]) Current() T {
	return b.current
}

// Len returns the number of attached subscribers.
func (b *Bus[T]) Len() int {
	return len(b.obs.list)
}

// Signal is a plain fan-out event with no replay, for one-shot events such
// as a finished camera flight.
type Signal[T any] struct {
	obs observers[T]
}

// Connect registers fn for future emissions.
func (s *Signal[T]) Connect(fn func(T)) *Subscription {
	_, sub := s.obs.add(fn)
	return sub
}

// Emit delivers v to every connected callback.
func (s *Signal[T]) Emit(v T) {
	s.obs.broadcast(v, nil)
}

// Len returns the number of connected callbacks.
func (s *Signal[T]) Len() int {
	return len(s.obs.list)
}
