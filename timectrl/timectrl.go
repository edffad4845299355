// Package timectrl drives the single update thread of a georeferenced
// session: every frame tick runs all listeners in order on one goroutine.
package timectrl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTick is returned by Run when the controller's Tick is not
// positive.
var ErrInvalidTick = errors.New("tick must be positive")

// Clock exposes the current frame time.
type Clock interface {
	Now() time.Time
}

// Mode describes how the TimeController advances time.
type Mode int

const (
	// RealTime paces ticks with a wall-clock ticker.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// Listener is called once per tick with the new frame time and the step
// that led to it.
type Listener func(now time.Time, dt time.Duration)

// TimeController owns frame time and notifies registered listeners on every
// step. Listeners always run on the goroutine that steps the controller.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	frames      uint64

	listeners []Listener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current frame time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Frames returns the number of ticks delivered so far.
func (tc *TimeController) Frames() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.frames
}

// SetTime jumps to t without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick. Listeners run in
// registration order.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Step advances time by one Tick and runs the listeners synchronously.
func (tc *TimeController) Step() time.Time {
	return tc.Advance(tc.Tick)
}

// Advance moves time forward by dt and runs the listeners synchronously.
func (tc *TimeController) Advance(dt time.Duration) time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(dt)
	tc.frames++
	now := tc.currentTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(now, dt)
	}
	return now
}

// Run steps the controller from StartTime in a separate goroutine until
// duration of frame time has passed (forever when duration is zero) or ctx
// is cancelled. It returns a channel that is closed when the loop exits.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) (<-chan struct{}, error) {
	if tc.Tick <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTick, tc.Tick)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.SetTime(tc.StartTime)
		elapsed := time.Duration(0)

		var tick <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.Step()
			elapsed += tc.Tick
		}
	}()
	return done, nil
}
