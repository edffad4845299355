package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	called := false
	tc.AddListener(func(time.Time, time.Duration) { called = true })

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	if called {
		t.Fatalf("SetTime notified listeners")
	}
}

func TestTimeControllerStepRunsListenersInOrder(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 20*time.Millisecond, Accelerated)

	var order []string
	var gotDt time.Duration
	tc.AddListener(func(_ time.Time, dt time.Duration) {
		order = append(order, "a")
		gotDt = dt
	})
	tc.AddListener(func(time.Time, time.Duration) { order = append(order, "b") })

	now := tc.Step()
	if want := start.Add(20 * time.Millisecond); !now.Equal(want) {
		t.Fatalf("Step() = %v, want %v", now, want)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("listener order = %v", order)
	}
	if gotDt != 20*time.Millisecond {
		t.Fatalf("dt = %v", gotDt)
	}
	if tc.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", tc.Frames())
	}
}

func TestTimeControllerRunUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	ticks := 0
	tc.AddListener(func(time.Time, time.Duration) { ticks++ })

	done, err := tc.Run(context.Background(), 15*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
}

func TestTimeControllerRunStopsOnCancel(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, RealTime)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := tc.Run(ctx, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestTimeControllerRunRejectsNonPositiveTick(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, mode := range []Mode{RealTime, Accelerated} {
		for _, tick := range []time.Duration{0, -time.Millisecond} {
			tc := NewTimeController(start, tick, mode)
			done, err := tc.Run(context.Background(), time.Second)
			if !errors.Is(err, ErrInvalidTick) {
				t.Fatalf("%v tick %v: err = %v, want ErrInvalidTick", mode, tick, err)
			}
			if done != nil {
				t.Fatalf("%v tick %v: Run started a loop", mode, tick)
			}
		}
	}
}
