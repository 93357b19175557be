package input

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// 1.- Now returns the configured timestamp for deterministic expiry decisions.
func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// 2.- Advance moves the internal clock forward to simulate elapsed time.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestApplyKeyMapsArrowAndLetterKeys(t *testing.T) {
	tests := []struct {
		code string
		want Flags
	}{
		{"ArrowUp", Flags{Forward: true}},
		{"KeyW", Flags{Forward: true}},
		{"ArrowDown", Flags{Backward: true}},
		{"KeyS", Flags{Backward: true}},
		{"ArrowLeft", Flags{Left: true}},
		{"KeyA", Flags{Left: true}},
		{"ArrowRight", Flags{Right: true}},
		{"KeyD", Flags{Right: true}},
	}
	for _, tc := range tests {
		var state State
		if !state.ApplyKey(tc.code, true) {
			t.Fatalf("%s not recognised", tc.code)
		}
		if got := state.Snapshot(); got != tc.want {
			t.Fatalf("%s down: got %+v want %+v", tc.code, got, tc.want)
		}
		state.ApplyKey(tc.code, false)
		if got := state.Snapshot(); got != (Flags{}) {
			t.Fatalf("%s up: expected cleared flags, got %+v", tc.code, got)
		}
	}
}

func TestApplyKeyIgnoresUnknownCodes(t *testing.T) {
	var state State
	if state.ApplyKey("Space", true) {
		t.Fatalf("expected Space to be ignored")
	}
	if got := state.Snapshot(); got != (Flags{}) {
		t.Fatalf("unexpected flags %+v", got)
	}
}

func TestSteerDirection(t *testing.T) {
	if (Flags{Left: true}).SteerDirection() != 1 {
		t.Fatalf("left should steer positive")
	}
	if (Flags{Right: true}).SteerDirection() != -1 {
		t.Fatalf("right should steer negative")
	}
	if (Flags{Left: true, Right: true}).SteerDirection() != 0 {
		t.Fatalf("both held should cancel")
	}
	if (Flags{}).SteerDirection() != 0 {
		t.Fatalf("none held should not steer")
	}
}

func TestHoldTrackerReleasesAfterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var state State
	tracker := NewHoldTracker(&state, 200*time.Millisecond, WithHoldClock(clock))

	//1.- A press holds the flag until the window elapses.
	tracker.Press(ControlForward)
	clock.Advance(150 * time.Millisecond)
	if released := tracker.Expire(); released != 0 {
		t.Fatalf("released %d controls before the window elapsed", released)
	}
	if !state.Snapshot().Forward {
		t.Fatalf("expected forward to remain held")
	}

	//2.- A repeat press refreshes the window.
	tracker.Press(ControlForward)
	clock.Advance(150 * time.Millisecond)
	tracker.Expire()
	if !state.Snapshot().Forward {
		t.Fatalf("expected refreshed press to keep forward held")
	}

	//3.- Once the window passes the flag is released.
	clock.Advance(60 * time.Millisecond)
	if released := tracker.Expire(); released != 1 {
		t.Fatalf("expected one release, got %d", released)
	}
	if state.Snapshot().Forward {
		t.Fatalf("expected forward to be released")
	}
}

func TestHoldTrackerOpposingSteerCancels(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var state State
	tracker := NewHoldTracker(&state, time.Second, WithHoldClock(clock))

	tracker.Press(ControlLeft)
	tracker.Press(ControlRight)
	flags := state.Snapshot()
	if flags.Left || !flags.Right {
		t.Fatalf("expected right to replace left, got %+v", flags)
	}

	tracker.Reset()
	if state.Snapshot() != (Flags{}) {
		t.Fatalf("expected reset to clear flags")
	}
}
