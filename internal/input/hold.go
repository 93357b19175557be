package input

import (
	"sync"
	"time"
)

// Clock exposes the current time for hold expiry decisions.
type Clock interface {
	Now() time.Time
}

// systemClock relies on time.Now for production code paths.
type systemClock struct{}

// Now implements Clock by delegating to time.Now.
func (systemClock) Now() time.Time { return time.Now() }

// HoldTracker emulates key releases for front-ends that only report presses,
// such as terminals. Every press keeps the control held for the hold window;
// Expire releases controls whose window elapsed.
type HoldTracker struct {
	mu      sync.Mutex
	state   *State
	window  time.Duration
	clock   Clock
	pressed map[Control]time.Time
}

// HoldOption customises tracker construction.
type HoldOption func(*HoldTracker)

// WithHoldClock overrides the clock used for expiry calculations.
func WithHoldClock(clock Clock) HoldOption {
	return func(h *HoldTracker) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHoldTracker wires a tracker to the shared flag state.
func NewHoldTracker(state *State, window time.Duration, opts ...HoldOption) *HoldTracker {
	//1.- Default the window to a typical keyboard auto-repeat gap when unset.
	if window <= 0 {
		window = 180 * time.Millisecond
	}
	tracker := &HoldTracker{
		state:   state,
		window:  window,
		clock:   systemClock{},
		pressed: make(map[Control]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(tracker)
		}
	}
	return tracker
}

// Press marks the control as held and refreshes its expiry.
func (h *HoldTracker) Press(control Control) {
	if h == nil || control == ControlNone {
		return
	}
	h.mu.Lock()
	h.pressed[control] = h.clock.Now()
	h.mu.Unlock()
	h.state.Set(control, true)

	//1.- Opposing steering keys cancel each other out so a quick tap reverses direction.
	switch control {
	case ControlLeft:
		h.release(ControlRight)
	case ControlRight:
		h.release(ControlLeft)
	}
}

// Expire releases every control whose hold window elapsed. It returns the
// number of controls released.
func (h *HoldTracker) Expire() int {
	if h == nil {
		return 0
	}
	now := h.clock.Now()
	var expired []Control
	h.mu.Lock()
	for control, pressedAt := range h.pressed {
		if now.Sub(pressedAt) >= h.window {
			expired = append(expired, control)
			delete(h.pressed, control)
		}
	}
	h.mu.Unlock()
	for _, control := range expired {
		h.state.Set(control, false)
	}
	return len(expired)
}

// Reset forgets every tracked press and clears the flags.
func (h *HoldTracker) Reset() {
	if h == nil {
		return
	}
	h.mu.Lock()
	clear(h.pressed)
	h.mu.Unlock()
	h.state.Clear()
}

func (h *HoldTracker) release(control Control) {
	h.mu.Lock()
	delete(h.pressed, control)
	h.mu.Unlock()
	h.state.Set(control, false)
}
