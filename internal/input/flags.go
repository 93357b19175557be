package input

import "sync/atomic"

// Flags is an immutable view of the four held driving controls.
type Flags struct {
	Forward  bool `json:"forward"`
	Backward bool `json:"backward"`
	Left     bool `json:"left"`
	Right    bool `json:"right"`
}

// SteerDirection resolves the steering flags to +1 (left), -1 (right) or 0.
func (f Flags) SteerDirection() float64 {
	switch {
	case f.Left && !f.Right:
		return 1
	case f.Right && !f.Left:
		return -1
	default:
		return 0
	}
}

// Control identifies one held flag.
type Control int

const (
	ControlNone Control = iota
	ControlForward
	ControlBackward
	ControlLeft
	ControlRight
)

// String returns the lowercase control name.
func (c Control) String() string {
	switch c {
	case ControlForward:
		return "forward"
	case ControlBackward:
		return "backward"
	case ControlLeft:
		return "left"
	case ControlRight:
		return "right"
	default:
		return "none"
	}
}

// ControlForKey maps browser style key codes onto controls.
func ControlForKey(code string) Control {
	switch code {
	case "ArrowUp", "KeyW":
		return ControlForward
	case "ArrowDown", "KeyS":
		return ControlBackward
	case "ArrowLeft", "KeyA":
		return ControlLeft
	case "ArrowRight", "KeyD":
		return ControlRight
	default:
		return ControlNone
	}
}

// State holds the live control flags written by an input listener and read by
// the simulation. All methods are safe for concurrent use.
type State struct {
	forward  atomic.Bool
	backward atomic.Bool
	left     atomic.Bool
	right    atomic.Bool
}

// Set updates a single control flag.
func (s *State) Set(control Control, held bool) {
	if s == nil {
		return
	}
	switch control {
	case ControlForward:
		s.forward.Store(held)
	case ControlBackward:
		s.backward.Store(held)
	case ControlLeft:
		s.left.Store(held)
	case ControlRight:
		s.right.Store(held)
	}
}

// ApplyKey maps a key event onto the flags and reports whether the key was recognised.
func (s *State) ApplyKey(code string, down bool) bool {
	control := ControlForKey(code)
	if control == ControlNone {
		return false
	}
	s.Set(control, down)
	return true
}

// Snapshot returns the current flag values.
func (s *State) Snapshot() Flags {
	if s == nil {
		return Flags{}
	}
	return Flags{
		Forward:  s.forward.Load(),
		Backward: s.backward.Load(),
		Left:     s.left.Load(),
		Right:    s.right.Load(),
	}
}

// Store replaces every flag at once.
func (s *State) Store(flags Flags) {
	if s == nil {
		return
	}
	s.forward.Store(flags.Forward)
	s.backward.Store(flags.Backward)
	s.left.Store(flags.Left)
	s.right.Store(flags.Right)
}

// Clear releases every control.
func (s *State) Clear() {
	s.Store(Flags{})
}
