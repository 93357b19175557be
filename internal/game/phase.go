package game

import (
	"fmt"
	"strings"
)

// Phase is the run lifecycle stage.
type Phase int

const (
	// PhaseIdle is the menu: the car is parked and nothing integrates.
	PhaseIdle Phase = iota
	// PhasePlaying integrates the car, streams road and checks collisions.
	PhasePlaying
	// PhaseGameOver keeps the final score on display until the next start.
	PhaseGameOver
)

var phaseNames = [...]string{"idle", "playing", "gameover"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText decodes a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	for i, name := range phaseNames {
		if name == string(text) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Mode is the lighting preset. Night turns headlights on.
type Mode int

const (
	ModeNight Mode = iota
	ModeDay
)

func (m Mode) String() string {
	if m == ModeDay {
		return "day"
	}
	return "night"
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode accepts "day" or "night" in any case.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "day":
		return ModeDay, nil
	case "night":
		return ModeNight, nil
	default:
		return ModeNight, fmt.Errorf("unknown mode %q", raw)
	}
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeDay {
		return ModeNight
	}
	return ModeDay
}
