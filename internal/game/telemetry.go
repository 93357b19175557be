package game

import (
	"fmt"

	"endlessdrive/server/internal/collision"
	"endlessdrive/server/internal/geom"
	"endlessdrive/server/internal/physics"
	"endlessdrive/server/internal/state"
)

// HUD is the heads-up readout for the current frame.
type HUD struct {
	Score           int     `json:"score"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	Phase           Phase   `json:"phase"`
	Distance        float64 `json:"distance"`
}

// String renders the classic "Score: N | Speed xM.MM" line.
func (h HUD) String() string {
	return fmt.Sprintf("Score: %d | Speed x%.2f", h.Score, h.SpeedMultiplier)
}

// Frame summarises one Update call for observers.
type Frame struct {
	Number   uint64        `json:"frame"`
	RunTime  float64       `json:"run_time"`
	Phase    Phase         `json:"phase"`
	Steps    int           `json:"steps"`
	Dropped  int           `json:"dropped,omitempty"`
	Position geom.Vec3     `json:"position"`
	Vehicle  physics.State `json:"vehicle"`
	Distance float64       `json:"distance"`
	Score    int           `json:"score"`
}

// Observer receives every frame and event the session produces. Calls are
// made on the session goroutine and must not block.
type Observer interface {
	ObserveFrame(Frame)
	ObserveEvent(state.Event)
}

// Telemetry is an immutable snapshot published after every frame.
type Telemetry struct {
	Frame
	HUD            string         `json:"hud"`
	Mode           Mode           `json:"mode"`
	PlayerName     string         `json:"player_name"`
	CurrentSegment int            `json:"current_segment"`
	Segments       []int          `json:"segments"`
	LiveEntities   int            `json:"live_entities"`
	TrafficCars    int            `json:"traffic_cars"`
	Runs           uint64         `json:"runs"`
	Collisions     uint64         `json:"collisions"`
	StepsTotal     uint64         `json:"steps_total"`
	DroppedTotal   uint64         `json:"dropped_total"`
	LastHit        *collision.Hit `json:"last_hit,omitempty"`
}
