package game

import (
	"time"

	"endlessdrive/server/internal/camera"
	"endlessdrive/server/internal/collision"
)

// RunResult summarises a headless run.
type RunResult struct {
	HUD     HUD            `json:"hud"`
	Frames  int            `json:"frames"`
	Elapsed time.Duration  `json:"elapsed"`
	Crashed bool           `json:"crashed"`
	Hit     *collision.Hit `json:"hit,omitempty"`
}

// RunFor starts a run and feeds synthetic frames of length frame until the
// duration elapses or the car crashes. cam may be nil.
func (s *Session) RunFor(duration, frame time.Duration, cam camera.Handle) RunResult {
	if frame <= 0 {
		frame = time.Second / 60
	}
	s.Start()

	var (
		result RunResult
		now    time.Duration
	)
	//1.- The first Update primes the clock, so the loop includes the zero timestamp.
	for now = 0; now <= duration; now += frame {
		result.HUD = s.Update(now, cam)
		result.Frames++
		if result.HUD.Phase == PhaseGameOver {
			break
		}
	}
	result.Elapsed = min(now, duration)
	if telemetry := s.Telemetry(); telemetry != nil && telemetry.LastHit != nil {
		result.Crashed = true
		result.Hit = telemetry.LastHit
	}
	return result
}
