package grpc

import (
	"context"

	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/scores"
	"endlessdrive/server/internal/state"
)

// DiffSource exposes subscription semantics for the encoded scene diff fan-out.
type DiffSource interface {
	Subscribe(ctx context.Context) (<-chan state.DiffFrame, func(), error)
}

// ScoreBackend stores submitted runs and serves the leaderboard.
type ScoreBackend interface {
	Submit(ctx context.Context, name string, score float64) (scores.Entry, error)
	Top(ctx context.Context) ([]scores.Entry, error)
}

// TelemetrySource returns the most recent published run snapshot, or nil.
type TelemetrySource interface {
	Telemetry() *game.Telemetry
}

var (
	_ DiffSource      = (*state.Broadcaster)(nil)
	_ ScoreBackend    = (*scores.Reporter)(nil)
	_ TelemetrySource = (*game.Session)(nil)
)
