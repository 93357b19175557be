package replayplayer

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/replay"
	"endlessdrive/server/internal/state"
)

func TestLoadSummarisesFinishedRun(t *testing.T) {
	dir := writeRun(t, 12, true)

	summary, err := Load(filepath.Join(dir, replay.ManifestFile), true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if summary.Frames != 2 || summary.Events[state.EventCollision] != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.FinalFrame == nil || summary.FinalFrame.Score != 12 {
		t.Fatalf("unexpected final frame %+v", summary.FinalFrame)
	}
	if summary.Collision == nil || summary.Collision.Metadata["kind"] != "cone" {
		t.Fatalf("unexpected collision %+v", summary.Collision)
	}
	if !summary.Consistent() {
		t.Fatalf("expected a consistent bundle, got %v", summary.Problems)
	}
	if len(summary.Timeline) != 4 {
		t.Fatalf("expected the full timeline, got %d entries", len(summary.Timeline))
	}
}

func TestLoadFlagsMismatchedOutcome(t *testing.T) {
	dir := writeRun(t, 99, false)

	summary, err := Load(dir, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if summary.Consistent() || len(summary.Problems) != 2 {
		t.Fatalf("expected collision and score problems, got %v", summary.Problems)
	}
	if summary.Timeline != nil {
		t.Fatalf("expected no timeline without the flag")
	}
}

func writeRun(t *testing.T, headerScore int, crashed bool) string {
	t.Helper()
	now := time.Date(2024, 7, 10, 15, 0, 0, 0, time.UTC)
	writer, _, err := replay.NewWriter(t.TempDir(), "run-1", func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	event := func(frame uint64, e state.Event) {
		payload, _ := json.Marshal(e)
		if err := writer.AppendEvent(frame, int64(e.RunTime*1000), e.Type, payload); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	frame := func(f game.Frame) {
		payload, _ := json.Marshal(f)
		if err := writer.AppendFrame(f.Number, int64(f.RunTime*1000), payload); err != nil {
			t.Fatalf("AppendFrame: %v", err)
		}
	}

	event(0, state.Event{Type: state.EventRunStarted})
	frame(game.Frame{Number: 1, RunTime: 0.5, Score: 6})
	event(1, state.Event{Type: state.EventCollision, RunTime: 1, Metadata: map[string]string{"kind": "cone"}})
	frame(game.Frame{Number: 2, RunTime: 1, Score: 12, Phase: game.PhaseGameOver})

	writer.SetHeader(replay.Header{Run: 1, Outcome: &replay.Outcome{Score: headerScore, Frames: 2, Crashed: crashed}})
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return writer.Directory()
}
