package replay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/logging"
	"endlessdrive/server/internal/state"
)

func TestRunRecorderWritesOneBundlePerRun(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewRunRecorder(dir,
		WithRecorderTuning(DefaultTuning()),
		WithRecorderLogger(logging.NewTestLogger()),
	)
	if err != nil {
		t.Fatalf("NewRunRecorder: %v", err)
	}

	recorder.ObserveEvent(state.Event{Type: state.EventRunStarted, Metadata: map[string]string{
		"run": "1", "player": "ana", "seed": "77", "mode": "night",
	}})
	for i := uint64(1); i <= 3; i++ {
		recorder.ObserveFrame(game.Frame{Number: i, RunTime: float64(i) / 60, Distance: float64(i), Score: int(i)})
	}
	recorder.ObserveEvent(state.Event{Type: state.EventCollision, RunTime: 0.07, Segment: 4, Metadata: map[string]string{
		"kind": "barrier", "score": "3", "distance": "3.50",
	}})
	recorder.ObserveFrame(game.Frame{Number: 4, RunTime: 0.07, Phase: game.PhaseGameOver, Distance: 3.5, Score: 3})
	//1.- Frames outside a run are not recorded.
	recorder.ObserveFrame(game.Frame{Number: 5, Phase: game.PhaseGameOver})

	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	stats := recorder.Stats()
	if stats.Runs != 1 || stats.Frames != 4 || stats.Events != 2 || stats.Recording {
		t.Fatalf("unexpected stats %+v", stats)
	}

	bundle, err := ReadBundle(stats.LastBundle)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	header := bundle.Header
	if header.Run != 1 || header.Seed != 77 || header.Player != "ana" || header.Tuning == nil {
		t.Fatalf("unexpected header %+v", header)
	}
	outcome := header.Outcome
	if outcome == nil || !outcome.Crashed || outcome.Obstacle != "barrier" || outcome.Segment != 4 || outcome.Frames != 4 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(bundle.Events(state.EventCollision)) != 1 {
		t.Fatalf("expected the collision event in the bundle")
	}
	if recorder.Stats().Dropped != 0 {
		t.Fatalf("expected no dropped observations")
	}
}

func TestRunRecorderDumpsLiveSession(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewRunRecorder(dir, WithRecorderLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("NewRunRecorder: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := recorder.DumpReplay(ctx); !errors.Is(err, ErrNoReplay) {
		t.Fatalf("expected ErrNoReplay before any run, got %v", err)
	}

	session := game.New(game.WithSeed(7), game.WithLogger(logging.NewTestLogger()), game.WithObserver(recorder))
	session.Start()
	for i := 0; i < 10; i++ {
		session.Update(time.Duration(i)*time.Second/60, nil)
	}

	bundleDir, err := recorder.DumpReplay(ctx)
	if err != nil {
		t.Fatalf("DumpReplay: %v", err)
	}
	if filepath.Dir(bundleDir) != dir {
		t.Fatalf("expected the bundle under %s, got %s", dir, bundleDir)
	}
	header, err := ReadHeader(filepath.Join(bundleDir, HeaderFile))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if header.Seed != 7 || header.Run != 1 || header.Outcome == nil || header.Outcome.Crashed {
		t.Fatalf("unexpected live header %+v", header)
	}
	if !recorder.Stats().Recording {
		t.Fatalf("expected the recorder to report an active run")
	}

	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	bundle, err := ReadBundle(bundleDir)
	if err != nil {
		t.Fatalf("ReadBundle after close: %v", err)
	}
	if len(bundle.Events(state.EventRunStarted)) != 1 {
		t.Fatalf("expected one run_started event")
	}
	if _, err := recorder.DumpReplay(ctx); err == nil {
		t.Fatalf("expected dump after close to fail")
	}
}

func TestRunRecorderDropsWhenQueueIsFull(t *testing.T) {
	recorder := &RunRecorder{queue: make(chan recorderItem, 1)}
	recorder.ObserveFrame(game.Frame{Number: 1})
	recorder.ObserveFrame(game.Frame{Number: 2})
	if got := recorder.Stats().Dropped; got != 1 {
		t.Fatalf("expected one dropped observation, got %d", got)
	}
}

func TestRunRecorderSweepsRetention(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	cleaner := NewCleaner(dir, RetentionPolicy{MaxRuns: 1}, logging.NewTestLogger())
	recorder, err := NewRunRecorder(dir,
		WithRecorderClock(clock),
		WithRecorderCleaner(cleaner),
		WithRecorderLogger(logging.NewTestLogger()),
	)
	if err != nil {
		t.Fatalf("NewRunRecorder: %v", err)
	}
	for run := 1; run <= 3; run++ {
		recorder.ObserveEvent(state.Event{Type: state.EventRunStarted, Metadata: map[string]string{"run": string(rune('0' + run))}})
		recorder.ObserveFrame(game.Frame{Number: uint64(run)})
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	bundles, err := cleaner.Bundles()
	if err != nil {
		t.Fatalf("Bundles: %v", err)
	}
	if len(bundles) != 1 || bundles[0] != recorder.Stats().LastBundle {
		t.Fatalf("expected only the last bundle to survive, got %v", bundles)
	}
}
