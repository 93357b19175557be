package road

import (
	"math/rand/v2"
	"testing"

	"endlessdrive/server/internal/gameplay"
)

// countingSink tracks live entities by identifier.
type countingSink struct {
	live    map[uint64]*Entity
	added   int
	removed int
}

func newCountingSink() *countingSink {
	return &countingSink{live: make(map[uint64]*Entity)}
}

func (s *countingSink) Add(e *Entity) {
	s.live[e.ID] = e
	s.added++
}

func (s *countingSink) Remove(e *Entity) {
	delete(s.live, e.ID)
	s.removed++
}

func newTestWindow(seed uint64, sink Sink) *Window {
	return NewWindow(NewGenerator(gameplay.DefaultRoadTuning(), NewSource(seed), nil), sink)
}

func TestEnsureSpawnsLookAheadFromStart(t *testing.T) {
	sink := newCountingSink()
	window := newTestWindow(1, sink)

	change := window.Ensure(-24)
	if !change.Changed || change.Current != 0 {
		t.Fatalf("unexpected change %+v", change)
	}
	indices := window.Indices()
	want := []int{0, 1, 2, 3}
	if len(indices) != len(want) {
		t.Fatalf("live indices = %v want %v", indices, want)
	}
	for i := range want {
		if indices[i] != want[i] {
			t.Fatalf("live indices = %v want %v", indices, want)
		}
	}
	if sink.added == 0 || len(sink.live) != sink.added {
		t.Fatalf("expected every spawned entity in the sink, added=%d live=%d", sink.added, len(sink.live))
	}
}

func TestEnsureIsNoOpForUnchangedIndex(t *testing.T) {
	sink := newCountingSink()
	window := newTestWindow(1, sink)
	window.Ensure(-24)
	added := sink.added

	change := window.Ensure(-30)
	if change.Changed || len(change.Spawned) != 0 || len(change.Evicted) != 0 {
		t.Fatalf("expected no-op, got %+v", change)
	}
	if sink.added != added {
		t.Fatalf("sink received %d extra entities on a no-op", sink.added-added)
	}
}

func TestEnsureEvictsTrailingSegments(t *testing.T) {
	sink := newCountingSink()
	window := newTestWindow(2, sink)
	var released []int
	window.OnRelease(func(seg *Segment) { released = append(released, seg.Index) })

	window.Ensure(-24)
	//1.- Jump straight to segment five: 4..8 spawn and 0..2 fall behind the trailing edge.
	change := window.Ensure(-40 - 80*5 - 1)
	if change.Current != 5 {
		t.Fatalf("current = %d want 5", change.Current)
	}
	if len(change.Evicted) != 3 || change.Evicted[0] != 0 || change.Evicted[2] != 2 {
		t.Fatalf("evicted = %v want [0 1 2]", change.Evicted)
	}
	if len(released) != 3 {
		t.Fatalf("release hooks fired %d times want 3", len(released))
	}
	for _, idx := range window.Indices() {
		if idx < 3 || idx > 8 {
			t.Fatalf("index %d outside the window [3, 8]", idx)
		}
	}
	for _, e := range sink.live {
		if e.Segment < 3 {
			t.Fatalf("entity %d of evicted segment %d still live", e.ID, e.Segment)
		}
	}
}

func TestEnsureWindowInvariantUnderRandomWalk(t *testing.T) {
	rng := rand.New(rand.NewPCG(17, 19))
	sink := newCountingSink()
	window := newTestWindow(3, sink)
	tuning := gameplay.DefaultRoadTuning()

	z := -24.0
	for step := 0; step < 2000; step++ {
		//1.- Mostly drive forward with occasional reversing.
		z -= rng.Float64()*60 - 10
		change := window.Ensure(z)
		lo := max(0, change.Current-tuning.MaxBehindSegments)
		hi := change.Current + tuning.MaxAheadSegments
		for _, idx := range window.Indices() {
			if idx < lo || idx > hi {
				t.Fatalf("step %d: index %d outside [%d, %d]", step, idx, lo, hi)
			}
		}
		for idx := change.Current; idx <= hi; idx++ {
			if _, ok := window.Segment(idx); !ok {
				t.Fatalf("step %d: missing look-ahead segment %d", step, idx)
			}
		}
	}
	if sink.added-sink.removed != len(sink.live) {
		t.Fatalf("sink accounting drifted: added=%d removed=%d live=%d", sink.added, sink.removed, len(sink.live))
	}
}

func TestEnsureClampsNegativeIndexToZero(t *testing.T) {
	window := newTestWindow(4, nil)
	change := window.Ensure(100)
	if change.Current != 0 {
		t.Fatalf("current = %d want 0 behind the start line", change.Current)
	}
	if _, ok := window.Segment(-1); ok {
		t.Fatalf("negative segment spawned")
	}
}

func TestResetReleasesEverything(t *testing.T) {
	sink := newCountingSink()
	window := newTestWindow(5, sink)
	hooks := 0
	window.OnRelease(func(*Segment) { hooks++ })
	window.Ensure(-24)
	window.Ensure(-400)

	window.Reset()
	if window.Len() != 0 || len(sink.live) != 0 {
		t.Fatalf("expected empty window and sink, got %d segments %d entities", window.Len(), len(sink.live))
	}
	if hooks == 0 {
		t.Fatalf("expected release hooks on reset")
	}
	if window.GeneratorState().LastIntersectionIndex != NoIntersection {
		t.Fatalf("generator state not reset: %+v", window.GeneratorState())
	}
	if change := window.Ensure(-24); !change.Changed {
		t.Fatalf("expected Ensure after reset to rebuild the window")
	}
}

func TestEnsureEvictsLeadSegmentsAfterReversing(t *testing.T) {
	window := newTestWindow(6, nil)
	window.Ensure(-40 - 80*10 - 1)
	change := window.Ensure(-40 - 80*8 - 1)
	if change.Current != 8 {
		t.Fatalf("current = %d want 8", change.Current)
	}
	if _, ok := window.Segment(12); ok {
		t.Fatalf("segment 12 should have been evicted past the lead edge")
	}
	if window.Len() > 6 {
		t.Fatalf("window grew to %d segments", window.Len())
	}
}
