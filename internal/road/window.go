package road

import (
	"sort"
)

// ReleaseHook observes segments as they are evicted or cleared.
type ReleaseHook func(*Segment)

// Change summarises the effect of one Ensure call.
type Change struct {
	Current int
	Changed bool
	Spawned []int
	Evicted []int
}

// Window keeps the live segments around the player. It is not safe for
// concurrent use; the owning session drives it from a single goroutine.
type Window struct {
	gen       *Generator
	layout    Layout
	state     GeneratorState
	segments  map[int]*Segment
	current   int
	primed    bool
	maxAhead  int
	maxBehind int
	sink      Sink
	hooks     []ReleaseHook
}

// NewWindow wires a window to the generator and scene sink.
func NewWindow(gen *Generator, sink Sink) *Window {
	if sink == nil {
		sink = Discard{}
	}
	tuning := gen.Tuning()
	return &Window{
		gen:       gen,
		layout:    gen.Layout(),
		state:     InitialGeneratorState(),
		segments:  make(map[int]*Segment),
		maxAhead:  tuning.MaxAheadSegments,
		maxBehind: tuning.MaxBehindSegments,
		sink:      sink,
	}
}

// OnRelease registers a hook fired for every evicted or cleared segment.
func (w *Window) OnRelease(hook ReleaseHook) {
	if hook != nil {
		w.hooks = append(w.hooks, hook)
	}
}

// Layout returns the index grid shared with collision checks.
func (w *Window) Layout() Layout { return w.layout }

// Sink returns the scene sink entities are published to.
func (w *Window) Sink() Sink { return w.sink }

// GeneratorState returns the intersection memory carried between segments.
func (w *Window) GeneratorState() GeneratorState { return w.state }

// Current returns the last computed current index and whether Ensure ran.
func (w *Window) Current() (int, bool) { return w.current, w.primed }

// Ensure recomputes the window for the player's z. Calls that land on the
// same current index as the previous call do nothing.
func (w *Window) Ensure(playerZ float64) Change {
	current := max(0, w.layout.IndexAt(playerZ))
	if w.primed && current == w.current {
		return Change{Current: current}
	}
	change := Change{Current: current, Changed: true}

	//1.- Spawn every missing segment from the current index to the look-ahead edge.
	for idx := current; idx <= current+w.maxAhead; idx++ {
		if _, ok := w.segments[idx]; ok {
			continue
		}
		seg, next := w.gen.Generate(w.state, idx)
		w.state = next
		w.segments[idx] = seg
		for _, entity := range seg.Entities() {
			w.sink.Add(entity)
		}
		change.Spawned = append(change.Spawned, idx)
	}

	//2.- Evict segments outside the window while iterating over a sorted snapshot of the keys.
	// Segments past the lead edge only exist after reversing and are rebuilt on return.
	for _, idx := range w.Indices() {
		if idx >= current-w.maxBehind && idx <= current+w.maxAhead {
			continue
		}
		w.release(w.segments[idx])
		delete(w.segments, idx)
		change.Evicted = append(change.Evicted, idx)
	}

	w.current = current
	w.primed = true
	return change
}

// Segment returns the live segment at index.
func (w *Window) Segment(index int) (*Segment, bool) {
	seg, ok := w.segments[index]
	return seg, ok
}

// Indices returns the live indices in ascending order.
func (w *Window) Indices() []int {
	keys := make([]int, 0, len(w.segments))
	for idx := range w.segments {
		keys = append(keys, idx)
	}
	sort.Ints(keys)
	return keys
}

// Segments returns the live segments ordered by index.
func (w *Window) Segments() []*Segment {
	indices := w.Indices()
	out := make([]*Segment, 0, len(indices))
	for _, idx := range indices {
		out = append(out, w.segments[idx])
	}
	return out
}

// Len reports the number of live segments.
func (w *Window) Len() int { return len(w.segments) }

// Reset releases every live segment and restores the initial generator state.
func (w *Window) Reset() {
	for _, idx := range w.Indices() {
		w.release(w.segments[idx])
		delete(w.segments, idx)
	}
	w.state = InitialGeneratorState()
	w.current = 0
	w.primed = false
}

func (w *Window) release(seg *Segment) {
	if seg == nil {
		return
	}
	for _, entity := range seg.Entities() {
		w.sink.Remove(entity)
	}
	for _, hook := range w.hooks {
		hook(seg)
	}
}
