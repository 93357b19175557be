package state

import (
	"maps"
	"sync"
)

// Event types emitted by a running session.
const (
	EventRunStarted       = "run_started"
	EventSegmentSpawned   = "segment_spawned"
	EventSegmentEvicted   = "segment_evicted"
	EventTrafficActivated = "traffic_activated"
	EventCollision        = "collision"
	EventModeChanged      = "mode_changed"
)

// Event is one notable moment of a run.
type Event struct {
	Type     string            `json:"type"`
	RunTime  float64           `json:"run_time"`
	Segment  int               `json:"segment"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// EventDiff contains the batch of events ready for broadcast.
type EventDiff struct {
	Events []Event `json:"events,omitempty"`
}

// DefaultEventCapacity bounds the buffer when nobody consumes diffs.
const DefaultEventCapacity = 4096

// EventStore buffers events until the next consume publishes them.
type EventStore struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	dropped  uint64
}

// NewEventStore constructs an event buffer holding at most DefaultEventCapacity events.
func NewEventStore() *EventStore {
	return &EventStore{capacity: DefaultEventCapacity}
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *EventStore) Dropped() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Add enqueues an event for the next diff.
func (s *EventStore) Add(event Event) {
	if s == nil || event.Type == "" {
		return
	}

	clone := event.Clone()
	s.mu.Lock()
	//1.- Append while holding the mutex to preserve ordering.
	s.events = append(s.events, clone)
	//2.- Drop the oldest entries once the buffer overflows.
	if s.capacity > 0 && len(s.events) > s.capacity {
		overflow := len(s.events) - s.capacity
		s.events = append(s.events[:0:0], s.events[overflow:]...)
		s.dropped += uint64(overflow)
	}
	s.mu.Unlock()
}

// ConsumeDiff flushes and returns the queued events.
func (s *EventStore) ConsumeDiff() EventDiff {
	if s == nil {
		return EventDiff{}
	}

	s.mu.Lock()
	//1.- Swap out the current slice with a fresh buffer.
	events := s.events
	s.events = nil
	s.mu.Unlock()

	if len(events) == 0 {
		return EventDiff{}
	}
	return EventDiff{Events: events}
}
