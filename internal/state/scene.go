package state

import "endlessdrive/server/internal/road"

// SceneDiff collates the entity and event deltas accumulated since the last consume.
type SceneDiff struct {
	Entities EntityDiff `json:"entities"`
	Events   EventDiff  `json:"events"`
}

// HasChanges reports whether the diff contains anything worth publishing.
func (d SceneDiff) HasChanges() bool {
	//1.- Check each sub diff for non-empty updates or removals.
	if len(d.Entities.Updated) > 0 || len(d.Entities.Removed) > 0 {
		return true
	}
	return len(d.Events.Events) > 0
}

// Scene is the bundled road.Sink: a registry of live entities plus the event
// buffer, safe for concurrent readers while the session writes.
type Scene struct {
	Entities *EntityStore
	Events   *EventStore
}

// NewScene constructs the scene containers.
func NewScene() *Scene {
	return &Scene{
		Entities: NewEntityStore(),
		Events:   NewEventStore(),
	}
}

// Add implements road.Sink.
func (s *Scene) Add(entity *road.Entity) {
	if s == nil {
		return
	}
	s.Entities.Upsert(entity)
}

// Remove implements road.Sink.
func (s *Scene) Remove(entity *road.Entity) {
	if s == nil || entity == nil {
		return
	}
	s.Entities.Delete(entity.ID)
}

// MarkMoved refreshes a moving entity so the next diff carries its position.
func (s *Scene) MarkMoved(entity *road.Entity) {
	if s == nil {
		return
	}
	s.Entities.Upsert(entity)
}

// Record buffers an event.
func (s *Scene) Record(event Event) {
	if s == nil {
		return
	}
	s.Events.Add(event)
}

// ConsumeDiff gathers and clears every pending delta.
func (s *Scene) ConsumeDiff() SceneDiff {
	if s == nil {
		return SceneDiff{}
	}
	return SceneDiff{
		Entities: s.Entities.ConsumeDiff(),
		Events:   s.Events.ConsumeDiff(),
	}
}

// Snapshot captures every live entity for late joiners or debugging.
func (s *Scene) Snapshot() []road.Entity {
	if s == nil {
		return nil
	}
	return s.Entities.Snapshot()
}

// Len reports the number of live entities.
func (s *Scene) Len() int {
	if s == nil {
		return 0
	}
	return s.Entities.Len()
}
