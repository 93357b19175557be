package state

import (
	"sort"
	"sync"

	"endlessdrive/server/internal/road"
)

// EntityDiff groups updated and removed entity identifiers since the last consume.
type EntityDiff struct {
	Updated []road.Entity `json:"updated,omitempty"`
	Removed []uint64      `json:"removed,omitempty"`
}

// EntityStore keeps copies of the live scene entities with dirty tracking.
type EntityStore struct {
	mu      sync.RWMutex
	states  map[uint64]road.Entity
	dirty   map[uint64]struct{}
	removed map[uint64]struct{}
}

// NewEntityStore constructs a thread-safe entity container.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		states:  make(map[uint64]road.Entity),
		dirty:   make(map[uint64]struct{}),
		removed: make(map[uint64]struct{}),
	}
}

// Upsert records or refreshes a copy of the entity and flags it for the next diff.
func (s *EntityStore) Upsert(entity *road.Entity) {
	if s == nil || entity == nil || entity.ID == 0 {
		return
	}

	s.mu.Lock()
	//1.- Store a value copy so the caller may keep mutating its own pointer.
	s.states[entity.ID] = *entity
	delete(s.removed, entity.ID)
	s.dirty[entity.ID] = struct{}{}
	s.mu.Unlock()
}

// Delete forgets the entity and marks its identifier for removal in the diff.
func (s *EntityStore) Delete(id uint64) {
	if s == nil || id == 0 {
		return
	}

	s.mu.Lock()
	//1.- Only identifiers the store knew about are reported as removed.
	_, known := s.states[id]
	delete(s.states, id)
	delete(s.dirty, id)
	if known {
		s.removed[id] = struct{}{}
	}
	s.mu.Unlock()
}

// Get returns a copy of the stored entity.
func (s *EntityStore) Get(id uint64) (road.Entity, bool) {
	if s == nil {
		return road.Entity{}, false
	}
	s.mu.RLock()
	entity, ok := s.states[id]
	s.mu.RUnlock()
	return entity, ok
}

// Len reports the number of live entities.
func (s *EntityStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// ConsumeDiff collects and clears the pending updates and removals.
func (s *EntityStore) ConsumeDiff() EntityDiff {
	if s == nil {
		return EntityDiff{}
	}

	s.mu.Lock()
	//1.- Copy the dirty entities and removed identifiers under lock.
	updated := make([]road.Entity, 0, len(s.dirty))
	for id := range s.dirty {
		if entity, ok := s.states[id]; ok {
			updated = append(updated, entity)
		}
	}
	removed := make([]uint64, 0, len(s.removed))
	for id := range s.removed {
		removed = append(removed, id)
	}

	//2.- Reset the trackers before releasing the lock.
	s.dirty = make(map[uint64]struct{})
	s.removed = make(map[uint64]struct{})
	s.mu.Unlock()

	//3.- Order by identifier so consumers see a stable sequence.
	sort.Slice(updated, func(i, j int) bool { return updated[i].ID < updated[j].ID })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
	return EntityDiff{Updated: updated, Removed: removed}
}

// Snapshot returns every live entity ordered by identifier.
func (s *EntityStore) Snapshot() []road.Entity {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	snapshot := make([]road.Entity, 0, len(s.states))
	for _, entity := range s.states {
		snapshot = append(snapshot, entity)
	}
	s.mu.RUnlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}

// Reset drops every entity and pending diff.
func (s *EntityStore) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.states = make(map[uint64]road.Entity)
	s.dirty = make(map[uint64]struct{})
	s.removed = make(map[uint64]struct{})
	s.mu.Unlock()
}
