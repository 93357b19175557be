package traffic

import "endlessdrive/server/internal/road"

// MoveFunc observes a traffic car after it translated.
type MoveFunc func(*road.Entity)

// Roster is the update list of live traffic cars. Cars are owned by their
// segment; the roster only translates them each tick and forgets them when
// the segment is released.
type Roster struct {
	cars   []*road.Entity
	onMove MoveFunc
}

// NewRoster constructs an empty roster. onMove may be nil.
func NewRoster(onMove MoveFunc) *Roster {
	return &Roster{onMove: onMove}
}

// Register adds cars to the update list.
func (r *Roster) Register(cars ...*road.Entity) {
	for _, car := range cars {
		if car != nil {
			r.cars = append(r.cars, car)
		}
	}
}

// Advance translates every car along X by its signed speed.
func (r *Roster) Advance(dt float64) {
	if dt <= 0 {
		return
	}
	for _, car := range r.cars {
		car.Position.X += car.Speed * dt
		if r.onMove != nil {
			r.onMove(car)
		}
	}
}

// Release drops the cars owned by seg. It matches road.ReleaseHook.
func (r *Roster) Release(seg *road.Segment) {
	if seg == nil || len(seg.TrafficCars) == 0 {
		return
	}
	owned := make(map[uint64]struct{}, len(seg.TrafficCars))
	for _, car := range seg.TrafficCars {
		owned[car.ID] = struct{}{}
	}
	kept := r.cars[:0]
	for _, car := range r.cars {
		if _, ok := owned[car.ID]; !ok {
			kept = append(kept, car)
		}
	}
	clear(r.cars[len(kept):])
	r.cars = kept
}

// SetHeadlights toggles the headlights of every live car.
func (r *Roster) SetHeadlights(on bool) {
	for _, car := range r.cars {
		car.Headlight = on
	}
}

// Cars returns a copy of the live car list.
func (r *Roster) Cars() []*road.Entity {
	return append([]*road.Entity(nil), r.cars...)
}

// Len reports the number of live cars.
func (r *Roster) Len() int { return len(r.cars) }

// Clear forgets every car.
func (r *Roster) Clear() {
	clear(r.cars)
	r.cars = r.cars[:0]
}
