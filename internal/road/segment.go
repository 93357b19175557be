package road

import "math"

// Layout fixes the longitudinal grid the segments are laid out on.
type Layout struct {
	SegmentLength   float64
	RoadStartOffset float64
}

// IndexAt returns the segment index containing world z. Both the window and
// the collision detector resolve indices through this function.
func (l Layout) IndexAt(z float64) int {
	if l.SegmentLength <= 0 {
		return 0
	}
	return int(math.Floor((l.RoadStartOffset - z) / l.SegmentLength))
}

// Bounds returns the [startZ, endZ) interval of index. startZ is the more
// negative edge since the road extends towards -z.
func (l Layout) Bounds(index int) (startZ, endZ float64) {
	startZ = l.RoadStartOffset - float64(index+1)*l.SegmentLength
	endZ = l.RoadStartOffset - float64(index)*l.SegmentLength
	return startZ, endZ
}

// Segment is one procedurally generated stretch of road.
type Segment struct {
	Index            int
	StartZ           float64
	EndZ             float64
	MidZ             float64
	IsIntersection   bool
	Visuals          []*Entity
	Obstacles        []*Entity
	Barriers         []*Entity
	TrafficCars      []*Entity
	TrafficActivated bool
}

// Collidables returns the obstacles, barriers and traffic cars of the segment
// in that order.
func (s *Segment) Collidables() []*Entity {
	if s == nil {
		return nil
	}
	out := make([]*Entity, 0, len(s.Obstacles)+len(s.Barriers)+len(s.TrafficCars))
	out = append(out, s.Obstacles...)
	out = append(out, s.Barriers...)
	out = append(out, s.TrafficCars...)
	return out
}

// Entities returns every entity the segment owns.
func (s *Segment) Entities() []*Entity {
	if s == nil {
		return nil
	}
	out := make([]*Entity, 0, len(s.Visuals)+len(s.Obstacles)+len(s.Barriers)+len(s.TrafficCars))
	out = append(out, s.Visuals...)
	return append(out, s.Collidables()...)
}

// Contains reports whether z falls inside [StartZ, EndZ).
func (s *Segment) Contains(z float64) bool {
	return s != nil && z >= s.StartZ && z < s.EndZ
}
