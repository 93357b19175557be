package collision

import (
	"endlessdrive/server/internal/geom"
	"endlessdrive/server/internal/road"
)

// Lookup resolves live segments by index.
type Lookup interface {
	Segment(index int) (*road.Segment, bool)
}

// Hit describes the first collidable the player overlapped.
type Hit struct {
	Segment  int         `json:"segment"`
	EntityID uint64      `json:"entity_id"`
	Kind     road.Kind   `json:"kind"`
	Position geom.Vec3   `json:"position"`
	Extent   geom.Extent `json:"extent"`
}

// Detector tests the player box against the segments around it.
type Detector struct {
	Layout road.Layout
	Player geom.Extent
}

// NewDetector builds a detector sharing the window's index grid.
func NewDetector(layout road.Layout, player geom.Extent) Detector {
	return Detector{Layout: layout, Player: player}
}

// Check reports the first overlapping collidable in the current segment and
// its two neighbours. Obstacles are checked before barriers and traffic cars.
func (d Detector) Check(pos geom.Vec3, lookup Lookup) (Hit, bool) {
	if lookup == nil {
		return Hit{}, false
	}
	current := d.Layout.IndexAt(pos.Z)
	for _, idx := range [...]int{current - 1, current, current + 1} {
		seg, ok := lookup.Segment(idx)
		if !ok || seg == nil {
			continue
		}
		for _, entity := range seg.Collidables() {
			if geom.Overlaps(pos, d.Player, entity.Position, entity.Extent) {
				return Hit{
					Segment:  seg.Index,
					EntityID: entity.ID,
					Kind:     entity.Kind,
					Position: entity.Position,
					Extent:   entity.Extent,
				}, true
			}
		}
	}
	return Hit{}, false
}
