package road

import (
	"fmt"
	"sync/atomic"

	"endlessdrive/server/internal/geom"
)

// Kind tags the variant of a spawned entity.
type Kind int

const (
	KindGrass Kind = iota
	KindSurface
	KindCenterDash
	KindSideLine
	KindShoulder
	KindTree
	KindCone
	KindLowBarrier
	KindWideBarrier
	KindBarrier
	KindCrossRoad
	KindCrossDash
	KindCrossSideLine
	KindTrafficCar
)

var kindNames = [...]string{
	KindGrass:         "grass",
	KindSurface:       "surface",
	KindCenterDash:    "center_dash",
	KindSideLine:      "side_line",
	KindShoulder:      "shoulder",
	KindTree:          "tree",
	KindCone:          "cone",
	KindLowBarrier:    "low_barrier",
	KindWideBarrier:   "wide_barrier",
	KindBarrier:       "barrier",
	KindCrossRoad:     "cross_road",
	KindCrossDash:     "cross_dash",
	KindCrossSideLine: "cross_side_line",
	KindTrafficCar:    "traffic_car",
}

// String returns the snake case name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name, rejecting unknown values.
func (k *Kind) UnmarshalText(text []byte) error {
	for idx, name := range kindNames {
		if name == string(text) {
			*k = Kind(idx)
			return nil
		}
	}
	return fmt.Errorf("unknown entity kind %q", text)
}

// Collidable reports whether entities of this kind take part in collision checks.
func (k Kind) Collidable() bool {
	switch k {
	case KindCone, KindLowBarrier, KindWideBarrier, KindBarrier, KindTrafficCar:
		return true
	default:
		return false
	}
}

// Entity is the plain data handed to the scene sink. Only traffic cars move
// after spawn, and only along X.
type Entity struct {
	ID        uint64      `json:"id"`
	Kind      Kind        `json:"kind"`
	Segment   int         `json:"segment"`
	Position  geom.Vec3   `json:"position"`
	Yaw       float64     `json:"yaw"`
	Size      geom.Vec3   `json:"size"`
	Extent    geom.Extent `json:"extent"`
	Scale     float64     `json:"scale"`
	Palette   string      `json:"palette,omitempty"`
	Speed     float64     `json:"speed,omitempty"`
	Headlight bool        `json:"headlight,omitempty"`
}

// Sink receives entities as they enter and leave the world, typically a scene graph.
type Sink interface {
	Add(entity *Entity)
	Remove(entity *Entity)
}

// Discard is a Sink that ignores every entity.
type Discard struct{}

// Add implements Sink.
func (Discard) Add(*Entity) {}

// Remove implements Sink.
func (Discard) Remove(*Entity) {}

// IDs hands out process-unique entity identifiers.
type IDs struct {
	next atomic.Uint64
}

// Next returns a fresh identifier, starting at 1.
func (i *IDs) Next() uint64 {
	return i.next.Add(1)
}
