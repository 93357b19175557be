package traffic

import (
	"math"

	"endlessdrive/server/internal/gameplay"
	"endlessdrive/server/internal/geom"
	"endlessdrive/server/internal/road"
)

// Activation reports the outcome of arming one intersection.
type Activation struct {
	Segment int
	Ahead   float64
	Eta     float64
	Cars    []*road.Entity
	Skipped bool
}

// Activator spawns cross traffic at intersections as the player approaches,
// timing each car to cross near the player's arrival.
type Activator struct {
	tuning     gameplay.TrafficTuning
	roadWidth  float64
	src        road.Source
	ids        *road.IDs
	sink       road.Sink
	roster     *Roster
	headlights bool
}

// NewActivator wires an activator to the shared entity allocator, scene sink and roster.
func NewActivator(tuning gameplay.TrafficTuning, roadWidth float64, src road.Source, ids *road.IDs, sink road.Sink, roster *Roster) *Activator {
	if sink == nil {
		sink = road.Discard{}
	}
	if ids == nil {
		ids = &road.IDs{}
	}
	if roster == nil {
		roster = NewRoster(nil)
	}
	if src == nil {
		src = road.NewSource(1)
	}
	return &Activator{
		tuning:    tuning,
		roadWidth: roadWidth,
		src:       src,
		ids:       ids,
		sink:      sink,
		roster:    roster,
	}
}

// SetHeadlights controls whether newly spawned cars have their lights on.
func (a *Activator) SetHeadlights(on bool) { a.headlights = on }

// LeadDistance returns how far ahead of the player intersections are armed.
func (a *Activator) LeadDistance(speed float64) float64 {
	return geom.Clamp(speed*a.tuning.LeadPerSpeed+a.tuning.LeadBase, a.tuning.MinLeadDistance, a.tuning.MaxLeadDistance)
}

// Activate arms every not-yet-activated intersection within the lead distance
// ahead of pos. Each segment is evaluated at most once, even when the roll
// spawns no cars.
func (a *Activator) Activate(segments []*road.Segment, pos geom.Vec3, speed float64) []Activation {
	playerSpeed := math.Max(0.1, math.Abs(speed))
	lead := a.LeadDistance(playerSpeed)

	var out []Activation
	for _, seg := range segments {
		if seg == nil || !seg.IsIntersection || seg.TrafficActivated {
			continue
		}
		//1.- Positive ahead means the intersection lies in front of the player.
		ahead := pos.Z - seg.MidZ
		if ahead < 0 || ahead > lead {
			continue
		}
		eta := a.tuning.DefaultEta
		if playerSpeed > 0.1 {
			eta = ahead / playerSpeed
		}
		cars := a.spawnCars(seg, playerSpeed, eta)
		seg.TrafficCars = append(seg.TrafficCars, cars...)
		seg.TrafficActivated = true

		//2.- Cars belong to the segment for eviction and to the roster for per-tick movement.
		for _, car := range cars {
			a.sink.Add(car)
		}
		a.roster.Register(cars...)
		out = append(out, Activation{Segment: seg.Index, Ahead: ahead, Eta: eta, Cars: cars, Skipped: len(cars) == 0})
	}
	return out
}

func (a *Activator) spawnCars(seg *road.Segment, playerSpeed, playerEta float64) []*road.Entity {
	t := a.tuning
	if road.Chance(a.src, t.SkipChance) {
		return nil
	}
	count := 1 + road.PickIndex(a.src, max(1, t.MaxCars))
	crossLength := a.roadWidth * 8
	baseSpeed := road.Between(a.src, t.BaseSpeedMin, t.BaseSpeedSpread)
	carSpeed := baseSpeed + math.Min(t.MaxSpeedBoost, playerSpeed*t.SpeedBoostPerSpeed)

	cars := make([]*road.Entity, 0, count)
	for i := 0; i < count; i++ {
		dir := -1.0
		if road.Chance(a.src, 0.5) {
			dir = 1
		}
		//1.- Jitter the arrival so some cars are early and some late.
		eta := math.Max(t.MinEta, playerEta+road.Jitter(a.src, t.TimingJitter))
		runway := geom.Clamp(carSpeed*math.Max(0.6, eta+0.8), t.MinRunway, crossLength/2+t.RunwayPadding)
		startX := runway
		yaw := math.Pi / 2
		if dir > 0 {
			startX = -runway
			yaw = -math.Pi / 2
		}
		zOffset := road.Jitter(a.src, t.LaneSpread)

		car := &road.Entity{
			ID:       a.ids.Next(),
			Kind:     road.KindTrafficCar,
			Segment:  seg.Index,
			Position: geom.Vec3{X: startX, Z: seg.MidZ + zOffset},
			Yaw:      yaw,
			Size:     geom.Vec3{X: t.CarWidth, Y: 1, Z: t.CarLength},
			//2.- The car drives along X, so its long side lies on the X axis.
			Extent:    geom.Extent{Width: t.CarLength / 2, Depth: t.CarWidth / 2},
			Scale:     1,
			Speed:     dir * carSpeed,
			Headlight: a.headlights,
		}
		if len(t.Palettes) > 0 {
			car.Palette = t.Palettes[road.PickIndex(a.src, len(t.Palettes))].ID
		}
		cars = append(cars, car)
	}
	return cars
}
