package road

import (
	"math"

	"endlessdrive/server/internal/gameplay"
	"endlessdrive/server/internal/geom"
)

// NoIntersection is the initial LastIntersectionIndex of a fresh run.
const NoIntersection = -100

// GeneratorState is the cross-segment memory of the generator.
type GeneratorState struct {
	LastIntersectionIndex int `json:"last_intersection_index"`
}

// InitialGeneratorState returns the state of a fresh run.
func InitialGeneratorState() GeneratorState {
	return GeneratorState{LastIntersectionIndex: NoIntersection}
}

// Generator builds segment content from tuning and a random source.
type Generator struct {
	tuning gameplay.RoadTuning
	layout Layout
	src    Source
	ids    *IDs
}

// NewGenerator wires a generator. A nil ids allocator gets a private one.
func NewGenerator(tuning gameplay.RoadTuning, src Source, ids *IDs) *Generator {
	if ids == nil {
		ids = &IDs{}
	}
	if src == nil {
		src = NewSource(1)
	}
	return &Generator{
		tuning: tuning,
		layout: Layout{SegmentLength: tuning.SegmentLength, RoadStartOffset: tuning.RoadStartOffset},
		src:    src,
		ids:    ids,
	}
}

// Layout exposes the index grid used by the generator.
func (g *Generator) Layout() Layout { return g.layout }

// Tuning returns the road tuning in use.
func (g *Generator) Tuning() gameplay.RoadTuning { return g.tuning }

// IDs returns the allocator shared with other spawners.
func (g *Generator) IDs() *IDs { return g.ids }

// Generate builds the content of segment index. The returned state carries
// the updated intersection memory and must be passed to the next call.
func (g *Generator) Generate(state GeneratorState, index int) (*Segment, GeneratorState) {
	startZ, endZ := g.layout.Bounds(index)
	seg := &Segment{
		Index:  index,
		StartZ: startZ,
		EndZ:   endZ,
		MidZ:   (startZ + endZ) / 2,
	}

	//1.- Intersections need a minimum index and spacing before the chance roll is even drawn.
	canIntersect := index > 2 && index-state.LastIntersectionIndex >= g.tuning.IntersectionSpacing
	if canIntersect && Chance(g.src, g.tuning.IntersectionChance) {
		seg.IsIntersection = true
		state.LastIntersectionIndex = index
	}

	//2.- Lay down the static surface, then obstacles, barriers, trees and the optional cross road.
	g.spawnRoadStrip(seg)
	g.spawnObstacles(seg)
	g.spawnBarriers(seg)
	g.spawnTrees(seg)
	if seg.IsIntersection {
		g.spawnCrossRoad(seg)
	}
	return seg, state
}

func (g *Generator) entity(seg *Segment, kind Kind, pos, size geom.Vec3) *Entity {
	return &Entity{
		ID:       g.ids.Next(),
		Kind:     kind,
		Segment:  seg.Index,
		Position: pos,
		Size:     size,
		Scale:    1,
	}
}

func (g *Generator) dashPeriod() float64 {
	if g.tuning.DashPeriod <= 0 {
		return 6
	}
	return g.tuning.DashPeriod
}

func (g *Generator) spawnRoadStrip(seg *Segment) {
	width := g.tuning.RoadWidth
	//1.- Extend the strip slightly so neighbouring segments overlap without seams.
	length := math.Abs(seg.EndZ-seg.StartZ) + 0.2

	seg.Visuals = append(seg.Visuals,
		g.entity(seg, KindGrass, geom.Vec3{Y: -0.02, Z: seg.MidZ}, geom.Vec3{X: width + 120, Z: length}),
		g.entity(seg, KindSurface, geom.Vec3{Y: 0.001, Z: seg.MidZ}, geom.Vec3{X: width, Z: length}),
	)

	//2.- Centre dashes start three units in and repeat every dash period.
	for z := seg.StartZ + 3; z <= seg.EndZ; z += g.dashPeriod() {
		seg.Visuals = append(seg.Visuals, g.entity(seg, KindCenterDash, geom.Vec3{Y: 0.02, Z: z}, geom.Vec3{X: 0.25, Z: 2.4}))
	}

	sideOffset := width/2 - 0.7
	for _, x := range []float64{-sideOffset, sideOffset} {
		seg.Visuals = append(seg.Visuals, g.entity(seg, KindSideLine, geom.Vec3{X: x, Y: 0.02, Z: seg.MidZ}, geom.Vec3{X: 0.15, Z: length}))
	}

	shoulder := g.tuning.ShoulderWidth
	for _, x := range []float64{-width/2 - shoulder/2, width/2 + shoulder/2} {
		seg.Visuals = append(seg.Visuals, g.entity(seg, KindShoulder, geom.Vec3{X: x, Y: 0.0005, Z: seg.MidZ}, geom.Vec3{X: shoulder, Z: length}))
	}
}

func (g *Generator) spawnObstacles(seg *Segment) {
	//1.- Keep the starting area clear.
	if seg.EndZ > g.tuning.ProtectedEndZ || len(g.tuning.ObstacleLanes) == 0 {
		return
	}
	minZ := seg.StartZ + g.tuning.ObstacleMargin
	z := seg.EndZ - g.tuning.ObstacleMargin

	//2.- Walk towards -z, rolling for an obstacle at each stop and skipping ahead after a spawn.
	for z > minZ {
		if Chance(g.src, g.tuning.ObstacleChance) {
			lane := g.tuning.ObstacleLanes[PickIndex(g.src, len(g.tuning.ObstacleLanes))]
			x := lane + Jitter(g.src, 0.6)
			spec := PickObstacle(g.src)
			obstacle := g.entity(seg, spec.Kind, geom.Vec3{X: x, Z: z}, geom.Vec3{X: spec.Width, Y: spec.Height, Z: spec.Depth})
			obstacle.Extent = geom.Extent{Width: spec.Width / 2, Depth: spec.Depth / 2}
			obstacle.Yaw = Jitter(g.src, 0.4)
			seg.Obstacles = append(seg.Obstacles, obstacle)
			z -= g.tuning.ObstacleMinSeparation
		}
		z -= Between(g.src, 4, 4)
	}
}

func (g *Generator) spawnBarriers(seg *Segment) {
	thickness := g.tuning.BarrierThickness
	offset := g.tuning.RoadWidth/2 + thickness*0.6
	length := math.Abs(seg.EndZ - seg.StartZ)

	barrier := func(x, z, depth float64) *Entity {
		b := g.entity(seg, KindBarrier, geom.Vec3{X: x, Z: z}, geom.Vec3{X: thickness, Y: g.tuning.BarrierHeight, Z: depth})
		b.Extent = geom.Extent{Width: thickness / 2, Depth: depth / 2}
		return b
	}

	for _, x := range []float64{-offset, offset} {
		if !seg.IsIntersection {
			seg.Barriers = append(seg.Barriers, barrier(x, seg.MidZ, length))
			continue
		}
		//1.- Split each wall around a gap wide enough for crossing traffic.
		gap := g.tuning.RoadWidth + 10
		depthEach := (length - gap) / 2
		seg.Barriers = append(seg.Barriers,
			barrier(x, seg.MidZ-gap/2-depthEach/2, depthEach),
			barrier(x, seg.MidZ+gap/2+depthEach/2, depthEach),
		)
	}
}

func (g *Generator) spawnTrees(seg *Segment) {
	if g.tuning.TreeSpacing <= 0 {
		return
	}
	offsetX := g.tuning.TreeOffsetX
	for z := seg.StartZ; z <= seg.EndZ; z += g.tuning.TreeSpacing {
		jitter := Jitter(g.src, 3)

		left := g.entity(seg, KindTree, geom.Vec3{X: -offsetX + jitter, Z: z + jitter}, geom.Vec3{Y: Between(g.src, 2.3, 0.7)})
		left.Scale = Between(g.src, 0.85, 0.35)

		right := g.entity(seg, KindTree, geom.Vec3{X: offsetX + jitter, Z: z - jitter}, geom.Vec3{Y: Between(g.src, 2.3, 0.7)})
		right.Scale = Between(g.src, 0.85, 0.35)

		seg.Visuals = append(seg.Visuals, left, right)
	}
}

func (g *Generator) spawnCrossRoad(seg *Segment) {
	width := g.tuning.RoadWidth
	length := width * 8

	seg.Visuals = append(seg.Visuals, g.entity(seg, KindCrossRoad, geom.Vec3{Y: 0.01, Z: seg.MidZ}, geom.Vec3{X: length, Z: width}))
	for x := -length/2 + 3; x <= length/2; x += g.dashPeriod() {
		seg.Visuals = append(seg.Visuals, g.entity(seg, KindCrossDash, geom.Vec3{X: x, Y: 0.015, Z: seg.MidZ}, geom.Vec3{X: 2.4, Z: 0.25}))
	}
	sideOffset := width/2 - 0.7
	for _, dz := range []float64{-sideOffset, sideOffset} {
		seg.Visuals = append(seg.Visuals, g.entity(seg, KindCrossSideLine, geom.Vec3{Y: 0.012, Z: seg.MidZ + dz}, geom.Vec3{X: length, Z: 0.15}))
	}
}
