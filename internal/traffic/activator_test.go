package traffic

import (
	"math"
	"testing"

	"endlessdrive/server/internal/gameplay"
	"endlessdrive/server/internal/geom"
	"endlessdrive/server/internal/road"
)

// scriptedSource replays fixed draws, cycling when exhausted.
type scriptedSource struct {
	values []float64
	next   int
}

func (s *scriptedSource) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

type recordingSink struct {
	added []*road.Entity
}

func (s *recordingSink) Add(e *road.Entity) { s.added = append(s.added, e) }
func (s *recordingSink) Remove(*road.Entity) {}

func intersection(index int, midZ float64) *road.Segment {
	return &road.Segment{Index: index, StartZ: midZ - 40, EndZ: midZ + 40, MidZ: midZ, IsIntersection: true}
}

func TestLeadDistanceClamps(t *testing.T) {
	activator := NewActivator(gameplay.DefaultTrafficTuning(), 18, nil, nil, nil, nil)
	tests := []struct {
		speed float64
		want  float64
	}{
		{0.1, 50.4},
		{10, 90},
		{30, 140},
		{90, 140},
	}
	for _, tc := range tests {
		if got := activator.LeadDistance(tc.speed); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("LeadDistance(%v) = %v want %v", tc.speed, got, tc.want)
		}
	}
}

func TestActivateSkipsSegmentsOutsideLead(t *testing.T) {
	activator := NewActivator(gameplay.DefaultTrafficTuning(), 18, road.NewSource(1), nil, nil, nil)
	behind := intersection(3, -250)
	far := intersection(5, -500)
	plain := &road.Segment{Index: 4, MidZ: -330}

	//1.- Player at z=-290: the first intersection is behind, the second beyond the lead.
	out := activator.Activate([]*road.Segment{behind, plain, far}, geom.Vec3{Z: -290}, 10)
	if len(out) != 0 {
		t.Fatalf("expected no activations, got %+v", out)
	}
	if behind.TrafficActivated || far.TrafficActivated || plain.TrafficActivated {
		t.Fatalf("gates must stay closed outside the lead window")
	}
}

func TestActivateSetsGateEvenWhenSkipped(t *testing.T) {
	//1.- A first draw of zero lands under the skip chance.
	activator := NewActivator(gameplay.DefaultTrafficTuning(), 18, &scriptedSource{values: []float64{0}}, nil, nil, nil)
	seg := intersection(3, -320)
	out := activator.Activate([]*road.Segment{seg}, geom.Vec3{Z: -280}, 10)
	if len(out) != 1 || !out[0].Skipped || len(out[0].Cars) != 0 {
		t.Fatalf("expected a skipped activation, got %+v", out)
	}
	if !seg.TrafficActivated {
		t.Fatalf("expected the gate to close after a skipped roll")
	}
	if again := activator.Activate([]*road.Segment{seg}, geom.Vec3{Z: -285}, 10); len(again) != 0 {
		t.Fatalf("segment re-evaluated after activation: %+v", again)
	}
}

func TestActivateSpawnsTimedCars(t *testing.T) {
	tuning := gameplay.DefaultTrafficTuning()
	sink := &recordingSink{}
	roster := NewRoster(nil)
	const roadWidth = 18.0

	for seed := uint64(0); seed < 200; seed++ {
		activator := NewActivator(tuning, roadWidth, road.NewSource(seed), &road.IDs{}, sink, roster)
		seg := intersection(3, -320)
		speed := 20.0
		out := activator.Activate([]*road.Segment{seg}, geom.Vec3{Z: -260}, speed)
		if len(out) != 1 {
			t.Fatalf("seed %d: expected one activation", seed)
		}
		if want := 60.0 / speed; math.Abs(out[0].Eta-want) > 1e-9 {
			t.Fatalf("seed %d: eta = %v want %v", seed, out[0].Eta, want)
		}
		if len(seg.TrafficCars) > tuning.MaxCars {
			t.Fatalf("seed %d: %d cars exceeds the cap", seed, len(seg.TrafficCars))
		}
		boost := math.Min(1.6, speed*0.08)
		for _, car := range seg.TrafficCars {
			runway := math.Abs(car.Position.X)
			if runway < 12-1e-9 || runway > roadWidth*4+40+1e-9 {
				t.Fatalf("seed %d: runway %.2f outside [12, 112]", seed, runway)
			}
			//1.- Cars start on the far side of their direction of travel.
			if math.Signbit(car.Position.X) == math.Signbit(car.Speed) {
				t.Fatalf("seed %d: car at x=%.2f drives away with speed %.2f", seed, car.Position.X, car.Speed)
			}
			magnitude := math.Abs(car.Speed)
			if magnitude < 5.2+boost-1e-9 || magnitude > 6.5+boost+1e-9 {
				t.Fatalf("seed %d: speed %.2f outside band", seed, magnitude)
			}
			if math.Abs(car.Position.Z-seg.MidZ) > 4 {
				t.Fatalf("seed %d: lane offset %.2f exceeds 4", seed, car.Position.Z-seg.MidZ)
			}
			if car.Extent.Width != 1.6 || car.Extent.Depth != 0.9 {
				t.Fatalf("seed %d: unexpected extent %+v", seed, car.Extent)
			}
			if _, ok := tuning.PaletteByID(car.Palette); !ok {
				t.Fatalf("seed %d: unknown palette %q", seed, car.Palette)
			}
		}
	}
	if roster.Len() != len(sink.added) {
		t.Fatalf("roster holds %d cars but the sink saw %d", roster.Len(), len(sink.added))
	}
	if roster.Len() == 0 {
		t.Fatalf("expected some traffic across 200 seeds")
	}
}

func TestActivateDefaultEtaWhenStationary(t *testing.T) {
	activator := NewActivator(gameplay.DefaultTrafficTuning(), 18, road.NewSource(4), nil, nil, nil)
	seg := intersection(3, -320)
	out := activator.Activate([]*road.Segment{seg}, geom.Vec3{Z: -300}, 0)
	if len(out) != 1 || out[0].Eta != 2 {
		t.Fatalf("expected default eta of 2, got %+v", out)
	}
}

func TestActivateAppliesHeadlights(t *testing.T) {
	//1.- Draw sequence: no skip, one car, then mid-range values for the rest.
	src := &scriptedSource{values: []float64{0.9, 0.0, 0.5}}
	activator := NewActivator(gameplay.DefaultTrafficTuning(), 18, src, nil, nil, nil)
	activator.SetHeadlights(true)
	seg := intersection(3, -320)
	activator.Activate([]*road.Segment{seg}, geom.Vec3{Z: -300}, 10)
	if len(seg.TrafficCars) != 1 || !seg.TrafficCars[0].Headlight {
		t.Fatalf("expected one lit car, got %+v", seg.TrafficCars)
	}
}

func TestRosterAdvanceAndRelease(t *testing.T) {
	moved := 0
	roster := NewRoster(func(*road.Entity) { moved++ })
	a := &road.Entity{ID: 1, Kind: road.KindTrafficCar, Speed: 6}
	b := &road.Entity{ID: 2, Kind: road.KindTrafficCar, Speed: -5, Position: geom.Vec3{X: 40}}
	roster.Register(a, b)

	roster.Advance(0.5)
	if a.Position.X != 3 || b.Position.X != 37.5 {
		t.Fatalf("unexpected positions a=%.2f b=%.2f", a.Position.X, b.Position.X)
	}
	if moved != 2 {
		t.Fatalf("move callback fired %d times want 2", moved)
	}

	roster.Release(&road.Segment{TrafficCars: []*road.Entity{a}})
	if roster.Len() != 1 || roster.Cars()[0] != b {
		t.Fatalf("expected only b to remain, got %d cars", roster.Len())
	}

	roster.SetHeadlights(true)
	if !b.Headlight {
		t.Fatalf("expected headlights on")
	}
	roster.Clear()
	if roster.Len() != 0 {
		t.Fatalf("expected empty roster after clear")
	}
}
