package gameplay

import (
	"encoding/json"
	"sync"

	_ "embed"
)

// VehicleTuning captures the tunable kinematics of the player car.
type VehicleTuning struct {
	MaxSpeed        float64 `json:"maxSpeed"`
	Accel           float64 `json:"accel"`
	Brake           float64 `json:"brake"`
	Friction        float64 `json:"friction"`
	TurnRate        float64 `json:"turnRate"`
	MaxTurnRate     float64 `json:"maxTurnRate"`
	TurnRamp        float64 `json:"turnRamp"`
	MinSpeedForTurn float64 `json:"minSpeedForTurn"`
	ReverseFraction float64 `json:"reverseFraction"`
	LaneHalfWidth   float64 `json:"laneHalfWidth"`
	WheelRadius     float64 `json:"wheelRadius"`
	HalfWidth       float64 `json:"halfWidth"`
	HalfLength      float64 `json:"halfLength"`
	AutoDrive       bool    `json:"autoDrive"`
}

// RoadTuning controls segment geometry, streaming margins and obstacle density.
type RoadTuning struct {
	SegmentLength         float64   `json:"segmentLength"`
	MaxAheadSegments      int       `json:"maxAheadSegments"`
	MaxBehindSegments     int       `json:"maxBehindSegments"`
	RoadWidth             float64   `json:"roadWidth"`
	RoadStartOffset       float64   `json:"roadStartOffset"`
	IntersectionSpacing   int       `json:"intersectionSpacing"`
	IntersectionChance    float64   `json:"intersectionChance"`
	ProtectedEndZ         float64   `json:"protectedEndZ"`
	ObstacleLanes         []float64 `json:"obstacleLanes"`
	ObstacleChance        float64   `json:"obstacleChance"`
	ObstacleMinSeparation float64   `json:"obstacleMinSeparation"`
	ObstacleMargin        float64   `json:"obstacleMargin"`
	TreeSpacing           float64   `json:"treeSpacing"`
	TreeOffsetX           float64   `json:"treeOffsetX"`
	DashPeriod            float64   `json:"dashPeriod"`
	BarrierThickness      float64   `json:"barrierThickness"`
	BarrierHeight         float64   `json:"barrierHeight"`
	ShoulderWidth         float64   `json:"shoulderWidth"`
}

// Palette names the livery used when a traffic car is spawned.
type Palette struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Accent string `json:"accent"`
	Trim   string `json:"trim"`
}

// TrafficTuning controls when cross traffic activates and how it is timed.
type TrafficTuning struct {
	SkipChance         float64   `json:"skipChance"`
	MaxCars            int       `json:"maxCars"`
	MinLeadDistance    float64   `json:"minLeadDistance"`
	MaxLeadDistance    float64   `json:"maxLeadDistance"`
	LeadPerSpeed       float64   `json:"leadPerSpeed"`
	LeadBase           float64   `json:"leadBase"`
	BaseSpeedMin       float64   `json:"baseSpeedMin"`
	BaseSpeedSpread    float64   `json:"baseSpeedSpread"`
	SpeedBoostPerSpeed float64   `json:"speedBoostPerSpeed"`
	MaxSpeedBoost      float64   `json:"maxSpeedBoost"`
	TimingJitter       float64   `json:"timingJitter"`
	MinEta             float64   `json:"minEta"`
	DefaultEta         float64   `json:"defaultEta"`
	MinRunway          float64   `json:"minRunway"`
	RunwayPadding      float64   `json:"runwayPadding"`
	LaneSpread         float64   `json:"laneSpread"`
	CarWidth           float64   `json:"carWidth"`
	CarLength          float64   `json:"carLength"`
	Palettes           []Palette `json:"palettes"`
}

// SessionTuning controls the frame driver and run difficulty.
type SessionTuning struct {
	FixedDelta         float64 `json:"fixedDelta"`
	MaxFrameDelta      float64 `json:"maxFrameDelta"`
	MaxSubSteps        int     `json:"maxSubSteps"`
	MaxSpeedMultiplier float64 `json:"maxSpeedMultiplier"`
	SpeedRampPerSecond float64 `json:"speedRampPerSecond"`
	StartX             float64 `json:"startX"`
	StartZ             float64 `json:"startZ"`
	DefaultPlayerName  string  `json:"defaultPlayerName"`
}

var (
	//go:embed vehicle.json
	vehiclePayload []byte
	//go:embed road.json
	roadPayload []byte
	//go:embed traffic.json
	trafficPayload []byte
	//go:embed session.json
	sessionPayload []byte
)

type tuningBundle struct {
	vehicle VehicleTuning
	road    RoadTuning
	traffic TrafficTuning
	session SessionTuning
}

var (
	tuningOnce sync.Once
	tuningData tuningBundle
	tuningErr  error
)

func loadTuning() tuningBundle {
	tuningOnce.Do(func() {
		//1.- Decode every embedded payload exactly once, keeping the first failure.
		payloads := []struct {
			raw    []byte
			target any
		}{
			{vehiclePayload, &tuningData.vehicle},
			{roadPayload, &tuningData.road},
			{trafficPayload, &tuningData.traffic},
			{sessionPayload, &tuningData.session},
		}
		for _, p := range payloads {
			if err := json.Unmarshal(p.raw, p.target); err != nil {
				tuningErr = err
				return
			}
		}
	})
	//2.- Panic when the embedded configuration is corrupt so divergence never goes unnoticed.
	if tuningErr != nil {
		panic(tuningErr)
	}
	return tuningData
}

// DefaultVehicleTuning returns a copy of the embedded player car tuning.
func DefaultVehicleTuning() VehicleTuning {
	return loadTuning().vehicle
}

// DefaultRoadTuning returns a copy of the embedded road tuning.
func DefaultRoadTuning() RoadTuning {
	road := loadTuning().road
	road.ObstacleLanes = append([]float64(nil), road.ObstacleLanes...)
	return road
}

// DefaultTrafficTuning returns a copy of the embedded traffic tuning.
func DefaultTrafficTuning() TrafficTuning {
	traffic := loadTuning().traffic
	traffic.Palettes = append([]Palette(nil), traffic.Palettes...)
	return traffic
}

// DefaultSessionTuning returns a copy of the embedded session tuning.
func DefaultSessionTuning() SessionTuning {
	return loadTuning().session
}

// PaletteByID resolves a traffic livery by identifier.
func (t TrafficTuning) PaletteByID(id string) (Palette, bool) {
	for _, palette := range t.Palettes {
		if palette.ID == id {
			return palette, true
		}
	}
	return Palette{}, false
}
