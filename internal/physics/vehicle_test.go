package physics

import (
	"math"
	"math/rand/v2"
	"testing"

	"endlessdrive/server/internal/gameplay"
	"endlessdrive/server/internal/geom"
	"endlessdrive/server/internal/input"
)

const fixedDelta = 1.0 / 60

func manualVehicle() *Vehicle {
	tuning := gameplay.DefaultVehicleTuning()
	v := NewVehicle(tuning, geom.Vec3{Z: -24})
	v.AutoDrive = false
	return v
}

func TestAdvanceAcceleratesWhileForwardHeld(t *testing.T) {
	v := manualVehicle()
	Advance(v, input.Flags{Forward: true}, fixedDelta)
	want := 22.0 * fixedDelta
	if math.Abs(v.State.Velocity-want) > 1e-12 {
		t.Fatalf("velocity = %.6f want %.6f", v.State.Velocity, want)
	}
	if v.Position.Z >= -24 {
		t.Fatalf("expected the car to travel towards -z, got %.3f", v.Position.Z)
	}
}

func TestAdvanceAutopilotAcceleratesWithoutInput(t *testing.T) {
	v := manualVehicle()
	v.AutoDrive = true
	Advance(v, input.Flags{Backward: true}, fixedDelta)
	if v.State.Velocity <= 0 {
		t.Fatalf("expected autopilot throttle to win over the brake, got %.3f", v.State.Velocity)
	}
}

func TestAdvanceFrictionNeverCrossesZero(t *testing.T) {
	v := manualVehicle()
	v.State.Velocity = 0.05
	Advance(v, input.Flags{}, fixedDelta)
	if v.State.Velocity != 0 {
		t.Fatalf("expected friction to snap to zero, got %.6f", v.State.Velocity)
	}

	v.State.Velocity = -0.05
	Advance(v, input.Flags{}, fixedDelta)
	if v.State.Velocity != 0 {
		t.Fatalf("expected friction to snap reverse velocity to zero, got %.6f", v.State.Velocity)
	}

	v.State.Velocity = 10
	Advance(v, input.Flags{}, fixedDelta)
	if want := 10 - 8*fixedDelta; math.Abs(v.State.Velocity-want) > 1e-12 {
		t.Fatalf("velocity = %.6f want %.6f", v.State.Velocity, want)
	}
}

func TestAdvanceHoldsVelocityEnvelope(t *testing.T) {
	//1.- Drive random inputs and multipliers for many steps and verify the bounds after each.
	rng := rand.New(rand.NewPCG(7, 11))
	v := manualVehicle()
	for step := 0; step < 5000; step++ {
		v.State.SpeedMultiplier = 1 + rng.Float64()*2
		flags := input.Flags{
			Forward:  rng.IntN(2) == 0,
			Backward: rng.IntN(2) == 0,
			Left:     rng.IntN(3) == 0,
			Right:    rng.IntN(3) == 0,
		}
		Advance(v, flags, fixedDelta)
		lo, hi := v.VelocityBounds()
		if v.State.Velocity < lo-1e-9 || v.State.Velocity > hi+1e-9 {
			t.Fatalf("step %d: velocity %.4f outside [%.4f, %.4f]", step, v.State.Velocity, lo, hi)
		}
		if math.Abs(v.Position.X) > v.Tuning.LaneHalfWidth {
			t.Fatalf("step %d: x=%.4f escaped the lane", step, v.Position.X)
		}
	}
}

func TestAdvanceReverseCappedAtFortyPercent(t *testing.T) {
	v := manualVehicle()
	for i := 0; i < 600; i++ {
		Advance(v, input.Flags{Backward: true}, fixedDelta)
	}
	if math.Abs(v.State.Velocity-(-12)) > 1e-9 {
		t.Fatalf("reverse velocity = %.4f want -12", v.State.Velocity)
	}
}

func TestAdvanceSteerHoldResetsOnRelease(t *testing.T) {
	v := manualVehicle()
	v.State.Velocity = 20
	for i := 0; i < 30; i++ {
		Advance(v, input.Flags{Forward: true, Left: true}, fixedDelta)
	}
	if v.State.SteerHold <= 0 {
		t.Fatalf("expected steer hold to accumulate")
	}
	Advance(v, input.Flags{Forward: true}, fixedDelta)
	if v.State.SteerHold != 0 {
		t.Fatalf("steer hold = %.4f want 0 after release", v.State.SteerHold)
	}
}

func TestAdvanceDoesNotTurnBelowMinimumSpeed(t *testing.T) {
	v := manualVehicle()
	v.State.Velocity = 1
	Advance(v, input.Flags{Left: true}, fixedDelta)
	if v.State.Heading != 0 {
		t.Fatalf("heading changed at crawl speed: %.6f", v.State.Heading)
	}

	//1.- Zero velocity with steering held must be safe as well.
	v.State.Velocity = 0
	Advance(v, input.Flags{Right: true}, fixedDelta)
	if v.State.Heading != 0 || math.IsNaN(v.Position.X) {
		t.Fatalf("unexpected state %+v at rest", v.State)
	}
}

func TestAdvanceSteeringReversesWhenBackingUp(t *testing.T) {
	forward := manualVehicle()
	forward.State.Velocity = 10
	Advance(forward, input.Flags{Left: true}, fixedDelta)

	reverse := manualVehicle()
	reverse.State.Velocity = -10
	Advance(reverse, input.Flags{Left: true}, fixedDelta)

	if forward.State.Heading <= 0 || reverse.State.Heading >= 0 {
		t.Fatalf("expected mirrored headings, got forward=%.4f reverse=%.4f", forward.State.Heading, reverse.State.Heading)
	}
}

func TestAdvanceClampsLateralPosition(t *testing.T) {
	v := manualVehicle()
	v.Position.X = 8.99
	v.State.Heading = math.Pi / 2
	v.State.Velocity = -12
	Advance(v, input.Flags{Backward: true}, fixedDelta)
	if v.Position.X != 9 {
		t.Fatalf("x = %.4f want clamp at 9", v.Position.X)
	}
}

func TestAdvanceSteerPivotIsBounded(t *testing.T) {
	v := manualVehicle()
	v.State.Velocity = 30
	for i := 0; i < 600; i++ {
		Advance(v, input.Flags{Forward: true, Right: true}, fixedDelta)
	}
	if v.Visual.SteerPivot < -0.5 || v.Visual.SteerPivot >= 0 {
		t.Fatalf("unexpected steer pivot %.4f", v.Visual.SteerPivot)
	}
	if v.Visual.WheelSpin <= 0 {
		t.Fatalf("expected wheels to spin while moving")
	}
}

func TestStopAndReset(t *testing.T) {
	v := manualVehicle()
	v.State = State{Velocity: 12, Heading: 0.4, SteerHold: 1, SpeedMultiplier: 2}
	v.Stop()
	if v.State.Velocity != 0 || v.State.Heading != 0 || v.State.SpeedMultiplier != 1 {
		t.Fatalf("unexpected state after stop %+v", v.State)
	}
	v.Reset(geom.Vec3{Z: -24})
	if v.Position != (geom.Vec3{Z: -24}) {
		t.Fatalf("unexpected position after reset %+v", v.Position)
	}
}

func TestAdvanceOneSecondOfThrottleReachesAccel(t *testing.T) {
	//1.- Sixty fixed steps of throttle from rest add exactly accel*1s of speed.
	v := manualVehicle()
	for i := 0; i < 60; i++ {
		Advance(v, input.Flags{Forward: true}, fixedDelta)
		if math.Abs(v.Position.X) > v.Tuning.LaneHalfWidth {
			t.Fatalf("step %d: x escaped the lane", i)
		}
	}
	want := math.Min(v.Tuning.MaxSpeed*v.State.SpeedMultiplier, 22)
	if math.Abs(v.State.Velocity-want) > 1e-9 {
		t.Fatalf("velocity after one second = %.6f want %.6f", v.State.Velocity, want)
	}
	if v.State.Heading != 0 || v.Position.X != 0 {
		t.Fatalf("unexpected drift heading=%.4f x=%.4f", v.State.Heading, v.Position.X)
	}
}
