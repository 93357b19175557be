package physics

import (
	"math"

	"endlessdrive/server/internal/gameplay"
	"endlessdrive/server/internal/geom"
	"endlessdrive/server/internal/input"
)

// State captures the mutable kinematic values of the player car.
type State struct {
	Velocity        float64 `json:"velocity"`
	Heading         float64 `json:"heading"`
	SteerHold       float64 `json:"steer_hold"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
}

// Visual stores the cosmetic outputs of the last integration step.
type Visual struct {
	WheelSpin  float64 `json:"wheel_spin"`
	SteerPivot float64 `json:"steer_pivot"`
}

// Vehicle bundles the tuning, kinematic state and world position of the player car.
type Vehicle struct {
	Tuning    gameplay.VehicleTuning
	State     State
	Position  geom.Vec3
	Visual    Visual
	AutoDrive bool
	Headlight bool
}

// NewVehicle constructs a stationary car at the supplied position.
func NewVehicle(tuning gameplay.VehicleTuning, position geom.Vec3) *Vehicle {
	return &Vehicle{
		Tuning:    tuning,
		State:     State{SpeedMultiplier: 1},
		Position:  position,
		AutoDrive: tuning.AutoDrive,
	}
}

// Reset parks the car at position with zeroed kinematics and a unit multiplier.
func (v *Vehicle) Reset(position geom.Vec3) {
	if v == nil {
		return
	}
	v.State = State{SpeedMultiplier: 1}
	v.Visual = Visual{}
	v.Position = position
}

// Stop zeroes velocity and heading after a crash.
func (v *Vehicle) Stop() {
	if v == nil {
		return
	}
	v.State.Velocity = 0
	v.State.Heading = 0
	v.State.SteerHold = 0
	v.State.SpeedMultiplier = 1
}

// Extent returns the collision half sizes of the car.
func (v *Vehicle) Extent() geom.Extent {
	return geom.Extent{Width: v.Tuning.HalfWidth, Depth: v.Tuning.HalfLength}
}

// Forward returns the unit direction the car faces on the ground plane.
func (v *Vehicle) Forward() geom.Vec3 {
	sin, cos := math.Sincos(v.State.Heading)
	return geom.Vec3{X: -sin, Z: -cos}
}

// VelocityBounds returns the reverse and forward limits for the current multiplier.
func (v *Vehicle) VelocityBounds() (float64, float64) {
	maxScaled := v.Tuning.MaxSpeed * v.multiplier()
	return -maxScaled * v.Tuning.ReverseFraction, maxScaled
}

func (v *Vehicle) multiplier() float64 {
	if v.State.SpeedMultiplier <= 0 {
		return 1
	}
	return v.State.SpeedMultiplier
}

// Advance integrates one fixed step of the car from the held input flags.
// Any finite dt is accepted; the lateral clamp is silent.
func Advance(v *Vehicle, in input.Flags, dt float64) {
	if v == nil || dt <= 0 {
		return
	}
	tuning := v.Tuning
	mult := v.multiplier()

	//1.- Throttle wins over brake; with neither held friction decays towards zero without crossing it.
	switch {
	case v.AutoDrive || in.Forward:
		v.State.Velocity += tuning.Accel * mult * dt
	case in.Backward:
		v.State.Velocity -= tuning.Brake * mult * dt
	default:
		v.State.Velocity = applyFriction(v.State.Velocity, tuning.Friction*dt)
	}

	//2.- Clamp to the asymmetric forward/reverse envelope.
	lo, hi := v.VelocityBounds()
	v.State.Velocity = geom.Clamp(v.State.Velocity, lo, hi)

	//3.- Steering scales with speed and ramps up the longer the key is held.
	speedFactor := 0.0
	if tuning.MaxSpeed > 0 {
		speedFactor = math.Min(1, math.Abs(v.State.Velocity)/tuning.MaxSpeed)
	}
	dir := in.SteerDirection()
	if dir != 0 {
		v.State.SteerHold += dt
	} else {
		v.State.SteerHold = 0
	}
	ramped := math.Min(tuning.MaxTurnRate, tuning.TurnRate+tuning.TurnRamp*v.State.SteerHold)
	if dir != 0 && tuning.MaxSpeed > 0 && speedFactor > tuning.MinSpeedForTurn/tuning.MaxSpeed {
		v.State.Heading += dir * ramped * dt * speedFactor * travelSign(v.State.Velocity)
	}

	//4.- Integrate position along the heading and keep the car between the lane walls.
	forward := v.Forward()
	v.Position.X += forward.X * v.State.Velocity * dt
	v.Position.Z += forward.Z * v.State.Velocity * dt
	v.Position.X = geom.Clamp(v.Position.X, -tuning.LaneHalfWidth, tuning.LaneHalfWidth)

	//5.- Update the cosmetic wheel outputs.
	if tuning.WheelRadius > 0 {
		v.Visual.WheelSpin += v.State.Velocity * dt / tuning.WheelRadius
	}
	v.Visual.SteerPivot = dir * math.Min(0.5, 0.12+0.16*v.State.SteerHold) * speedFactor
}

// applyFriction moves velocity towards zero by amount, snapping to zero
// instead of overshooting.
func applyFriction(velocity, amount float64) float64 {
	if velocity == 0 {
		return 0
	}
	if math.Abs(velocity) <= amount {
		return 0
	}
	if velocity > 0 {
		return velocity - amount
	}
	return velocity + amount
}

func travelSign(velocity float64) float64 {
	if velocity < 0 {
		return -1
	}
	return 1
}
