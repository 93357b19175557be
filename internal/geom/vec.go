package geom

import "math"

// Vec3 is a lightweight vector helper shared by the simulation packages.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns the component-wise sum.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Sub returns the component-wise difference.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Scale multiplies every component by s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

// Lerp moves v towards target by factor t.
func (v Vec3) Lerp(target Vec3, t float64) Vec3 {
	return Vec3{
		X: Lerp(v.X, target.X, t),
		Y: Lerp(v.Y, target.Y, t),
		Z: Lerp(v.Z, target.Z, t),
	}
}

// RotateY rotates the vector around the vertical axis by angle radians.
func (v Vec3) RotateY(angle float64) Vec3 {
	sin, cos := math.Sincos(angle)
	return Vec3{
		X: v.X*cos + v.Z*sin,
		Y: v.Y,
		Z: -v.X*sin + v.Z*cos,
	}
}

// Length returns the Euclidean magnitude.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Extent stores half sizes on the ground plane used by the box tests.
type Extent struct {
	Width float64 `json:"width"`
	Depth float64 `json:"depth"`
}

// Overlaps reports whether two ground-plane boxes centred at a and b intersect.
// Touching edges do not count as an overlap.
func Overlaps(a Vec3, ea Extent, b Vec3, eb Extent) bool {
	return math.Abs(a.X-b.X) < ea.Width+eb.Width && math.Abs(a.Z-b.Z) < ea.Depth+eb.Depth
}

// Clamp bounds value to [lo, hi].
func Clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// Lerp linearly interpolates between a and b.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
