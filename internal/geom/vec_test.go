package geom

import (
	"math"
	"testing"
)

func TestOverlapsUsesStrictInequality(t *testing.T) {
	player := Extent{Width: 0.9, Depth: 1.6}
	cone := Extent{Width: 0.35, Depth: 0.35}

	tests := []struct {
		name string
		b    Vec3
		want bool
	}{
		{name: "same centre", b: Vec3{}, want: true},
		{name: "inside on x", b: Vec3{X: 1}, want: true},
		{name: "outside on x", b: Vec3{X: 2}, want: false},
		{name: "touching edge", b: Vec3{X: 1.25}, want: false},
		{name: "outside on z", b: Vec3{Z: 2}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(Vec3{}, player, tc.b, cone); got != tc.want {
				t.Fatalf("Overlaps() = %v want %v", got, tc.want)
			}
		})
	}
}

func TestRotateYMatchesHeadingConvention(t *testing.T) {
	//1.- A quarter turn left maps the forward offset (0,0,8) onto (8,0,0).
	rotated := Vec3{Z: 8}.RotateY(math.Pi / 2)
	if math.Abs(rotated.X-8) > 1e-9 || math.Abs(rotated.Z) > 1e-9 {
		t.Fatalf("unexpected rotation %+v", rotated)
	}
}

func TestClampAndLerp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Fatalf("clamp did not bound the value")
	}
	if Lerp(0, 10, 0.25) != 2.5 {
		t.Fatalf("unexpected lerp result")
	}
	moved := Vec3{}.Lerp(Vec3{X: 10, Y: 20, Z: -10}, 0.5)
	if moved != (Vec3{X: 5, Y: 10, Z: -5}) {
		t.Fatalf("unexpected vector lerp %+v", moved)
	}
}
