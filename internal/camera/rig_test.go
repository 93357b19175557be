package camera

import (
	"math"
	"testing"

	"endlessdrive/server/internal/geom"
)

func TestFollowConvergesBehindCar(t *testing.T) {
	rig := NewRig()
	rig.SetMode(ModeFollow)
	cam := &Recorder{}
	car := geom.Vec3{Z: -100}

	for i := 0; i < 400; i++ {
		rig.Follow(cam, car, 0)
	}
	want := geom.Vec3{Y: 3, Z: -92}
	if cam.Pos.Sub(want).Length() > 1e-6 {
		t.Fatalf("camera settled at %+v want %+v", cam.Pos, want)
	}
	if cam.Target.Sub(car).Length() > 1e-6 {
		t.Fatalf("look target settled at %+v want %+v", cam.Target, car)
	}
}

func TestFollowRotatesOffsetWithHeading(t *testing.T) {
	rig := NewRig()
	rig.SetMode(ModeFollow)
	cam := &Recorder{}
	for i := 0; i < 400; i++ {
		rig.Follow(cam, geom.Vec3{}, math.Pi/2)
	}
	//1.- Facing -x the trailing camera sits on +x.
	if math.Abs(cam.Pos.X-8) > 1e-6 || math.Abs(cam.Pos.Z) > 1e-6 {
		t.Fatalf("unexpected camera position %+v", cam.Pos)
	}
}

func TestMenuModeSmoothsSlowly(t *testing.T) {
	rig := NewRig()
	if rig.Mode() != ModeMenu {
		t.Fatalf("expected menu mode by default")
	}
	cam := &Recorder{}
	rig.Follow(cam, geom.Vec3{}, 0)
	want := geom.Vec3{X: 3.5, Y: 3.2, Z: -8}.Scale(0.06)
	if cam.Pos.Sub(want).Length() > 1e-9 {
		t.Fatalf("first menu step = %+v want %+v", cam.Pos, want)
	}
	if math.Abs(rig.Target().Y-0.1) > 1e-9 {
		t.Fatalf("menu look target should lift towards the roof, got %+v", rig.Target())
	}
	rig.Follow(nil, geom.Vec3{}, 0)
}
