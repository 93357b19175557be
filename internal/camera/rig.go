package camera

import "endlessdrive/server/internal/geom"

// Handle is the engine camera the rig steers.
type Handle interface {
	Position() geom.Vec3
	SetPosition(geom.Vec3)
	LookAt(geom.Vec3)
}

// Mode selects the framing of the rig.
type Mode int

const (
	// ModeMenu frames the car from the front quarter while the menu is open.
	ModeMenu Mode = iota
	// ModeFollow trails behind the car during a run.
	ModeFollow
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeFollow {
		return "follow"
	}
	return "menu"
}

type framing struct {
	offset     geom.Vec3
	lift       float64
	posLerp    float64
	targetLerp float64
}

var framings = map[Mode]framing{
	ModeMenu:   {offset: geom.Vec3{X: 3.5, Y: 3.2, Z: -8}, lift: 1, posLerp: 0.06, targetLerp: 0.1},
	ModeFollow: {offset: geom.Vec3{Y: 3, Z: 8}, posLerp: 0.15, targetLerp: 0.2},
}

// Rig smooths a camera towards an offset that rotates with the car heading.
type Rig struct {
	mode   Mode
	target geom.Vec3
}

// NewRig starts in menu mode.
func NewRig() *Rig {
	return &Rig{mode: ModeMenu}
}

// SetMode switches the framing.
func (r *Rig) SetMode(mode Mode) { r.mode = mode }

// Mode returns the active framing.
func (r *Rig) Mode() Mode { return r.mode }

// Target returns the smoothed look-at point.
func (r *Rig) Target() geom.Vec3 { return r.target }

// Follow moves cam one smoothing step towards the framing for a car at
// position with heading. A nil handle is ignored.
func (r *Rig) Follow(cam Handle, position geom.Vec3, heading float64) {
	if cam == nil {
		return
	}
	f := framings[r.mode]
	desired := position.Add(f.offset.RotateY(heading))
	cam.SetPosition(cam.Position().Lerp(desired, f.posLerp))
	r.target = r.target.Lerp(position.Add(geom.Vec3{Y: f.lift}), f.targetLerp)
	cam.LookAt(r.target)
}

// Recorder is a Handle that stores what it was told, for headless runs.
type Recorder struct {
	Pos    geom.Vec3
	Target geom.Vec3
}

// Position implements Handle.
func (c *Recorder) Position() geom.Vec3 { return c.Pos }

// SetPosition implements Handle.
func (c *Recorder) SetPosition(p geom.Vec3) { c.Pos = p }

// LookAt implements Handle.
func (c *Recorder) LookAt(t geom.Vec3) { c.Target = t }
