package simulation

// StepReport describes how one frame was subdivided.
type StepReport struct {
	Steps   int
	Dropped int
	Capped  bool
}

// Stepper subdivides variable frame deltas into fixed steps with an
// accumulator. Frame deltas are capped, and steps beyond the per-frame limit
// are dropped so the simulation slows down instead of spiralling.
type Stepper struct {
	fixed       float64
	maxFrame    float64
	maxSteps    int
	accumulator float64
}

// NewStepper builds a stepper. Non-positive arguments fall back to 1/60 s,
// a 0.02 s frame cap and five steps.
func NewStepper(fixed, maxFrame float64, maxSteps int) *Stepper {
	if fixed <= 0 {
		fixed = 1.0 / 60
	}
	if maxFrame <= 0 {
		maxFrame = 0.02
	}
	if maxSteps <= 0 {
		maxSteps = 5
	}
	return &Stepper{fixed: fixed, maxFrame: maxFrame, maxSteps: maxSteps}
}

// Fixed returns the fixed step in seconds.
func (s *Stepper) Fixed() float64 { return s.fixed }

// Accumulator returns the unconsumed time in seconds.
func (s *Stepper) Accumulator() float64 { return s.accumulator }

// Feed adds a frame delta and invokes step once per whole fixed step, up to the limit.
func (s *Stepper) Feed(delta float64, step func(dt float64)) StepReport {
	var report StepReport
	if delta < 0 {
		delta = 0
	}
	if delta > s.maxFrame {
		delta = s.maxFrame
		report.Capped = true
	}
	s.accumulator += delta

	//1.- Consume whole steps while the budget lasts.
	for s.accumulator >= s.fixed && report.Steps < s.maxSteps {
		if step != nil {
			step(s.fixed)
		}
		s.accumulator -= s.fixed
		report.Steps++
	}
	//2.- Anything still owed beyond the limit is discarded.
	if s.accumulator >= s.fixed {
		report.Dropped = int(s.accumulator / s.fixed)
		s.accumulator -= float64(report.Dropped) * s.fixed
	}
	return report
}

// Reset discards any accumulated time.
func (s *Stepper) Reset() { s.accumulator = 0 }
