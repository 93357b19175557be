package game

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"endlessdrive/server/internal/camera"
	"endlessdrive/server/internal/collision"
	"endlessdrive/server/internal/gameplay"
	"endlessdrive/server/internal/geom"
	"endlessdrive/server/internal/input"
	"endlessdrive/server/internal/logging"
	"endlessdrive/server/internal/physics"
	"endlessdrive/server/internal/road"
	"endlessdrive/server/internal/scores"
	"endlessdrive/server/internal/simulation"
	"endlessdrive/server/internal/state"
	"endlessdrive/server/internal/traffic"
)

// Scoreboard receives finished runs and leaderboard refresh requests. Both
// calls must return immediately.
type Scoreboard interface {
	SaveAndRefresh(name string, score int) bool
	Refresh() bool
}

// Session drives one player's endless run: fixed-step integration, road
// streaming, cross traffic, collisions, scoring and the chase camera.
type Session struct {
	mu sync.Mutex

	vehicleTuning gameplay.VehicleTuning
	roadTuning    gameplay.RoadTuning
	trafficTuning gameplay.TrafficTuning
	sessionTuning gameplay.SessionTuning

	seed       uint64
	playerName string
	autopilot  *bool
	input      *input.State
	scene      *state.Scene
	scores     Scoreboard
	logger     *logging.Logger
	monitor    *simulation.TickMonitor
	observers  []Observer

	vehicle   *physics.Vehicle
	window    *road.Window
	roster    *traffic.Roster
	activator *traffic.Activator
	detector  collision.Detector
	rig       *camera.Rig
	stepper   *simulation.Stepper
	startPos  geom.Vec3

	phase      Phase
	mode       Mode
	lastTime   time.Duration
	hasLast    bool
	runStart   time.Duration
	runStarted bool
	runTime    float64
	distance   float64
	score      int
	multiplier float64
	lastHit    *collision.Hit

	frames     uint64
	runs       uint64
	collisions uint64
	steps      uint64
	dropped    uint64

	telemetry atomic.Pointer[Telemetry]
}

// Option customises a session.
type Option func(*Session)

// WithSeed fixes the road and traffic random stream.
func WithSeed(seed uint64) Option {
	return func(s *Session) { s.seed = seed }
}

// WithPlayerName sets the name scores are saved under.
func WithPlayerName(name string) Option {
	return func(s *Session) { s.playerName = scores.NormalizeName(name) }
}

// WithAutopilot overrides the tuned throttle latch.
func WithAutopilot(on bool) Option {
	return func(s *Session) { s.autopilot = &on }
}

// WithInput shares an input state with an external key listener.
func WithInput(in *input.State) Option {
	return func(s *Session) {
		if in != nil {
			s.input = in
		}
	}
}

// WithScene publishes entities into an existing scene registry.
func WithScene(scene *state.Scene) Option {
	return func(s *Session) {
		if scene != nil {
			s.scene = scene
		}
	}
}

// WithScoreboard wires score persistence.
func WithScoreboard(board Scoreboard) Option {
	return func(s *Session) { s.scores = board }
}

// WithLogger overrides the global logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMonitor records step accounting for metrics.
func WithMonitor(monitor *simulation.TickMonitor) Option {
	return func(s *Session) { s.monitor = monitor }
}

// WithObserver subscribes to frames and events.
func WithObserver(observer Observer) Option {
	return func(s *Session) {
		if observer != nil {
			s.observers = append(s.observers, observer)
		}
	}
}

// WithMode picks the initial lighting preset.
func WithMode(mode Mode) Option {
	return func(s *Session) { s.mode = mode }
}

// WithVehicleTuning replaces the embedded car tuning.
func WithVehicleTuning(tuning gameplay.VehicleTuning) Option {
	return func(s *Session) { s.vehicleTuning = tuning }
}

// WithRoadTuning replaces the embedded road tuning.
func WithRoadTuning(tuning gameplay.RoadTuning) Option {
	return func(s *Session) { s.roadTuning = tuning }
}

// WithTrafficTuning replaces the embedded traffic tuning.
func WithTrafficTuning(tuning gameplay.TrafficTuning) Option {
	return func(s *Session) { s.trafficTuning = tuning }
}

// WithSessionTuning replaces the embedded frame and difficulty tuning.
func WithSessionTuning(tuning gameplay.SessionTuning) Option {
	return func(s *Session) { s.sessionTuning = tuning }
}

// New builds an idle session parked at the start pad with the first
// segments already streamed in.
func New(opts ...Option) *Session {
	s := &Session{
		vehicleTuning: gameplay.DefaultVehicleTuning(),
		roadTuning:    gameplay.DefaultRoadTuning(),
		trafficTuning: gameplay.DefaultTrafficTuning(),
		sessionTuning: gameplay.DefaultSessionTuning(),
		seed:          1,
		input:         &input.State{},
		scene:         state.NewScene(),
		logger:        logging.L(),
		mode:          ModeNight,
		multiplier:    1,
	}
	s.playerName = scores.NormalizeName(s.sessionTuning.DefaultPlayerName)
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	//1.- Road and traffic share one random stream and one identifier space.
	src := road.NewSource(s.seed)
	ids := &road.IDs{}
	s.roster = traffic.NewRoster(s.scene.MarkMoved)
	generator := road.NewGenerator(s.roadTuning, src, ids)
	s.window = road.NewWindow(generator, s.scene)
	s.window.OnRelease(s.roster.Release)
	s.activator = traffic.NewActivator(s.trafficTuning, s.roadTuning.RoadWidth, src, ids, s.scene, s.roster)

	s.startPos = geom.Vec3{X: s.sessionTuning.StartX, Z: s.sessionTuning.StartZ}
	s.vehicle = physics.NewVehicle(s.vehicleTuning, s.startPos)
	if s.autopilot != nil {
		s.vehicle.AutoDrive = *s.autopilot
	}
	s.detector = collision.NewDetector(s.window.Layout(), s.vehicle.Extent())
	s.rig = camera.NewRig()
	s.stepper = simulation.NewStepper(s.sessionTuning.FixedDelta, s.sessionTuning.MaxFrameDelta, s.sessionTuning.MaxSubSteps)

	//2.- Stream the start area in and light it for the chosen mode.
	s.window.Ensure(s.startPos.Z)
	s.applyModeLocked(s.mode, false)
	s.publishLocked(Frame{Phase: s.phase, Position: s.vehicle.Position, Vehicle: s.vehicle.State})
	return s
}

// Start begins a fresh run: the road is rebuilt from scratch, scoring and the
// difficulty ramp restart, and the throttle is latched on.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vehicle.Reset(s.startPos)
	s.input.Clear()
	s.window.Reset()
	s.roster.Clear()
	s.stepper.Reset()
	s.hasLast = false
	s.runStarted = false
	s.runTime = 0
	s.distance = 0
	s.score = 0
	s.multiplier = 1
	s.lastHit = nil
	s.phase = PhasePlaying
	s.rig.SetMode(camera.ModeFollow)
	s.input.Set(input.ControlForward, true)
	s.runs++

	if s.scores != nil {
		s.scores.Refresh()
	}
	s.emitLocked(state.Event{Type: state.EventRunStarted, Metadata: map[string]string{
		"run":    strconv.FormatUint(s.runs, 10),
		"player": s.playerName,
		"seed":   strconv.FormatUint(s.seed, 10),
		"mode":   s.mode.String(),
	}})
	s.ensureWindowLocked(s.vehicle.Position.Z)
	s.applyModeLocked(s.mode, false)
	s.logger.Info("run started", logging.Int64("run", int64(s.runs)), logging.String("player", s.playerName))
	s.publishLocked(Frame{Number: s.frames, Phase: s.phase, Position: s.vehicle.Position, Vehicle: s.vehicle.State})
}

// ShowMenu returns to the idle menu with the car parked on the start pad.
func (s *Session) ShowMenu() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = PhaseIdle
	s.rig.SetMode(camera.ModeMenu)
	s.input.Clear()
	s.vehicle.Reset(s.startPos)
	s.multiplier = 1
	if s.scores != nil {
		s.scores.Refresh()
	}
	s.publishLocked(Frame{Number: s.frames, Phase: s.phase, Position: s.vehicle.Position, Vehicle: s.vehicle.State})
}

// SetMode switches between day and night lighting.
func (s *Session) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyModeLocked(mode, true)
}

// ToggleMode flips the lighting preset and returns the new mode.
func (s *Session) ToggleMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyModeLocked(s.mode.Toggle(), true)
	return s.mode
}

// SetPlayerName changes the name future scores are saved under.
func (s *Session) SetPlayerName(name string) {
	s.mu.Lock()
	s.playerName = scores.NormalizeName(name)
	s.mu.Unlock()
}

// Update advances the session to the animation timestamp now and moves cam
// towards the framing for the car. cam may be nil.
func (s *Session) Update(now time.Duration, cam camera.Handle) HUD {
	s.mu.Lock()
	defer s.mu.Unlock()

	//1.- The first frame after a start has no delta; the stepper caps the rest.
	delta := 0.0
	if s.hasLast {
		delta = (now - s.lastTime).Seconds()
	}
	s.lastTime = now
	s.hasLast = true

	playing := s.phase == PhasePlaying
	var report simulation.StepReport
	if playing {
		flags := s.input.Snapshot()
		report = s.stepper.Feed(delta, func(dt float64) {
			physics.Advance(s.vehicle, flags, dt)
			s.roster.Advance(dt)
			s.distance += math.Abs(s.vehicle.State.Velocity) * dt
		})

		//2.- Difficulty ramps with wall time since the first playing frame.
		if !s.runStarted {
			s.runStart = now
			s.runStarted = true
		}
		s.runTime = (now - s.runStart).Seconds()
		s.multiplier = math.Min(s.sessionTuning.MaxSpeedMultiplier, 1+s.runTime*s.sessionTuning.SpeedRampPerSecond)
		s.vehicle.State.SpeedMultiplier = s.multiplier
		s.score = int(math.Floor(s.distance))
	} else {
		s.stepper.Reset()
		s.vehicle.State.Velocity = 0
		s.multiplier = 1
	}
	s.steps += uint64(report.Steps)
	s.dropped += uint64(report.Dropped)
	s.monitor.ObserveSteps(report)

	//3.- Road streaming follows the integrated position, then traffic and collisions see the new window.
	pos := s.vehicle.Position
	s.ensureWindowLocked(pos.Z)
	if playing {
		for _, activation := range s.activator.Activate(s.window.Segments(), pos, s.vehicle.State.Velocity) {
			s.emitLocked(state.Event{Type: state.EventTrafficActivated, Segment: activation.Segment, Metadata: map[string]string{
				"cars": strconv.Itoa(len(activation.Cars)),
				"eta":  strconv.FormatFloat(activation.Eta, 'f', 2, 64),
			}})
		}
		if hit, ok := s.detector.Check(pos, s.window); ok {
			s.crashLocked(hit)
		}
	}

	s.rig.Follow(cam, s.vehicle.Position, s.vehicle.State.Heading)
	s.frames++
	s.publishLocked(Frame{
		Number:   s.frames,
		RunTime:  s.runTime,
		Phase:    s.phase,
		Steps:    report.Steps,
		Dropped:  report.Dropped,
		Position: s.vehicle.Position,
		Vehicle:  s.vehicle.State,
		Distance: s.distance,
		Score:    s.score,
	})
	return s.hudLocked()
}

// HUD returns the readout of the last frame.
func (s *Session) HUD() HUD {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hudLocked()
}

// Phase returns the lifecycle stage.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Mode returns the lighting preset.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Telemetry returns the snapshot published by the last frame. It is safe to
// call from any goroutine and never nil.
func (s *Session) Telemetry() *Telemetry {
	return s.telemetry.Load()
}

// Input exposes the held-control flags for external listeners.
func (s *Session) Input() *input.State { return s.input }

// Scene exposes the entity registry the road publishes into.
func (s *Session) Scene() *state.Scene { return s.scene }

// Vehicle returns the player car. Callers must not use it concurrently with Update.
func (s *Session) Vehicle() *physics.Vehicle { return s.vehicle }

// Window returns the segment window. Callers must not use it concurrently with Update.
func (s *Session) Window() *road.Window { return s.window }

// Roster returns the traffic update list. Callers must not use it concurrently with Update.
func (s *Session) Roster() *traffic.Roster { return s.roster }

func (s *Session) hudLocked() HUD {
	return HUD{Score: s.score, SpeedMultiplier: s.multiplier, Phase: s.phase, Distance: s.distance}
}

func (s *Session) ensureWindowLocked(z float64) {
	change := s.window.Ensure(z)
	if !change.Changed {
		return
	}
	for _, idx := range change.Spawned {
		s.emitLocked(state.Event{Type: state.EventSegmentSpawned, Segment: idx})
	}
	for _, idx := range change.Evicted {
		s.emitLocked(state.Event{Type: state.EventSegmentEvicted, Segment: idx})
	}
}

func (s *Session) crashLocked(hit collision.Hit) {
	s.vehicle.Stop()
	s.multiplier = 1
	s.phase = PhaseGameOver
	s.collisions++
	s.lastHit = &hit
	s.ensureWindowLocked(s.vehicle.Position.Z)

	kind, _ := hit.Kind.MarshalText()
	s.emitLocked(state.Event{Type: state.EventCollision, Segment: hit.Segment, Metadata: map[string]string{
		"kind":     string(kind),
		"entity":   strconv.FormatUint(hit.EntityID, 10),
		"score":    strconv.Itoa(s.score),
		"distance": strconv.FormatFloat(s.distance, 'f', 2, 64),
		"player":   s.playerName,
	}})
	s.logger.Info("run ended",
		logging.Int("score", s.score),
		logging.Float64("distance", s.distance),
		logging.String("obstacle", string(kind)),
		logging.Int("segment", hit.Segment),
	)
	if s.scores != nil {
		s.scores.SaveAndRefresh(s.playerName, s.score)
	}
}

func (s *Session) applyModeLocked(mode Mode, announce bool) {
	changed := mode != s.mode
	s.mode = mode
	night := mode == ModeNight
	s.vehicle.Headlight = night
	s.activator.SetHeadlights(night)
	s.roster.SetHeadlights(night)
	for _, car := range s.roster.Cars() {
		s.scene.MarkMoved(car)
	}
	if announce && changed {
		s.emitLocked(state.Event{Type: state.EventModeChanged, Metadata: map[string]string{"mode": mode.String()}})
	}
}

func (s *Session) emitLocked(event state.Event) {
	event.RunTime = s.runTime
	s.scene.Record(event)
	for _, observer := range s.observers {
		observer.ObserveEvent(event)
	}
}

func (s *Session) publishLocked(frame Frame) {
	current, _ := s.window.Current()
	snapshot := &Telemetry{
		Frame:          frame,
		HUD:            s.hudLocked().String(),
		Mode:           s.mode,
		PlayerName:     s.playerName,
		CurrentSegment: current,
		Segments:       s.window.Indices(),
		LiveEntities:   s.scene.Len(),
		TrafficCars:    s.roster.Len(),
		Runs:           s.runs,
		Collisions:     s.collisions,
		StepsTotal:     s.steps,
		DroppedTotal:   s.dropped,
	}
	if s.lastHit != nil {
		hit := *s.lastHit
		snapshot.LastHit = &hit
	}
	s.telemetry.Store(snapshot)
	for _, observer := range s.observers {
		observer.ObserveFrame(frame)
	}
}
