// Package hud is the terminal front-end: a bubbletea program that drives a
// game session from the keyboard and renders the heads-up display.
package hud

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"endlessdrive/server/internal/camera"
	"endlessdrive/server/internal/chat"
	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/gameplay"
	"endlessdrive/server/internal/input"
	"endlessdrive/server/internal/state"
)

const (
	// DefaultFrame is the redraw cadence of the terminal front-end.
	DefaultFrame = 50 * time.Millisecond
	gaugeWidth   = 21
	eventLines   = 5
	chatLines    = 6
)

var (
	docStyle      = lipgloss.NewStyle().Margin(1, 2)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	nightStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	dayStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	hudStyle      = lipgloss.NewStyle().Bold(true)
	bannerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(34)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headingStyle  = lipgloss.NewStyle().Underline(true)
	carGaugeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
)

// Game is the session surface the terminal drives.
type Game interface {
	Update(now time.Duration, cam camera.Handle) game.HUD
	Start()
	ToggleMode() game.Mode
	Telemetry() *game.Telemetry
	Input() *input.State
	Scene() *state.Scene
}

// Leaderboard supplies rendered leaderboard rows.
type Leaderboard interface {
	Lines() []string
}

// Option customises the model.
type Option func(*Model)

// WithLeaderboard shows the cached leaderboard beside the road.
func WithLeaderboard(board Leaderboard) Option {
	return func(m *Model) { m.board = board }
}

// WithChat shows the latest chat messages.
func WithChat(feed *chat.Feed) Option {
	return func(m *Model) { m.chat = feed }
}

// WithClock overrides the wall clock used for frame timestamps and key holds.
func WithClock(clock func() time.Time) Option {
	return func(m *Model) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithFrame overrides the redraw cadence.
func WithFrame(frame time.Duration) Option {
	return func(m *Model) {
		if frame > 0 {
			m.frame = frame
		}
	}
}

// WithRoadWidth sets the width the lane gauge spans.
func WithRoadWidth(width float64) Option {
	return func(m *Model) {
		if width > 0 {
			m.roadWidth = width
		}
	}
}

type frameMsg time.Time

type holdClock func() time.Time

func (c holdClock) Now() time.Time { return c() }

// Model is the bubbletea model for a single-player terminal run.
type Model struct {
	game      Game
	hold      *input.HoldTracker
	board     Leaderboard
	chat      *chat.Feed
	keys      keyMap
	help      help.Model
	clock     func() time.Time
	origin    time.Time
	frame     time.Duration
	roadWidth float64
	width     int
	last      game.HUD
	events    []string
	quitting  bool
}

// New builds the model around a session.
func New(g Game, opts ...Option) Model {
	m := Model{
		game:      g,
		keys:      defaultKeyMap(),
		help:      help.New(),
		clock:     time.Now,
		frame:     DefaultFrame,
		roadWidth: gameplay.DefaultRoadTuning().RoadWidth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	m.origin = m.clock()
	m.hold = input.NewHoldTracker(g.Input(), 0, input.WithHoldClock(holdClock(m.clock)))
	return m
}

// Run starts the program on the alternate screen and blocks until quit.
func Run(g Game, opts ...Option) error {
	_, err := tea.NewProgram(New(g, opts...), tea.WithAltScreen()).Run()
	return err
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg { return frameMsg(t) })
}

// Init starts the frame ticker.
func (m Model) Init() tea.Cmd {
	return m.tick()
}

// Update handles keys and frame ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
	case tea.KeyMsg:
		return m.handleKey(msg)
	case frameMsg:
		//1.- Terminals never report key releases, so holds lapse before the session steps.
		m.hold.Expire()
		m.last = m.game.Update(time.Time(msg).Sub(m.origin), nil)
		m.collectEvents()
		return m, m.tick()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Start):
		if m.last.Phase != game.PhasePlaying {
			m.hold.Reset()
			m.game.Start()
			m.events = nil
		}
	case key.Matches(msg, m.keys.Mode):
		m.game.ToggleMode()
	case key.Matches(msg, m.keys.Forward):
		m.hold.Press(input.ControlForward)
	case key.Matches(msg, m.keys.Backward):
		m.hold.Press(input.ControlBackward)
	case key.Matches(msg, m.keys.Left):
		m.hold.Press(input.ControlLeft)
	case key.Matches(msg, m.keys.Right):
		m.hold.Press(input.ControlRight)
	}
	return m, nil
}

// collectEvents drains the scene diff and keeps the most recent notable events.
func (m *Model) collectEvents() {
	scene := m.game.Scene()
	if scene == nil {
		return
	}
	diff := scene.ConsumeDiff()
	for _, event := range diff.Events.Events {
		line, ok := describeEvent(event)
		if !ok {
			continue
		}
		m.events = append(m.events, line)
	}
	if extra := len(m.events) - eventLines; extra > 0 {
		m.events = append([]string(nil), m.events[extra:]...)
	}
}

func describeEvent(event state.Event) (string, bool) {
	switch event.Type {
	case state.EventRunStarted:
		return fmt.Sprintf("run %s started", event.Metadata["run"]), true
	case state.EventTrafficActivated:
		return fmt.Sprintf("%s cars crossing at segment %d", event.Metadata["cars"], event.Segment), true
	case state.EventCollision:
		return fmt.Sprintf("hit %s at segment %d", strings.ReplaceAll(event.Metadata["kind"], "_", " "), event.Segment), true
	case state.EventModeChanged:
		return "switched to " + event.Metadata["mode"], true
	default:
		return "", false
	}
}

// View renders the HUD.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	telemetry := m.game.Telemetry()
	var b strings.Builder

	mode := game.ModeNight
	if telemetry != nil {
		mode = telemetry.Mode
	}
	modeStyle := nightStyle
	if mode == game.ModeDay {
		modeStyle = dayStyle
	}
	b.WriteString(titleStyle.Render("ENDLESS DRIVE") + "  " + modeStyle.Render(mode.String()) + "\n\n")
	b.WriteString(hudStyle.Render(m.last.String()) + "\n")

	switch m.last.Phase {
	case game.PhaseIdle:
		b.WriteString(mutedStyle.Render("Press enter to drive") + "\n")
	case game.PhaseGameOver:
		banner := fmt.Sprintf("GAME OVER: %d points", m.last.Score)
		if telemetry != nil && telemetry.LastHit != nil {
			kind, _ := telemetry.LastHit.Kind.MarshalText()
			banner += fmt.Sprintf(", hit a %s", strings.ReplaceAll(string(kind), "_", " "))
		}
		b.WriteString(bannerStyle.Render(banner) + "  " + mutedStyle.Render("enter to retry") + "\n")
	default:
		b.WriteString(fmt.Sprintf("%.0f m\n", m.last.Distance))
	}
	if telemetry != nil {
		b.WriteString(LaneGauge(telemetry.Position.X, m.roadWidth, gaugeWidth))
		b.WriteString(fmt.Sprintf("  %5.1f m/s  segment %d\n", telemetry.Vehicle.Velocity, telemetry.CurrentSegment))
	}
	b.WriteString("\n")

	var panels []string
	if m.board != nil {
		panels = append(panels, panelStyle.Render(headingStyle.Render("Leaderboard")+"\n"+strings.Join(m.board.Lines(), "\n")))
	}
	if m.chat != nil {
		panels = append(panels, panelStyle.Render(headingStyle.Render("Chat")+"\n"+strings.Join(chat.RenderLines(m.chat.Backlog(chatLines)), "\n")))
	}
	if len(panels) > 0 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...) + "\n")
	}
	for _, line := range m.events {
		b.WriteString(mutedStyle.Render("· "+line) + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys))
	return docStyle.Render(b.String())
}

// LaneGauge draws the car's lateral position between the road edges.
func LaneGauge(x, roadWidth float64, width int) string {
	if width < 3 {
		width = 3
	}
	inner := width - 2
	half := roadWidth / 2
	ratio := 0.5
	if half > 0 {
		ratio = (x + half) / roadWidth
	}
	ratio = math.Max(0, math.Min(1, ratio))
	pos := int(math.Round(ratio * float64(inner-1)))
	cells := []rune(strings.Repeat(".", inner))
	cells[inner/2] = ':'
	return "|" + string(cells[:pos]) + carGaugeStyle.Render("^") + string(cells[pos+1:]) + "|"
}
