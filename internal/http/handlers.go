package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/logging"
	"endlessdrive/server/internal/replay"
	"endlessdrive/server/internal/road"
	"endlessdrive/server/internal/scores"
	"endlessdrive/server/internal/simulation"
)

// maxScoreBody bounds a score submission request body.
const maxScoreBody = 1 << 10

// ChatPath is where the chat websocket is mounted.
const ChatPath = "/ws/chat"

// ReadinessProvider exposes server state required for readiness checks.
type ReadinessProvider interface {
	StartupError() error
	Uptime() time.Duration
}

// RunController is the slice of the game session the HTTP surface drives.
type RunController interface {
	Telemetry() *game.Telemetry
	Start()
}

// ScoreService submits and lists leaderboard entries.
type ScoreService interface {
	Submit(ctx context.Context, name string, score float64) (scores.Entry, error)
	Top(ctx context.Context) ([]scores.Entry, error)
}

// ChatSurface is the WebSocket chat endpoint.
type ChatSurface interface {
	http.Handler
	Clients() int
	Throttled() uint64
}

// DiffStats reports scene diff fan-out health.
type DiffStats interface {
	Subscribers() int
	Dropped() uint64
}

// ReplayDumper triggers a replay dump and optionally returns the artifact location.
type ReplayDumper interface {
	DumpReplay(ctx context.Context) (string, error)
}

// ReplayDumperFunc adapts a function into a ReplayDumper.
type ReplayDumperFunc func(ctx context.Context) (string, error)

// DumpReplay implements ReplayDumper.
func (f ReplayDumperFunc) DumpReplay(ctx context.Context) (string, error) { return f(ctx) }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// ClientLimiter gates operations per client key.
type ClientLimiter interface {
	AllowKey(key string) bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger       *logging.Logger
	Readiness    ReadinessProvider
	Run          RunController
	Monitor      *simulation.TickMonitor
	Scores       ScoreService
	Chat         ChatSurface
	Scene        func() []road.Entity
	Diffs        DiffStats
	Replay       ReplayDumper
	ReplayStats  func() replay.Stats
	Storage      func() replay.StorageStats
	AdminToken   string
	RateLimiter  RateLimiter
	ScoreLimiter ClientLimiter
	TimeSource   func() time.Time
}

// HandlerSet bundles the operational and gameplay HTTP handlers.
type HandlerSet struct {
	logger       *logging.Logger
	readiness    ReadinessProvider
	run          RunController
	monitor      *simulation.TickMonitor
	scores       ScoreService
	chat         ChatSurface
	scene        func() []road.Entity
	diffs        DiffStats
	replay       ReplayDumper
	replayStats  func() replay.Stats
	storage      func() replay.StorageStats
	adminToken   string
	rateLimiter  RateLimiter
	scoreLimiter ClientLimiter
	now          func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:       logger,
		readiness:    opts.Readiness,
		run:          opts.Run,
		monitor:      opts.Monitor,
		scores:       opts.Scores,
		chat:         opts.Chat,
		scene:        opts.Scene,
		diffs:        opts.Diffs,
		replay:       opts.Replay,
		replayStats:  opts.ReplayStats,
		storage:      opts.Storage,
		adminToken:   strings.TrimSpace(opts.AdminToken),
		rateLimiter:  opts.RateLimiter,
		scoreLimiter: opts.ScoreLimiter,
		now:          now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/api/run", h.RunHandler())
	mux.HandleFunc("/api/run/restart", h.RestartHandler())
	mux.HandleFunc("/api/scores", h.ScoresHandler())
	mux.HandleFunc("/api/scene", h.SceneHandler())
	mux.HandleFunc("/api/replay/dump", h.ReplayDumpHandler())
	if h.chat != nil {
		mux.Handle(ChatPath, h.chat)
	}
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports readiness, including startup status and the run phase.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Phase         string  `json:"phase,omitempty"`
		ChatClients   int     `json:"chat_clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		if telemetry := h.telemetry(); telemetry != nil {
			resp.Phase = telemetry.Phase.String()
		}
		if h.chat != nil {
			resp.ChatClients = h.chat.Clients()
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if h.readiness != nil {
			metric(w, "drive_uptime_seconds", "gauge", "Server uptime in seconds.")
			fmt.Fprintf(w, "drive_uptime_seconds %.0f\n", h.readiness.Uptime().Seconds())
		}
		if h.chat != nil {
			metric(w, "drive_chat_clients", "gauge", "Connected chat WebSocket clients.")
			fmt.Fprintf(w, "drive_chat_clients %d\n", h.chat.Clients())
			metric(w, "drive_chat_throttled_total", "counter", "Inbound chat frames refused by flood control.")
			fmt.Fprintf(w, "drive_chat_throttled_total %d\n", h.chat.Throttled())
		}
		if telemetry := h.telemetry(); telemetry != nil {
			metric(w, "drive_frames_total", "counter", "Frames simulated by the session.")
			fmt.Fprintf(w, "drive_frames_total %d\n", telemetry.Number)
			metric(w, "drive_runs_total", "counter", "Runs started since boot.")
			fmt.Fprintf(w, "drive_runs_total %d\n", telemetry.Runs)
			metric(w, "drive_collisions_total", "counter", "Runs ended by a collision.")
			fmt.Fprintf(w, "drive_collisions_total %d\n", telemetry.Collisions)
			metric(w, "drive_steps_total", "counter", "Fixed physics steps integrated.")
			fmt.Fprintf(w, "drive_steps_total %d\n", telemetry.StepsTotal)
			metric(w, "drive_dropped_steps_total", "counter", "Physics steps discarded by the catch-up cap.")
			fmt.Fprintf(w, "drive_dropped_steps_total %d\n", telemetry.DroppedTotal)
			metric(w, "drive_score", "gauge", "Score of the current or last run.")
			fmt.Fprintf(w, "drive_score %d\n", telemetry.Score)
			metric(w, "drive_distance_meters", "gauge", "Distance covered in the current or last run.")
			fmt.Fprintf(w, "drive_distance_meters %.2f\n", telemetry.Distance)
			metric(w, "drive_speed_multiplier", "gauge", "Difficulty speed multiplier.")
			fmt.Fprintf(w, "drive_speed_multiplier %.3f\n", telemetry.Vehicle.SpeedMultiplier)
			metric(w, "drive_live_entities", "gauge", "Entities registered in the scene.")
			fmt.Fprintf(w, "drive_live_entities %d\n", telemetry.LiveEntities)
			metric(w, "drive_traffic_cars", "gauge", "Moving traffic cars.")
			fmt.Fprintf(w, "drive_traffic_cars %d\n", telemetry.TrafficCars)
		}
		if h.monitor != nil {
			snapshot := h.monitor.Snapshot()
			metric(w, "drive_frame_seconds", "gauge", "Observed wall time per frame.")
			fmt.Fprintf(w, "drive_frame_seconds{stat=\"avg\"} %.6f\n", snapshot.Average.Seconds())
			fmt.Fprintf(w, "drive_frame_seconds{stat=\"max\"} %.6f\n", snapshot.Max.Seconds())
			fmt.Fprintf(w, "drive_frame_seconds{stat=\"last\"} %.6f\n", snapshot.Last.Seconds())
			metric(w, "drive_frame_rate", "gauge", "Frames per second derived from the average frame time.")
			fmt.Fprintf(w, "drive_frame_rate %.2f\n", snapshot.AverageFPS())
		}
		if h.diffs != nil {
			metric(w, "drive_diff_subscribers", "gauge", "Scene diff stream subscribers.")
			fmt.Fprintf(w, "drive_diff_subscribers %d\n", h.diffs.Subscribers())
			metric(w, "drive_diff_dropped_total", "counter", "Scene diffs dropped for slow subscribers.")
			fmt.Fprintf(w, "drive_diff_dropped_total %d\n", h.diffs.Dropped())
		}
		if h.replayStats != nil {
			stats := h.replayStats()
			recording := 0
			if stats.Recording {
				recording = 1
			}
			metric(w, "drive_replay_recording", "gauge", "Whether a run bundle is open.")
			fmt.Fprintf(w, "drive_replay_recording %d\n", recording)
			metric(w, "drive_replay_runs_total", "counter", "Run bundles completed.")
			fmt.Fprintf(w, "drive_replay_runs_total %d\n", stats.Runs)
			metric(w, "drive_replay_frames_total", "counter", "Frames written to run bundles.")
			fmt.Fprintf(w, "drive_replay_frames_total %d\n", stats.Frames)
			metric(w, "drive_replay_events_total", "counter", "Events written to run bundles.")
			fmt.Fprintf(w, "drive_replay_events_total %d\n", stats.Events)
			metric(w, "drive_replay_dropped_total", "counter", "Observations dropped by a full recorder queue.")
			fmt.Fprintf(w, "drive_replay_dropped_total %d\n", stats.Dropped)
			metric(w, "drive_replay_errors_total", "counter", "Replay write failures.")
			fmt.Fprintf(w, "drive_replay_errors_total %d\n", stats.Errors)
		}
		if h.storage != nil {
			storage := h.storage()
			metric(w, "drive_replay_storage_runs", "gauge", "Run bundles retained on disk.")
			fmt.Fprintf(w, "drive_replay_storage_runs %d\n", storage.Runs)
			metric(w, "drive_replay_storage_bytes", "gauge", "Disk used by retained run bundles.")
			fmt.Fprintf(w, "drive_replay_storage_bytes %d\n", storage.Bytes)
		}
	}
}

// RunHandler returns the latest session telemetry.
func (h *HandlerSet) RunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		telemetry := h.telemetry()
		if telemetry == nil {
			http.Error(w, "no run telemetry available", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, telemetry)
	}
}

// RestartHandler authorises and starts a fresh run.
func (h *HandlerSet) RestartHandler() http.HandlerFunc {
	type response struct {
		Status string `json:"status"`
		Run    uint64 `json:"run"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.requestLogger(r, "run_restart")
		if !h.admitAdmin(w, r, reqLogger, "run restart") {
			return
		}
		if h.run == nil {
			reqLogger.Warn("run restart denied: no session configured")
			http.Error(w, "run control is unavailable", http.StatusServiceUnavailable)
			return
		}
		h.run.Start()
		resp := response{Status: "started"}
		if telemetry := h.run.Telemetry(); telemetry != nil {
			resp.Run = telemetry.Runs
		}
		reqLogger.Info("run restarted", logging.Int64("run", int64(resp.Run)))
		writeJSON(w, http.StatusAccepted, resp)
	}
}

// ScoresHandler lists the leaderboard on GET and records a score on POST.
func (h *HandlerSet) ScoresHandler() http.HandlerFunc {
	type submission struct {
		Name  string   `json:"name"`
		Score *float64 `json:"score"`
	}
	type listing struct {
		Entries []scores.Entry `json:"entries"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.requestLogger(r, "scores")
		if h.scores == nil {
			http.Error(w, "leaderboard is unavailable", http.StatusServiceUnavailable)
			return
		}
		switch r.Method {
		case http.MethodGet:
			entries, err := h.scores.Top(r.Context())
			if err != nil {
				reqLogger.Warn("leaderboard fetch failed", logging.Error(err))
				http.Error(w, "leaderboard fetch failed", http.StatusBadGateway)
				return
			}
			if entries == nil {
				entries = []scores.Entry{}
			}
			writeJSON(w, http.StatusOK, listing{Entries: entries})
		case http.MethodPost:
			if h.scoreLimiter != nil && !h.scoreLimiter.AllowKey(clientKey(r)) {
				reqLogger.Warn("score submission denied: rate limit exceeded")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			var body submission
			decoder := json.NewDecoder(io.LimitReader(r.Body, maxScoreBody))
			decoder.DisallowUnknownFields()
			if err := decoder.Decode(&body); err != nil || body.Score == nil {
				http.Error(w, "expected {\"name\": string, \"score\": number}", http.StatusBadRequest)
				return
			}
			entry, err := h.scores.Submit(r.Context(), body.Name, *body.Score)
			switch {
			case err == nil:
			case errors.Is(err, scores.ErrInvalidEntry):
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			case errors.Is(err, scores.ErrNoStore):
				http.Error(w, "score storage is not configured", http.StatusServiceUnavailable)
				return
			default:
				reqLogger.Warn("score submission failed", logging.Error(err))
				http.Error(w, "score submission failed", http.StatusBadGateway)
				return
			}
			reqLogger.Info("score submitted", logging.String("player", entry.Name), logging.Int("score", entry.Score))
			writeJSON(w, http.StatusCreated, entry)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// SceneHandler returns the live entities of the road window.
func (h *HandlerSet) SceneHandler() http.HandlerFunc {
	type response struct {
		Count    int           `json:"count"`
		Entities []road.Entity `json:"entities"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.scene == nil {
			http.Error(w, "scene is unavailable", http.StatusServiceUnavailable)
			return
		}
		entities := h.scene()
		if entities == nil {
			entities = []road.Entity{}
		}
		if kind := strings.TrimSpace(r.URL.Query().Get("kind")); kind != "" {
			filtered := entities[:0]
			for _, entity := range entities {
				if entity.Kind.String() == kind {
					filtered = append(filtered, entity)
				}
			}
			entities = filtered
		}
		writeJSON(w, http.StatusOK, response{Count: len(entities), Entities: entities})
	}
}

// ReplayDumpHandler authorises and triggers replay dump creation.
func (h *HandlerSet) ReplayDumpHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.requestLogger(r, "replay_dump")
		if !h.admitAdmin(w, r, reqLogger, "replay dump") {
			return
		}
		if h.replay == nil {
			reqLogger.Warn("replay dump denied: no dumper configured")
			http.Error(w, "replay dumping is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.replay.DumpReplay(r.Context())
		if errors.Is(err, replay.ErrNoReplay) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			reqLogger.Error("replay dump trigger failed", logging.Error(err))
			http.Error(w, "failed to trigger replay dump", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay dump triggered", logging.String("location", location))
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

// admitAdmin applies the POST, admin token and rate limit checks shared by
// operator endpoints. It writes the rejection and returns false on failure.
func (h *HandlerSet) admitAdmin(w http.ResponseWriter, r *http.Request, reqLogger *logging.Logger, action string) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if h.adminToken == "" {
		reqLogger.Warn(action + " denied: admin auth disabled")
		http.Error(w, "admin authentication not configured", http.StatusForbidden)
		return false
	}
	if !h.authorise(r) {
		reqLogger.Warn(action + " denied: unauthorized request")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if h.rateLimiter != nil && !h.rateLimiter.Allow() {
		reqLogger.Warn(action + " denied: rate limit exceeded")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}

func (h *HandlerSet) requestLogger(r *http.Request, handler string) *logging.Logger {
	fields := []logging.Field{
		logging.String("handler", handler),
		logging.String("remote_addr", r.RemoteAddr),
	}
	if traceID := logging.TraceIDFromContext(r.Context()); traceID != "" {
		fields = append(fields, logging.String("trace_id", traceID))
	}
	return h.logger.With(fields...)
}

func (h *HandlerSet) telemetry() *game.Telemetry {
	if h.run == nil {
		return nil
	}
	return h.run.Telemetry()
}

func (h *HandlerSet) authorise(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	var token string
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	} else if header != "" {
		token = header
	}
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Admin-Token"))
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// clientKey identifies the caller for per-client rate limits.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func metric(w io.Writer, name, kind, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
