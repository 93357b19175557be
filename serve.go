package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"

	"endlessdrive/server/internal/chat"
	configpkg "endlessdrive/server/internal/config"
	"endlessdrive/server/internal/game"
	grpcapi "endlessdrive/server/internal/grpc"
	httpapi "endlessdrive/server/internal/http"
	"endlessdrive/server/internal/logging"
	"endlessdrive/server/internal/replay"
	"endlessdrive/server/internal/scores"
	"endlessdrive/server/internal/simulation"
	"endlessdrive/server/internal/state"
)

const (
	diffSubscriberBuffer = 64
	autoRestartDelay     = 3 * time.Second
	replaySweepInterval  = 10 * time.Minute
	shutdownTimeout      = 5 * time.Second
	adminWindow          = time.Minute
	adminBurst           = 10
)

// diffPayload is the JSON document published for every frame that changed the scene.
type diffPayload struct {
	Frame    uint64           `json:"frame"`
	Entities state.EntityDiff `json:"entities"`
	Events   state.EventDiff  `json:"events"`
}

// server owns the long-lived pieces behind the serve command.
type server struct {
	cfg     *configpkg.Config
	logger  *logging.Logger
	started time.Time
	now     func() time.Time

	mu         sync.RWMutex
	startupErr error

	session  *game.Session
	monitor  *simulation.TickMonitor
	diffs    *state.Broadcaster
	reporter *scores.Reporter
	recorder *replay.RunRecorder
	cleaner  *replay.Cleaner
	feed     *chat.Feed
	hub      *chat.Hub
	snapshot *StateSnapshotter

	// Touched only from the loop goroutine.
	crashed   bool
	crashedAt time.Duration
}

// loadConfig reads the environment and applies the flags the command set.
func loadConfig(cmd *cli.Command) (*configpkg.Config, error) {
	cfg, err := configpkg.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd == nil {
		return cfg, nil
	}
	if cmd.IsSet("addr") {
		cfg.Address = cmd.String("addr")
	}
	if cmd.IsSet("grpc-addr") {
		cfg.GRPCAddress = cmd.String("grpc-addr")
	}
	if cmd.IsSet("replay-dir") {
		cfg.ReplayDir = cmd.String("replay-dir")
	}
	if cmd.IsSet("seed") {
		cfg.Seed = cmd.Uint64("seed")
	}
	return cfg, nil
}

// newScoreStore prefers the hosted leaderboard when configured.
func newScoreStore(cfg *configpkg.Config) scores.Store {
	if cfg.ScoresURL != "" {
		return scores.NewRESTStore(cfg.ScoresURL, cfg.ScoresKey, nil)
	}
	return scores.NewFileStore(cfg.ScoresPath)
}

func newServer(cfg *configpkg.Config, logger *logging.Logger) (*server, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	s := &server{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		monitor: simulation.NewTickMonitor(),
		diffs:   state.NewBroadcaster(diffSubscriberBuffer),
		feed:    chat.NewFeed(cfg.ChatRetain),
	}
	s.started = s.now()
	s.reporter = scores.NewReporter(newScoreStore(cfg), nil, logger.With(logging.String("component", "scores")))

	//1.- Replays are optional; the cleaner is shared by the recorder and the sweep loop.
	if cfg.ReplayDir != "" {
		s.cleaner = replay.NewCleaner(cfg.ReplayDir, replay.RetentionPolicy{MaxRuns: cfg.ReplayKeep}, logger)
		recorder, err := replay.NewRunRecorder(cfg.ReplayDir,
			replay.WithRecorderTuning(replay.DefaultTuning()),
			replay.WithRecorderCleaner(s.cleaner),
			replay.WithRecorderLogger(logger.With(logging.String("component", "replay"))),
		)
		if err != nil {
			s.reporter.Close()
			return nil, fmt.Errorf("replay recorder: %w", err)
		}
		s.recorder = recorder
	}

	opts := []game.Option{
		game.WithSeed(cfg.SeedOrClock(s.now)),
		game.WithPlayerName(cfg.PlayerName),
		game.WithAutopilot(cfg.Autopilot),
		game.WithScoreboard(s.reporter),
		game.WithLogger(logger.With(logging.String("component", "session"))),
		game.WithMonitor(s.monitor),
	}
	if s.recorder != nil {
		opts = append(opts, game.WithObserver(s.recorder))
	}
	s.session = game.New(opts...)

	//2.- Chat authentication stays anonymous without a secret.
	authenticator, err := newChatAuthenticator(cfg.ChatSecret)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("chat authenticator: %w", err)
	}
	s.hub = chat.NewHub(s.feed,
		chat.WithBacklog(cfg.ChatBacklog),
		chat.WithPingInterval(cfg.PingInterval),
		chat.WithMaxPayload(cfg.MaxPayloadBytes),
		chat.WithAllowedOrigins(cfg.AllowedOrigins),
		chat.WithAuthenticator(authenticator),
		chat.WithThrottle(chat.NewThrottle(cfg.ChatFloodRate, nil)),
		chat.WithLogger(logger.With(logging.String("component", "chat"))),
	)

	//3.- Restore before tracking so the first capture already carries the old state.
	snapshot, err := NewStateSnapshotter(cfg.StatePath, cfg.StateInterval, logger)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("state snapshot: %w", err)
	}
	s.snapshot = snapshot
	restoreServerState(snapshot, s.session, s.feed, logger)
	trackServerState(snapshot, s.session, s.feed, cfg.ChatRetain)
	return s, nil
}

// StartupError reports a listener failure for /readyz.
func (s *server) StartupError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startupErr
}

// Uptime reports how long the server has been running.
func (s *server) Uptime() time.Duration {
	return s.now().Sub(s.started)
}

func (s *server) setStartupError(err error) {
	s.mu.Lock()
	if s.startupErr == nil {
		s.startupErr = err
	}
	s.mu.Unlock()
}

// frame advances the session once and fans the resulting scene diff out.
func (s *server) frame(elapsed time.Duration) {
	hud := s.session.Update(elapsed, nil)
	if _, err := publishSceneDiff(s.session, s.diffs); err != nil {
		s.logger.Warn("scene diff encode failed", logging.Error(err))
	}
	s.autoRestart(hud.Phase, elapsed)
}

// autoRestart starts a fresh run a short while after a crash when autopilot is on.
func (s *server) autoRestart(phase game.Phase, elapsed time.Duration) {
	if !s.cfg.Autopilot || phase != game.PhaseGameOver {
		s.crashed = false
		return
	}
	if !s.crashed {
		s.crashed, s.crashedAt = true, elapsed
		return
	}
	if elapsed-s.crashedAt >= autoRestartDelay {
		s.crashed = false
		s.session.Start()
	}
}

// publishSceneDiff consumes the pending scene delta and publishes it when
// anything changed. It reports whether a frame was published.
func publishSceneDiff(session *game.Session, diffs *state.Broadcaster) (bool, error) {
	diff := session.Scene().ConsumeDiff()
	if !diff.HasChanges() {
		return false, nil
	}
	var frame uint64
	if telemetry := session.Telemetry(); telemetry != nil {
		frame = telemetry.Number
	}
	payload, err := json.Marshal(diffPayload{Frame: frame, Entities: diff.Entities, Events: diff.Events})
	if err != nil {
		return false, err
	}
	diffs.Publish(state.DiffFrame{Frame: frame, Payload: payload})
	return true, nil
}

// routes assembles the HTTP surface.
func (s *server) routes() http.Handler {
	opts := httpapi.Options{
		Logger:       s.logger,
		Readiness:    s,
		Run:          s.session,
		Monitor:      s.monitor,
		Scores:       s.reporter,
		Chat:         s.hub,
		Scene:        s.session.Scene().Snapshot,
		Diffs:        s.diffs,
		AdminToken:   s.cfg.AdminToken,
		RateLimiter:  httpapi.NewSlidingWindowLimiter(adminWindow, adminBurst, s.now),
		ScoreLimiter: httpapi.NewKeyedLimiter(s.cfg.ScoreSubmitWindow, s.cfg.ScoreSubmitBurst, s.now),
		TimeSource:   s.now,
	}
	if s.recorder != nil {
		opts.Replay = s.recorder
		opts.ReplayStats = s.recorder.Stats
		opts.Storage = s.cleaner.Stats
	}
	mux := http.NewServeMux()
	httpapi.NewHandlerSet(opts).Register(mux)
	registerControlDocEndpoints(mux)
	return logging.HTTPTraceMiddleware(s.logger)(mux)
}

// grpcServer builds the secured gRPC server with the leaderboard service registered.
func (s *server) grpcServer() (*grpc.Server, error) {
	opts, err := configureGRPCSecurity(s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer(opts...)
	grpcapi.Register(srv, grpcapi.NewService(
		grpcapi.WithScores(s.reporter),
		grpcapi.WithTelemetry(s.session),
		grpcapi.WithDiffSource(s.diffs),
		grpcapi.WithLogger(s.logger.With(logging.String("component", "grpc"))),
	))
	return srv, nil
}

// close releases everything newServer built, flushing replays and state first.
func (s *server) close() {
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.Warn("replay recorder close failed", logging.Error(err))
		}
	}
	if err := s.snapshot.Close(); err != nil {
		s.logger.Warn("state snapshot close failed", logging.Error(err))
	}
	if s.hub != nil {
		s.hub.Close()
	}
	s.diffs.Close()
	s.reporter.Close()
}

func runServe(ctx context.Context, cfg *configpkg.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	if cfg.Autopilot {
		srv.session.Start()
	}
	loop := simulation.NewLoop(cfg.TickHz, srv.frame, simulation.WithMonitor(srv.monitor))
	loop.Start(ctx)
	defer loop.Stop()
	if srv.cleaner != nil {
		go srv.cleaner.Run(ctx, replaySweepInterval)
	}

	for _, endpoint := range servedEndpoints(cfg) {
		logger.Info("serving", logging.String("surface", endpoint.Name), logging.String("url", endpoint.URL), logging.Bool("tls", endpoint.TLS))
	}

	errCh := make(chan error, 2)
	httpServer := &http.Server{Addr: cfg.Address, Handler: srv.routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.setStartupError(err)
			errCh <- fmt.Errorf("http listener: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddress != "" {
		grpcServer, err = srv.grpcServer()
		if err != nil {
			return fmt.Errorf("grpc security: %w", err)
		}
		listener, listenErr := net.Listen("tcp", cfg.GRPCAddress)
		if listenErr != nil {
			srv.setStartupError(listenErr)
			errCh <- fmt.Errorf("grpc listener: %w", listenErr)
			grpcServer = nil
		} else {
			go func() {
				logger.Info("gRPC listening", logging.String("address", listener.Addr().String()), logging.Bool("mtls", cfg.GRPCMutualTLS()))
				if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
					srv.setStartupError(err)
					errCh <- fmt.Errorf("grpc listener: %w", err)
				}
			}()
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("listener failed", logging.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopGRPC(shutdownCtx, grpcServer)
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown failed", logging.Error(shutdownErr))
	}
	return err
}

// stopGRPC drains in-flight calls until ctx ends, then cuts the streams that
// never finish on their own.
func stopGRPC(ctx context.Context, srv *grpc.Server) {
	if srv == nil {
		return
	}
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		srv.Stop()
		<-stopped
	}
}
