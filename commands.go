package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	configpkg "endlessdrive/server/internal/config"
	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/gameplay"
	grpcapi "endlessdrive/server/internal/grpc"
	"endlessdrive/server/internal/hud"
	"endlessdrive/server/internal/logging"
	"endlessdrive/server/internal/scores"
)

const (
	simulateFrame  = time.Second / 60
	scoresTimeout  = 5 * time.Second
	maxSimulateSec = 3600
)

// simulateReport is the JSON shape printed by the simulate command.
type simulateReport struct {
	Seed   uint64         `json:"seed"`
	Result game.RunResult `json:"result"`
}

// runPlay opens the terminal HUD. Logs go to the file only so they do not
// tear the alternate screen.
func runPlay(cfg *configpkg.Config, day bool) error {
	cfg.Logging.FileOnly = true
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	reporter := scores.NewReporter(newScoreStore(cfg), nil, logger.With(logging.String("component", "scores")))
	defer reporter.Close()

	mode := game.ModeNight
	if day {
		mode = game.ModeDay
	}
	session := game.New(
		game.WithSeed(cfg.SeedOrClock(nil)),
		game.WithPlayerName(cfg.PlayerName),
		game.WithAutopilot(cfg.Autopilot),
		game.WithScoreboard(reporter),
		game.WithLogger(logger.With(logging.String("component", "session"))),
		game.WithMode(mode),
	)
	//1.- The menu refreshes the leaderboard so the first screen already lists scores.
	session.ShowMenu()
	return hud.Run(session,
		hud.WithLeaderboard(reporter.Leaderboard()),
		hud.WithFrame(frameInterval(cfg.TickHz)),
		hud.WithRoadWidth(gameplay.DefaultRoadTuning().RoadWidth),
	)
}

func frameInterval(hz float64) time.Duration {
	if hz <= 0 {
		return hud.DefaultFrame
	}
	return time.Duration(float64(time.Second) / hz)
}

// runSimulate drives a headless autopilot run and prints the outcome.
func runSimulate(w io.Writer, cfg *configpkg.Config, seconds float64, asJSON bool) error {
	if seconds <= 0 || seconds > maxSimulateSec {
		return fmt.Errorf("seconds must be in (0, %d], got %g", maxSimulateSec, seconds)
	}
	seed := cfg.SeedOrClock(nil)
	session := game.New(
		game.WithSeed(seed),
		game.WithPlayerName(cfg.PlayerName),
		game.WithAutopilot(true),
	)
	result := session.RunFor(time.Duration(seconds*float64(time.Second)), simulateFrame, nil)

	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(simulateReport{Seed: seed, Result: result})
	}
	fmt.Fprintf(w, "seed %d\n", seed)
	fmt.Fprintln(w, result.HUD.String())
	fmt.Fprintf(w, "distance %.1fm in %s (%d frames)\n", result.HUD.Distance, result.Elapsed, result.Frames)
	if result.Hit != nil {
		fmt.Fprintf(w, "crashed into %s at segment %d\n", result.Hit.Kind, result.Hit.Segment)
	} else {
		fmt.Fprintln(w, "no collision")
	}
	return nil
}

// runScores prints the leaderboard from the local store or a running server.
func runScores(ctx context.Context, w io.Writer, cfg *configpkg.Config, grpcAddr string) error {
	ctx, cancel := context.WithTimeout(ctx, scoresTimeout)
	defer cancel()

	var (
		entries []scores.Entry
		err     error
	)
	if addr := strings.TrimSpace(grpcAddr); addr != "" {
		entries, err = remoteScores(ctx, addr, cfg.GRPCSecret)
	} else {
		entries, err = newScoreStore(cfg).TopScores(ctx)
	}
	if err != nil {
		return fmt.Errorf("top scores: %w", err)
	}
	for _, line := range scores.Render(entries) {
		fmt.Fprintln(w, line)
	}
	return nil
}

func remoteScores(ctx context.Context, addr, secret string) ([]scores.Entry, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if secret != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(sharedSecretCredentials(secret)))
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	list, err := grpcapi.NewClient(conn).TopScores(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	return grpcapi.EntriesFromList(list), nil
}

// runChatToken mints a chat token the hub accepts as auth_token.
func runChatToken(w io.Writer, cfg *configpkg.Config, name string, ttl time.Duration) error {
	if cfg.ChatSecret == "" {
		return errors.New("DRIVE_CHAT_SECRET is not set")
	}
	verifier, err := newChatVerifier(cfg.ChatSecret)
	if err != nil {
		return err
	}
	token, err := verifier.Issue(name, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, token)
	return nil
}
