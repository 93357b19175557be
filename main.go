package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "endlessdrive:", err)
		os.Exit(1)
	}
}

// newCommand builds the command tree. Every subcommand reads the DRIVE_*
// environment first; flags only override what they name.
func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "endlessdrive",
		Usage: "Endless road driving game server",
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Run the autopilot session with the HTTP, chat and gRPC surfaces",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Category: "Listeners",
						Name:     "addr",
						Usage:    "Overrides DRIVE_ADDR for the HTTP listener",
					},
					&cli.StringFlag{
						Category: "Listeners",
						Name:     "grpc-addr",
						Usage:    "Overrides DRIVE_GRPC_ADDR for the gRPC listener",
					},
					&cli.StringFlag{
						Category: "Storage",
						Name:     "replay-dir",
						Usage:    "Overrides DRIVE_REPLAY_DIR; empty keeps replays disabled",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return runServe(ctx, cfg)
				},
			},
			{
				Name:    "play",
				Aliases: []string{"p"},
				Usage:   "Drive in the terminal HUD",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Name scores are saved under",
					},
					&cli.Uint64Flag{
						Name:  "seed",
						Usage: "Road seed; zero picks one from the clock",
					},
					&cli.BoolFlag{
						Name:  "day",
						Usage: "Start in day mode instead of night",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					if cmd.IsSet("name") {
						cfg.PlayerName = cmd.String("name")
					}
					return runPlay(cfg, cmd.Bool("day"))
				},
			},
			{
				Name:  "simulate",
				Usage: "Run a headless autopilot drive and print the outcome",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  "seconds",
						Usage: "Simulated run length",
						Value: 30,
					},
					&cli.Uint64Flag{
						Name:  "seed",
						Usage: "Road seed; zero picks one from the clock",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the result as JSON",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return runSimulate(cmd.Root().Writer, cfg, cmd.Float64("seconds"), cmd.Bool("json"))
				},
			},
			{
				Name:  "scores",
				Usage: "Print the top ten scores",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "grpc",
						Usage: "Query a running server at this gRPC address instead of the local store",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return runScores(ctx, cmd.Root().Writer, cfg, cmd.String("grpc"))
				},
			},
			{
				Name:  "chat-token",
				Usage: "Issue a signed chat token for DRIVE_CHAT_SECRET",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Display name carried by the token",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime",
						Value: chatTokenTTL,
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return runChatToken(cmd.Root().Writer, cfg, cmd.String("name"), cmd.Duration("ttl"))
				},
			},
		},
	}
}
