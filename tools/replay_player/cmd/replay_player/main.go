package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"endlessdrive/server/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a run directory or manifest.json")
	timeline := flag.Bool("timeline", false, "include every frame and event in the output")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	summary, err := replayplayer.Load(*path, *timeline)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
	if !summary.Consistent() {
		os.Exit(4)
	}
}
