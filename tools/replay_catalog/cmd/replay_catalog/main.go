package main

import (
	"flag"
	"fmt"
	"os"

	"endlessdrive/server/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing run bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		header := entry.Header
		fmt.Printf("run %d (schema %d) seed %d", header.Run, header.SchemaVersion, header.Seed)
		if header.Player != "" {
			fmt.Printf(" player %s", header.Player)
		}
		fmt.Println()
		if outcome := header.Outcome; outcome != nil {
			status := "unfinished"
			if outcome.Crashed {
				status = "hit " + outcome.Obstacle
			}
			fmt.Printf("  score %d, %.1fm in %.1fs, %s\n", outcome.Score, outcome.Distance, outcome.RunTime, status)
		}
		fmt.Printf("  manifest: %s\n", entry.ManifestPath)
	}
	if best, ok := replaycatalog.Best(entries); ok {
		fmt.Printf("best: run %d with %d\n", best.Header.Run, best.Header.Outcome.Score)
	}
}
