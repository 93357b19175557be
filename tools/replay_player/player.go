package replayplayer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/replay"
	"endlessdrive/server/internal/state"
)

// Summary condenses a run bundle for inspection.
type Summary struct {
	Dir        string                 `json:"dir"`
	Manifest   replay.Manifest        `json:"manifest"`
	Header     replay.Header          `json:"header"`
	Frames     int                    `json:"frames"`
	Events     map[string]int         `json:"events"`
	FinalFrame *game.Frame            `json:"final_frame,omitempty"`
	Collision  *state.Event           `json:"collision,omitempty"`
	Problems   []string               `json:"problems,omitempty"`
	Timeline   []replay.TimelineEntry `json:"timeline,omitempty"`
}

// Consistent reports whether the recorded frames agree with the header.
func (s Summary) Consistent() bool { return len(s.Problems) == 0 }

// Load resolves path (a run directory or its manifest.json), reads the bundle
// and cross-checks the outcome against the recorded timeline.
func Load(path string, withTimeline bool) (Summary, error) {
	if path == "" {
		return Summary{}, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Summary{}, err
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}
	bundle, err := replay.ReadBundle(dir)
	if err != nil {
		return Summary{}, err
	}
	if bundle.Manifest.Version != 2 {
		return Summary{}, fmt.Errorf("unsupported manifest version %d", bundle.Manifest.Version)
	}

	summary := Summary{Dir: dir, Manifest: bundle.Manifest, Header: bundle.Header, Events: map[string]int{}}
	//1.- Walk the merged timeline once, decoding only what the summary needs.
	err = bundle.Replay(func(entry replay.TimelineEntry) error {
		switch entry.Kind {
		case replay.EntryFrame:
			summary.Frames++
			var frame game.Frame
			if err := json.Unmarshal(entry.Payload, &frame); err != nil {
				return fmt.Errorf("frame %d: %w", entry.Frame, err)
			}
			summary.FinalFrame = &frame
		case replay.EntryEvent:
			summary.Events[entry.Type]++
			if entry.Type == state.EventCollision {
				var event state.Event
				if err := json.Unmarshal(entry.Payload, &event); err != nil {
					return fmt.Errorf("collision event: %w", err)
				}
				summary.Collision = &event
			}
		}
		if withTimeline {
			summary.Timeline = append(summary.Timeline, entry)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	summary.Problems = check(summary)
	return summary, nil
}

func check(s Summary) []string {
	var problems []string
	if s.Events[state.EventRunStarted] != 1 {
		problems = append(problems, fmt.Sprintf("expected one run_started event, found %d", s.Events[state.EventRunStarted]))
	}
	outcome := s.Header.Outcome
	if outcome == nil {
		return append(problems, "header has no outcome")
	}
	if outcome.Crashed != (s.Collision != nil) {
		problems = append(problems, "outcome and collision events disagree")
	}
	if uint64(s.Frames) != outcome.Frames {
		problems = append(problems, fmt.Sprintf("header counts %d frames, bundle has %d", outcome.Frames, s.Frames))
	}
	if s.FinalFrame != nil && s.FinalFrame.Score != outcome.Score {
		problems = append(problems, fmt.Sprintf("final frame scored %d, header says %d", s.FinalFrame.Score, outcome.Score))
	}
	return problems
}
