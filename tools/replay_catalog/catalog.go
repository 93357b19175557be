package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"endlessdrive/server/internal/replay"
)

// Entry captures a run header alongside its resolved manifest path.
type Entry struct {
	HeaderPath   string        `json:"header_path"`
	ManifestPath string        `json:"manifest_path"`
	Header       replay.Header `json:"header"`
}

// Finished reports whether the run ended before the bundle was closed.
func (e Entry) Finished() bool {
	return e.Header.Outcome != nil && e.Header.Outcome.Crashed
}

// List walks the directory tree and returns parsed run headers ordered by run
// number.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != replay.HeaderFile {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		manifest := header.FilePointer
		if !filepath.IsAbs(manifest) {
			manifest = filepath.Join(filepath.Dir(path), manifest)
		}
		entries = append(entries, Entry{HeaderPath: path, ManifestPath: manifest, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.Run == entries[j].Header.Run {
			return entries[i].ManifestPath < entries[j].ManifestPath
		}
		return entries[i].Header.Run < entries[j].Header.Run
	})
	return entries, nil
}

// Best returns the highest scoring finished run.
func Best(entries []Entry) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for _, entry := range entries {
		if !entry.Finished() {
			continue
		}
		if !found || entry.Header.Outcome.Score > best.Header.Outcome.Score {
			best, found = entry, true
		}
	}
	return best, found
}

// MarshalEntries produces a stable JSON representation of the entries for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
