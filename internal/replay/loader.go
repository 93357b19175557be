package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Timeline entry kinds.
const (
	EntryFrame = "frame"
	EntryEvent = "event"
)

// maxEventLine bounds a single JSONL event record.
const maxEventLine = 1 << 20

// TimelineEntry represents a single replay datum ready for deterministic iteration.
type TimelineEntry struct {
	Frame      uint64          `json:"frame"`
	RunMs      int64           `json:"run_ms"`
	CapturedAt time.Time       `json:"captured_at"`
	Kind       string          `json:"kind"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Bundle is a run directory loaded back from disk.
type Bundle struct {
	Dir      string
	Manifest Manifest
	Header   Header
	entries  []TimelineEntry
}

// ReadBundle loads the manifest, header, events and frames of a run directory.
// A missing header is tolerated for bundles whose run is still in progress.
func ReadBundle(dir string) (*Bundle, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Dir: dir}
	if err := json.Unmarshal(data, &bundle.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	header, err := ReadHeader(filepath.Join(dir, HeaderFile))
	switch {
	case err == nil:
		bundle.Header = header
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read header: %w", err)
	}

	//1.- Events and frames are decoded independently then merged on run time.
	events, err := readEvents(filepath.Join(dir, bundle.Manifest.EventsPath))
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	frames, err := readFrames(filepath.Join(dir, bundle.Manifest.FramesPath))
	if err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	entries := append(events, frames...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].RunMs != entries[j].RunMs {
			return entries[i].RunMs < entries[j].RunMs
		}
		if entries[i].Frame != entries[j].Frame {
			return entries[i].Frame < entries[j].Frame
		}
		//2.- A frame precedes the events it produced.
		return entries[i].Kind == EntryFrame && entries[j].Kind != EntryFrame
	})
	bundle.entries = entries
	return bundle, nil
}

func readEvents(path string) ([]TimelineEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	var entries []TimelineEntry
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record eventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, err
		}
		captured, err := time.Parse(time.RFC3339Nano, record.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse event captured_at: %w", err)
		}
		entries = append(entries, TimelineEntry{
			Frame:      record.Frame,
			RunMs:      record.RunMs,
			CapturedAt: captured,
			Kind:       EntryEvent,
			Type:       record.Type,
			Payload:    append(json.RawMessage(nil), record.Payload...),
		})
	}
	return entries, scanner.Err()
}

func readFrames(path string) ([]TimelineEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var entries []TimelineEntry
	prefix := make([]byte, frameRecordSize)
	for {
		if _, err := io.ReadFull(decoder, prefix); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, fmt.Errorf("frame prefix: %w", err)
		}
		size := binary.LittleEndian.Uint32(prefix[24:28])
		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, fmt.Errorf("frame payload: %w", err)
		}
		entries = append(entries, TimelineEntry{
			Frame:      binary.LittleEndian.Uint64(prefix[0:8]),
			RunMs:      int64(binary.LittleEndian.Uint64(prefix[8:16])),
			CapturedAt: time.Unix(0, int64(binary.LittleEndian.Uint64(prefix[16:24]))).UTC(),
			Kind:       EntryFrame,
			Payload:    payload,
		})
	}
}

// Replay iterates over the loaded entries in deterministic order.
func (b *Bundle) Replay(apply func(TimelineEntry) error) error {
	if b == nil {
		return fmt.Errorf("bundle not loaded")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range b.entries {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}

// Entries exposes a copy of the timeline for external assertions.
func (b *Bundle) Entries() []TimelineEntry {
	if b == nil {
		return nil
	}
	out := make([]TimelineEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Events returns only the event entries, optionally filtered by type.
func (b *Bundle) Events(eventType string) []TimelineEntry {
	if b == nil {
		return nil
	}
	var out []TimelineEntry
	for _, entry := range b.entries {
		if entry.Kind != EntryEvent {
			continue
		}
		if eventType != "" && entry.Type != eventType {
			continue
		}
		out = append(out, entry)
	}
	return out
}
