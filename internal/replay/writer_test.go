package replay

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriterAppendAndFlushCadence(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2024, 7, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	writer, manifest, err := NewWriter(tmp, "Run 7!", clock)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	if filepath.Base(writer.Directory()) != "Run7-20240710T120000.000Z" {
		t.Fatalf("unexpected bundle directory %q", writer.Directory())
	}
	if manifest.FrameIntervalMs != 200 {
		t.Fatalf("expected frame interval 200 ms, got %d", manifest.FrameIntervalMs)
	}
	writer.SetHeader(Header{Run: 7, Seed: 99, Player: "ana"})

	if err := writer.AppendEvent(0, 0, "run_started", json.RawMessage(`{"run":"7"}`)); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := writer.AppendEvent(0, 0, "broken", json.RawMessage(`{`)); err == nil {
		t.Fatalf("expected invalid payload to be rejected")
	}

	payload := []byte(`{"frame":1}`)
	for i := 1; i <= 3; i++ {
		if err := writer.AppendFrame(uint64(i), int64(i*100), payload); err != nil {
			t.Fatalf("append frame %d: %v", i, err)
		}
		now = now.Add(120 * time.Millisecond)
	}
	if events, frames := writer.Counts(); events != 1 || frames != 3 {
		t.Fatalf("expected 1 event and 3 frames, got %d/%d", events, frames)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := writer.AppendFrame(4, 400, payload); err == nil {
		t.Fatalf("expected append after close to fail")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(writer.Directory(), ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var onDisk Manifest
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if onDisk.EventsPath != EventsFile || onDisk.FramesPath != FramesFile {
		t.Fatalf("unexpected manifest paths: %+v", onDisk)
	}

	bundle, err := ReadBundle(writer.Directory())
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if bundle.Header.Seed != 99 || bundle.Header.FilePointer != ManifestFile {
		t.Fatalf("unexpected header: %+v", bundle.Header)
	}
	entries := bundle.Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 timeline entries, got %d", len(entries))
	}
	if entries[0].Kind != EntryEvent || entries[0].Type != "run_started" {
		t.Fatalf("expected the start event first, got %+v", entries[0])
	}
	for i, entry := range entries[1:] {
		if entry.Kind != EntryFrame || entry.Frame != uint64(i+1) || entry.RunMs != int64((i+1)*100) {
			t.Fatalf("unexpected frame entry %d: %+v", i, entry)
		}
		if string(entry.Payload) != string(payload) {
			t.Fatalf("unexpected frame payload %q", entry.Payload)
		}
	}
}

func TestWriterFlushWritesHeader(t *testing.T) {
	tmp := t.TempDir()
	writer, _, err := NewWriter(tmp, "", nil)
	if err != nil {
		t.Fatalf("create writer: %v", err)
	}
	defer writer.Close()

	writer.SetHeader(Header{Seed: 5})
	if err := writer.AppendFrame(1, 10, []byte{0xAA}); err != nil {
		t.Fatalf("append frame: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	header, err := ReadHeader(filepath.Join(writer.Directory(), HeaderFile))
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header.Seed != 5 || header.SchemaVersion != HeaderSchemaVersion {
		t.Fatalf("unexpected live header: %+v", header)
	}
	if filepath.Base(writer.Directory())[:4] != "run-" {
		t.Fatalf("expected default run prefix, got %q", writer.Directory())
	}
}
