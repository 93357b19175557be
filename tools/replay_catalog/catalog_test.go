package replaycatalog

import (
	"os"
	"path/filepath"
	"testing"

	"endlessdrive/server/internal/replay"
)

func TestListCollectsHeaders(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "run-2", replay.Header{Run: 2, Seed: 9, Outcome: &replay.Outcome{Score: 80, Crashed: true}})
	writeHeader(t, dir, "run-1", replay.Header{Run: 1, Seed: 9, Outcome: &replay.Outcome{Score: 140, Crashed: true}})
	writeHeader(t, dir, "run-3", replay.Header{Run: 3, Seed: 9, Outcome: &replay.Outcome{Score: 900}})

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 || entries[0].Header.Run != 1 || entries[2].Header.Run != 3 {
		t.Fatalf("expected entries ordered by run, got %+v", entries)
	}
	if entries[0].ManifestPath != filepath.Join(dir, "run-1", replay.ManifestFile) {
		t.Fatalf("unexpected manifest path: %q", entries[0].ManifestPath)
	}

	best, ok := Best(entries)
	if !ok || best.Header.Run != 1 {
		t.Fatalf("expected run 1 to be the best finished run, got %+v", best)
	}

	payload, err := MarshalEntries(entries)
	if err != nil {
		t.Fatalf("MarshalEntries: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected JSON payload to be non-empty")
	}
}

func TestListRejectsFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := List(path); err == nil {
		t.Fatalf("expected a file root to be rejected")
	}
	if _, err := List(" "); err == nil {
		t.Fatalf("expected a blank root to be rejected")
	}
}

func writeHeader(t *testing.T, root, name string, header replay.Header) {
	t.Helper()
	header.SchemaVersion = replay.HeaderSchemaVersion
	header.FilePointer = replay.ManifestFile
	if err := replay.WriteHeader(filepath.Join(root, name, replay.HeaderFile), header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
}
