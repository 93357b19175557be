package replay

import (
	"path/filepath"
	"testing"
)

func TestWriteAndReadHeader(t *testing.T) {
	dir := t.TempDir()
	tuning := DefaultTuning()
	header := Header{
		SchemaVersion: HeaderSchemaVersion,
		Run:           3,
		Seed:          42,
		Player:        "ana",
		Tuning:        &tuning,
		Outcome:       &Outcome{Score: 120, Crashed: true, Obstacle: "barrier"},
		FilePointer:   ManifestFile,
	}
	path := filepath.Join(dir, HeaderFile)
	if err := WriteHeader(path, header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	loaded, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if loaded.Seed != 42 || loaded.Run != 3 || loaded.Player != "ana" {
		t.Fatalf("unexpected header values: %+v", loaded)
	}
	if loaded.Tuning == nil || loaded.Tuning.Road.SegmentLength != tuning.Road.SegmentLength || len(loaded.Tuning.Road.ObstacleLanes) != len(tuning.Road.ObstacleLanes) {
		t.Fatalf("expected road tuning to round trip, got %+v", loaded.Tuning)
	}
	if loaded.Outcome == nil || loaded.Outcome.Obstacle != "barrier" || !loaded.Outcome.Crashed {
		t.Fatalf("unexpected outcome: %+v", loaded.Outcome)
	}
}

func TestHeaderValidation(t *testing.T) {
	if err := (Header{FilePointer: ManifestFile}).Validate(); err == nil {
		t.Fatalf("expected missing schema version to fail")
	}
	if err := (Header{SchemaVersion: 1, FilePointer: "  "}).Validate(); err == nil {
		t.Fatalf("expected blank file pointer to fail")
	}
	if err := WriteHeader(filepath.Join(t.TempDir(), HeaderFile), Header{}); err == nil {
		t.Fatalf("expected WriteHeader to validate")
	}
}
