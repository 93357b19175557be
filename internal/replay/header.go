package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"endlessdrive/server/internal/gameplay"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 2

// Tuning is the full gameplay configuration a run was played with. Together
// with the seed it is enough to regenerate the road.
type Tuning struct {
	Vehicle gameplay.VehicleTuning `json:"vehicle"`
	Road    gameplay.RoadTuning    `json:"road"`
	Traffic gameplay.TrafficTuning `json:"traffic"`
	Session gameplay.SessionTuning `json:"session"`
}

// DefaultTuning bundles the embedded gameplay defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Vehicle: gameplay.DefaultVehicleTuning(),
		Road:    gameplay.DefaultRoadTuning(),
		Traffic: gameplay.DefaultTrafficTuning(),
		Session: gameplay.DefaultSessionTuning(),
	}
}

// Outcome summarises how a recorded run ended.
type Outcome struct {
	Score    int     `json:"score"`
	Distance float64 `json:"distance"`
	RunTime  float64 `json:"run_time"`
	Frames   uint64  `json:"frames"`
	Crashed  bool    `json:"crashed"`
	Obstacle string  `json:"obstacle,omitempty"`
	Segment  int     `json:"segment,omitempty"`
}

// Header represents the metadata persisted alongside a replay bundle.
type Header struct {
	SchemaVersion int      `json:"schema_version"`
	Run           uint64   `json:"run"`
	Seed          uint64   `json:"seed"`
	Player        string   `json:"player,omitempty"`
	Mode          string   `json:"mode,omitempty"`
	Tuning        *Tuning  `json:"tuning,omitempty"`
	Outcome       *Outcome `json:"outcome,omitempty"`
	FilePointer   string   `json:"file_pointer"`
}

// Validate ensures the header contains enough information for catalogue tooling.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	//1.- Ensure catalogue tooling can locate the replay artefact reliably.
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to the provided file path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	//1.- Encode using indented JSON so manual inspection remains readable.
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	//2.- Terminate with a newline so POSIX tooling can append easily.
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and decodes a replay header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
