package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var runIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Bundle file names inside a run directory.
const (
	ManifestFile = "manifest.json"
	HeaderFile   = "header.json"
	EventsFile   = "events.jsonl.sz"
	FramesFile   = "frames.bin.zst"
)

// FrameInterval is the cadence at which buffered frames reach the zstd stream.
const FrameInterval = 200 * time.Millisecond

// frameRecordSize is the fixed prefix in front of every frame payload:
// frame number, run milliseconds, capture time and payload length.
const frameRecordSize = 8 + 8 + 8 + 4

type frameBlob struct {
	Frame      uint64
	RunMs      int64
	CapturedAt time.Time
	Payload    []byte
}

// eventRecord is one line of the snappy-compressed JSONL event log.
type eventRecord struct {
	Frame      uint64          `json:"frame"`
	RunMs      int64           `json:"run_ms"`
	CapturedAt string          `json:"captured_at"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Writer streams a single run to disk: events as snappy JSONL, frames as a
// zstd stream of length-prefixed records.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	lastFlush   time.Time
	header      Header
	events      uint64
	frames      uint64
	closed      bool
}

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	FrameIntervalMs int    `json:"frame_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
}

// NewWriter prepares the run directory under root and opens compressed sinks.
func NewWriter(root, runID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := runIDCleaner.ReplaceAllString(runID, "")
	if cleaned == "" {
		cleaned = "run"
	}
	created := clock().UTC()
	folder := fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405.000Z"))
	path := filepath.Join(root, folder)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, EventsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	frameFile, err := os.Create(filepath.Join(path, FramesFile))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventStream.Close()
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}
	closeAll := func() {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
	}

	manifest := Manifest{
		Version:         2,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FrameIntervalMs: int(FrameInterval / time.Millisecond),
		EventsPath:      EventsFile,
		FramesPath:      FramesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		closeAll()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), data, 0o644); err != nil {
		closeAll()
		return nil, Manifest{}, err
	}

	writer := &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
		header:      Header{SchemaVersion: HeaderSchemaVersion},
	}
	return writer, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// Counts reports how many events and frames were accepted so far.
func (w *Writer) Counts() (events, frames uint64) {
	if w == nil {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events, w.frames
}

// AppendEvent writes a single JSON event line to the compressed event log.
// payload must be valid JSON or empty.
func (w *Writer) AppendEvent(frame uint64, runMs int64, eventType string, payload json.RawMessage) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return fmt.Errorf("event %q payload is not valid json", eventType)
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}

	//1.- Each line is self-describing so JSONL tooling can stream it without the frames.
	line, err := json.Marshal(eventRecord{
		Frame:      frame,
		RunMs:      runMs,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       eventType,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.events++
	return w.eventStream.Flush()
}

// AppendFrame buffers a frame payload until the FrameInterval cadence is reached.
func (w *Writer) AppendFrame(frame uint64, runMs int64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}

	w.pending = append(w.pending, frameBlob{Frame: frame, RunMs: runMs, CapturedAt: captured, Payload: clone})
	w.frames++
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= FrameInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// SetHeader replaces the header persisted when the writer closes. The schema
// version and file pointer are filled in by the writer.
func (w *Writer) SetHeader(header Header) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if header.Tuning != nil {
		tuning := *header.Tuning
		header.Tuning = &tuning
	}
	if header.Outcome != nil {
		outcome := *header.Outcome
		header.Outcome = &outcome
	}
	w.header = header
}

// Flush forces pending frames to be written regardless of cadence and
// rewrites the header so a live bundle is readable mid-run.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}

	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.frameStream.Flush(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return w.writeHeaderLocked()
}

// Close synchronously flushes all buffers and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Attempt every flush and close, surfacing the first failure.
	var firstErr error
	if err := w.writeHeaderLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.flushLocked(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.eventFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameStream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := w.frameFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (w *Writer) writeHeaderLocked() error {
	header := w.header
	header.SchemaVersion = HeaderSchemaVersion
	header.FilePointer = ManifestFile
	return WriteHeader(filepath.Join(w.dir, HeaderFile), header)
}

// flushLocked writes buffered frames to the zstd stream; callers must hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	prefix := make([]byte, frameRecordSize)
	for _, frame := range w.pending {
		binary.LittleEndian.PutUint64(prefix[0:8], frame.Frame)
		binary.LittleEndian.PutUint64(prefix[8:16], uint64(frame.RunMs))
		binary.LittleEndian.PutUint64(prefix[16:24], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(prefix[24:28], uint32(len(frame.Payload)))
		if _, err := w.frameStream.Write(prefix); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}
