package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/logging"
	"endlessdrive/server/internal/state"
)

// ErrNoReplay is returned by DumpReplay before any run was recorded.
var ErrNoReplay = errors.New("no replay recorded")

// DefaultQueueSize bounds the observations waiting for the recorder worker.
const DefaultQueueSize = 1024

// Stats summarises recorder health for monitoring endpoints.
type Stats struct {
	Recording      bool      `json:"recording"`
	ActiveDir      string    `json:"active_dir,omitempty"`
	Runs           int64     `json:"runs"`
	Events         uint64    `json:"events"`
	Frames         uint64    `json:"frames"`
	Dropped        uint64    `json:"dropped"`
	Errors         uint64    `json:"errors"`
	LastBundle     string    `json:"last_bundle,omitempty"`
	LastBundleTime time.Time `json:"last_bundle_time"`
}

type recorderItem struct {
	frame *game.Frame
	event *state.Event
	flush chan dumpResult
}

type dumpResult struct {
	dir string
	err error
}

// RecorderOption customises a RunRecorder.
type RecorderOption func(*RunRecorder)

// WithRecorderClock overrides the wall clock used for bundle names.
func WithRecorderClock(clock func() time.Time) RecorderOption {
	return func(r *RunRecorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithRecorderTuning stores the gameplay tuning in every bundle header.
func WithRecorderTuning(tuning Tuning) RecorderOption {
	return func(r *RunRecorder) { r.tuning = &tuning }
}

// WithRecorderCleaner sweeps retention after every completed bundle.
func WithRecorderCleaner(cleaner *Cleaner) RecorderOption {
	return func(r *RunRecorder) { r.cleaner = cleaner }
}

// WithRecorderLogger overrides the recorder logger.
func WithRecorderLogger(logger *logging.Logger) RecorderOption {
	return func(r *RunRecorder) {
		if logger != nil {
			r.log = logger
		}
	}
}

// WithQueueSize sets the observation buffer length.
func WithQueueSize(size int) RecorderOption {
	return func(r *RunRecorder) {
		if size > 0 {
			r.queueSize = size
		}
	}
}

// RunRecorder writes one replay bundle per run. It observes a game session
// without blocking it: observations are queued and a worker goroutine owns
// the writers. Observations are dropped when the queue is full.
type RunRecorder struct {
	root      string
	now       func() time.Time
	tuning    *Tuning
	cleaner   *Cleaner
	log       *logging.Logger
	queueSize int

	queue   chan recorderItem
	done    chan struct{}
	sendMu  sync.RWMutex
	closed  bool
	dropped atomic.Uint64

	statsMu sync.Mutex
	stats   Stats

	// Owned by the worker goroutine.
	writer    *Writer
	header    Header
	progress  Outcome
	finishing bool
	lastFrame uint64
}

// NewRunRecorder creates root if needed and starts the recorder worker.
func NewRunRecorder(root string, opts ...RecorderOption) (*RunRecorder, error) {
	if root == "" {
		return nil, fmt.Errorf("replay directory must be provided")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	r := &RunRecorder{root: root, now: time.Now, log: logging.L(), queueSize: DefaultQueueSize}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.queue = make(chan recorderItem, r.queueSize)
	r.done = make(chan struct{})
	go r.run()
	return r, nil
}

// ObserveFrame queues a frame for the active bundle.
func (r *RunRecorder) ObserveFrame(frame game.Frame) {
	r.enqueue(recorderItem{frame: &frame})
}

// ObserveEvent queues an event. run_started opens a bundle and collision
// closes it once the final frame has been written.
func (r *RunRecorder) ObserveEvent(event state.Event) {
	event = event.Clone()
	r.enqueue(recorderItem{event: &event})
}

func (r *RunRecorder) enqueue(item recorderItem) {
	if r == nil {
		return
	}
	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- item:
	default:
		r.dropped.Add(1)
	}
}

// DumpReplay flushes the active bundle to disk and returns its directory. With
// no active run it returns the most recent completed bundle.
func (r *RunRecorder) DumpReplay(ctx context.Context) (string, error) {
	if r == nil {
		return "", ErrNoReplay
	}
	reply := make(chan dumpResult, 1)
	r.sendMu.RLock()
	if r.closed {
		r.sendMu.RUnlock()
		return "", fmt.Errorf("recorder closed")
	}
	select {
	case r.queue <- recorderItem{flush: reply}:
		r.sendMu.RUnlock()
	case <-ctx.Done():
		r.sendMu.RUnlock()
		return "", ctx.Err()
	}
	select {
	case result := <-reply:
		return result.dir, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stats returns a copy of the recorder counters.
func (r *RunRecorder) Stats() Stats {
	if r == nil {
		return Stats{}
	}
	r.statsMu.Lock()
	stats := r.stats
	r.statsMu.Unlock()
	stats.Dropped = r.dropped.Load()
	return stats
}

// Close drains the queue, finishes the active bundle and stops the worker.
func (r *RunRecorder) Close() error {
	if r == nil {
		return nil
	}
	r.sendMu.Lock()
	if r.closed {
		r.sendMu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.queue)
	r.sendMu.Unlock()
	<-r.done
	return nil
}

func (r *RunRecorder) run() {
	defer close(r.done)
	for item := range r.queue {
		switch {
		case item.frame != nil:
			r.handleFrame(*item.frame)
		case item.event != nil:
			r.handleEvent(*item.event)
		case item.flush != nil:
			item.flush <- r.handleDump()
		}
	}
	//1.- A run still in progress at shutdown is kept as an unfinished bundle.
	r.finish()
}

func (r *RunRecorder) handleFrame(frame game.Frame) {
	r.lastFrame = frame.Number
	if r.writer == nil {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		r.fail("encode frame", err)
		return
	}
	if err := r.writer.AppendFrame(frame.Number, runMillis(frame.RunTime), payload); err != nil {
		r.fail("append frame", err)
		return
	}
	r.progress.Frames++
	r.progress.Score = frame.Score
	r.progress.Distance = frame.Distance
	r.progress.RunTime = frame.RunTime
	r.bump(0, 1)

	//2.- The collision event precedes the frame that shows the crash, so the bundle closes here.
	if r.finishing {
		r.finish()
	}
}

func (r *RunRecorder) handleEvent(event state.Event) {
	if event.Type == state.EventRunStarted {
		r.finish()
		r.open(event)
	}
	if r.writer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		r.fail("encode event", err)
		return
	}
	if err := r.writer.AppendEvent(r.lastFrame, runMillis(event.RunTime), event.Type, payload); err != nil {
		r.fail("append event", err)
		return
	}
	r.bump(1, 0)

	if event.Type == state.EventCollision {
		r.progress.Crashed = true
		r.progress.Obstacle = event.Metadata["kind"]
		r.progress.Segment = event.Segment
		if score, err := strconv.Atoi(event.Metadata["score"]); err == nil {
			r.progress.Score = score
		}
		if distance, err := strconv.ParseFloat(event.Metadata["distance"], 64); err == nil {
			r.progress.Distance = distance
		}
		r.finishing = true
	}
}

func (r *RunRecorder) handleDump() dumpResult {
	if r.writer != nil {
		r.writer.SetHeader(r.currentHeader())
		if err := r.writer.Flush(); err != nil {
			r.fail("flush replay", err)
			return dumpResult{err: err}
		}
		return dumpResult{dir: r.writer.Directory()}
	}
	stats := r.Stats()
	if stats.LastBundle == "" {
		return dumpResult{err: ErrNoReplay}
	}
	return dumpResult{dir: stats.LastBundle}
}

func (r *RunRecorder) open(event state.Event) {
	run := event.Metadata["run"]
	writer, _, err := NewWriter(r.root, "run-"+run, r.now)
	if err != nil {
		r.fail("open replay", err)
		return
	}
	header := Header{
		Player: event.Metadata["player"],
		Mode:   event.Metadata["mode"],
		Tuning: r.tuning,
	}
	header.Run, _ = strconv.ParseUint(run, 10, 64)
	header.Seed, _ = strconv.ParseUint(event.Metadata["seed"], 10, 64)

	r.writer = writer
	r.header = header
	r.progress = Outcome{}
	r.finishing = false
	writer.SetHeader(header)

	r.statsMu.Lock()
	r.stats.Recording = true
	r.stats.ActiveDir = writer.Directory()
	r.statsMu.Unlock()
	r.log.Debug("replay recording started", logging.String("directory", writer.Directory()))
}

func (r *RunRecorder) finish() {
	if r.writer == nil {
		return
	}
	writer := r.writer
	writer.SetHeader(r.currentHeader())
	if err := writer.Close(); err != nil {
		r.fail("close replay", err)
	}
	r.writer = nil
	r.finishing = false

	r.statsMu.Lock()
	r.stats.Recording = false
	r.stats.ActiveDir = ""
	r.stats.Runs++
	r.stats.LastBundle = writer.Directory()
	r.stats.LastBundleTime = r.now().UTC()
	r.statsMu.Unlock()

	r.log.Info("replay bundle written",
		logging.String("directory", writer.Directory()),
		logging.Int("score", r.progress.Score),
		logging.Bool("crashed", r.progress.Crashed),
	)
	r.cleaner.RunOnce()
}

func (r *RunRecorder) currentHeader() Header {
	header := r.header
	outcome := r.progress
	header.Outcome = &outcome
	return header
}

func (r *RunRecorder) bump(events, frames uint64) {
	r.statsMu.Lock()
	r.stats.Events += events
	r.stats.Frames += frames
	r.statsMu.Unlock()
}

func (r *RunRecorder) fail(action string, err error) {
	r.statsMu.Lock()
	r.stats.Errors++
	r.statsMu.Unlock()
	r.log.Warn("replay "+action+" failed", logging.Error(err))
}

func runMillis(seconds float64) int64 {
	return int64(seconds * 1000)
}

var _ game.Observer = (*RunRecorder)(nil)
