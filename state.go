package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"endlessdrive/server/internal/chat"
	"endlessdrive/server/internal/game"
	"endlessdrive/server/internal/logging"
)

const (
	snapshotChatKey    = "chat"
	snapshotSessionKey = "session"
)

type snapshotOption func(*StateSnapshotter)

// WithSnapshotClock overrides the snapshot time source; primarily used in tests.
func WithSnapshotClock(clock func() time.Time) snapshotOption {
	return func(s *StateSnapshotter) {
		if clock != nil {
			s.now = clock
		}
	}
}

// StateSnapshotter persists small pieces of server state, keyed by name, so
// that a restarted server resumes the chat history and session preferences.
type StateSnapshotter struct {
	mu       sync.RWMutex
	path     string
	interval time.Duration
	log      *logging.Logger
	now      func() time.Time

	state   map[string]json.RawMessage
	order   []string
	dirty   bool
	sources []snapshotSource

	flushCh   chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

type snapshotSource struct {
	key     string
	capture func() any
}

type snapshotFile struct {
	SavedAt time.Time        `json:"saved_at"`
	Records []snapshotRecord `json:"records"`
}

type snapshotRecord struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// sessionPreferences is what survives a restart of the server-side session.
type sessionPreferences struct {
	Mode       game.Mode `json:"mode"`
	PlayerName string    `json:"player_name"`
}

// NewStateSnapshotter constructs a snapshotter backed by the provided file
// path. An empty path or non-positive interval disables persistence.
func NewStateSnapshotter(path string, interval time.Duration, logger *logging.Logger, opts ...snapshotOption) (*StateSnapshotter, error) {
	if path == "" || interval <= 0 {
		return nil, nil
	}
	if logger == nil {
		logger = logging.L()
	}
	snapshot := &StateSnapshotter{
		path:     path,
		interval: interval,
		log:      logger,
		now:      time.Now,
		state:    make(map[string]json.RawMessage),
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(snapshot)
		}
	}
	if err := snapshot.load(); err != nil {
		return nil, err
	}
	go snapshot.loop()
	return snapshot, nil
}

func (s *StateSnapshotter) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range file.Records {
		if record.Key == "" || len(record.Payload) == 0 {
			continue
		}
		//1.- The file is indented, so payloads come back reformatted unless compacted.
		payload, err := compactPayload(record.Payload)
		if err != nil {
			s.log.Warn("state snapshot record skipped", logging.String("key", record.Key), logging.Error(err))
			continue
		}
		s.store(record.Key, payload)
	}
	return nil
}

// Track registers a capture func polled on every flush interval and on Close.
func (s *StateSnapshotter) Track(key string, capture func() any) {
	if s == nil || key == "" || capture == nil {
		return
	}
	s.mu.Lock()
	s.sources = append(s.sources, snapshotSource{key: key, capture: capture})
	s.mu.Unlock()
}

// Record stores the payload under key. Identical payloads leave the snapshot clean.
func (s *StateSnapshotter) Record(key string, payload []byte) {
	if s == nil || key == "" || len(payload) == 0 {
		return
	}
	compact, err := compactPayload(payload)
	if err != nil {
		s.log.Warn("state snapshot record rejected", logging.String("key", key), logging.Error(err))
		return
	}
	s.mu.Lock()
	if bytes.Equal(s.state[key], compact) {
		s.mu.Unlock()
		return
	}
	s.store(key, compact)
	s.dirty = true
	s.mu.Unlock()
	select {
	case s.flushCh <- struct{}{}:
	default:
	}
}

// compactPayload returns payload without insignificant whitespace, so
// equality checks compare content rather than layout.
func compactPayload(payload []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}

func (s *StateSnapshotter) store(key string, payload json.RawMessage) {
	if _, ok := s.state[key]; !ok {
		s.order = append(s.order, key)
	}
	s.state[key] = payload
}

// Payload returns a copy of the stored payload for key, or nil.
func (s *StateSnapshotter) Payload(key string) json.RawMessage {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload := s.state[key]
	if len(payload) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), payload...)
}

// Keys lists stored keys in the order they were first recorded.
func (s *StateSnapshotter) Keys() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *StateSnapshotter) capture() {
	s.mu.RLock()
	sources := append([]snapshotSource(nil), s.sources...)
	s.mu.RUnlock()
	for _, source := range sources {
		payload, err := json.Marshal(source.capture())
		if err != nil {
			s.log.Warn("state snapshot capture failed", logging.String("key", source.key), logging.Error(err))
			continue
		}
		s.Record(source.key, payload)
	}
}

func (s *StateSnapshotter) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)
	for {
		select {
		case <-ticker.C:
			s.capture()
			s.flush()
		case <-s.flushCh:
			s.flush()
		case <-s.stopCh:
			s.capture()
			s.flush()
			return
		}
	}
}

// Flush immediately persists the current snapshot state to disk.
func (s *StateSnapshotter) Flush() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	file := snapshotFile{SavedAt: s.now().UTC()}
	file.Records = make([]snapshotRecord, 0, len(s.order))
	for _, key := range s.order {
		if payload := s.state[key]; len(payload) > 0 {
			file.Records = append(file.Records, snapshotRecord{Key: key, Payload: payload})
		}
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}
	//1.- Write beside the target and rename so a crash never leaves half a file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *StateSnapshotter) flush() {
	if err := s.Flush(); err != nil {
		s.log.Error("failed to persist state snapshot", logging.Error(err))
	}
}

// Close captures the tracked sources one last time, flushes and stops the loop.
func (s *StateSnapshotter) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
	return nil
}

// restoreServerState applies a loaded snapshot to the session and chat feed.
func restoreServerState(snapshot *StateSnapshotter, session *game.Session, feed *chat.Feed, logger *logging.Logger) {
	if snapshot == nil {
		return
	}
	if logger == nil {
		logger = logging.L()
	}
	if raw := snapshot.Payload(snapshotSessionKey); raw != nil && session != nil {
		var prefs sessionPreferences
		if err := json.Unmarshal(raw, &prefs); err != nil {
			logger.Warn("ignoring session snapshot", logging.Error(err))
		} else {
			session.SetMode(prefs.Mode)
			if prefs.PlayerName != "" {
				session.SetPlayerName(prefs.PlayerName)
			}
			logger.Info("session preferences restored", logging.String("mode", prefs.Mode.String()), logging.String("player", prefs.PlayerName))
		}
	}
	if raw := snapshot.Payload(snapshotChatKey); raw != nil && feed != nil {
		var messages []chat.Message
		if err := json.Unmarshal(raw, &messages); err != nil {
			logger.Warn("ignoring chat snapshot", logging.Error(err))
		} else {
			logger.Info("chat history restored", logging.Int("messages", feed.Restore(messages)))
		}
	}
}

// trackServerState registers the session and chat captures.
func trackServerState(snapshot *StateSnapshotter, session *game.Session, feed *chat.Feed, retain int) {
	if snapshot == nil {
		return
	}
	if session != nil {
		snapshot.Track(snapshotSessionKey, func() any {
			prefs := sessionPreferences{Mode: session.Mode()}
			if telemetry := session.Telemetry(); telemetry != nil {
				prefs.PlayerName = telemetry.PlayerName
			}
			return prefs
		})
	}
	if feed != nil {
		snapshot.Track(snapshotChatKey, func() any {
			messages := feed.Backlog(retain)
			if messages == nil {
				messages = []chat.Message{}
			}
			return messages
		})
	}
}
