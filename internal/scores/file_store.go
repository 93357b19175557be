package scores

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// maxFileEntries bounds the history kept on disk.
const maxFileEntries = 500

// FileStore keeps scores in a JSON file guarded by an advisory lock, so
// several processes on one machine can share a leaderboard.
type FileStore struct {
	// mu serialises callers in this process; a held flock is re-entrant per handle.
	mu         sync.Mutex
	path       string
	lock       *flock.Flock
	retryDelay time.Duration
}

// NewFileStore returns a store backed by path. The lock lives beside it.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:       path,
		lock:       flock.New(path + ".lock"),
		retryDelay: 5 * time.Millisecond,
	}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// SaveScore appends an entry and rewrites the file atomically.
func (s *FileStore) SaveScore(ctx context.Context, name string, score int) error {
	entry, err := Normalize(name, float64(score))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDir(); err != nil {
		return err
	}
	locked, err := s.lock.TryLockContext(ctx, s.retryDelay)
	if err != nil {
		return errors.Wrap(err, "could not lock score file")
	}
	if !locked {
		return errors.New("could not obtain score file lock")
	}
	defer s.lock.Unlock()

	entries, err := s.read()
	if err != nil {
		return err
	}
	//1.- Rank before trimming so the history keeps the best runs.
	entries = Rank(append(entries, entry), maxFileEntries)
	return s.write(entries)
}

// TopScores returns the best TopLimit entries.
func (s *FileStore) TopScores(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	locked, err := s.lock.TryRLockContext(ctx, s.retryDelay)
	if err != nil {
		return nil, errors.Wrap(err, "could not lock score file for reading")
	}
	if !locked {
		return nil, errors.New("could not obtain score file read lock")
	}
	defer s.lock.Unlock()

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	return Rank(entries, TopLimit), nil
}

// ensureDir creates the score directory; the lock file lives in it too.
func (s *FileStore) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "could not create score directory")
	}
	return nil
}

func (s *FileStore) read() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not read score file")
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "could not decode score file %s", s.path)
	}
	return entries, nil
}

func (s *FileStore) write(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not encode scores")
	}
	dir := filepath.Dir(s.path)
	file, err := os.CreateTemp(dir, ".scores-*.json")
	if err != nil {
		return errors.Wrap(err, "could not create temp score file")
	}
	tmpName := file.Name()
	defer os.Remove(tmpName)

	if _, err := file.Write(data); err != nil {
		file.Close()
		return errors.Wrap(err, "could not write temp score file")
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return errors.Wrap(err, "could not fsync temp score file")
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "could not close temp score file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "could not move temp score file into place")
	}
	return nil
}
