package scores

import (
	"context"
	"sync"
)

// Leaderboard caches the most recently fetched top scores for readers on
// other goroutines.
type Leaderboard struct {
	mu      sync.RWMutex
	entries []Entry
	version uint64
}

// NewLeaderboard returns an empty board.
func NewLeaderboard() *Leaderboard {
	return &Leaderboard{}
}

// Set replaces the cached entries.
func (l *Leaderboard) Set(entries []Entry) {
	if l == nil {
		return
	}
	ranked := Rank(entries, TopLimit)
	l.mu.Lock()
	l.entries = ranked
	l.version++
	l.mu.Unlock()
}

// Entries returns a copy of the cached entries.
func (l *Leaderboard) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Entry(nil), l.entries...)
}

// Version increments on every Set; zero means never loaded.
func (l *Leaderboard) Version() uint64 {
	if l == nil {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Lines renders the cached entries.
func (l *Leaderboard) Lines() []string {
	return Render(l.Entries())
}

// MemoryStore keeps scores in process, for headless runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveScore appends a normalized entry.
func (m *MemoryStore) SaveScore(_ context.Context, name string, score int) error {
	entry, err := Normalize(name, float64(score))
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

// TopScores returns the best TopLimit entries.
func (m *MemoryStore) TopScores(context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Rank(m.entries, TopLimit), nil
}
