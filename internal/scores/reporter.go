package scores

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"endlessdrive/server/internal/logging"
)

const (
	defaultQueueSize = 16
	defaultTimeout   = 5 * time.Second
)

type job struct {
	save  bool
	entry Entry
}

// Reporter persists scores and refreshes the leaderboard on a worker
// goroutine. Enqueueing never blocks; a full queue drops the request.
// Store failures are logged at debug level and otherwise ignored.
type Reporter struct {
	store   Store
	board   *Leaderboard
	logger  *logging.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	done   chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// ReporterOption customises a reporter.
type ReporterOption func(*Reporter)

// WithQueueSize bounds the pending request queue.
func WithQueueSize(size int) ReporterOption {
	return func(r *Reporter) {
		if size > 0 {
			r.jobs = make(chan job, size)
		}
	}
}

// WithTimeout bounds each store call.
func WithTimeout(timeout time.Duration) ReporterOption {
	return func(r *Reporter) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewReporter starts the worker. A nil store makes every request a no-op.
func NewReporter(store Store, board *Leaderboard, logger *logging.Logger, opts ...ReporterOption) *Reporter {
	if board == nil {
		board = NewLeaderboard()
	}
	if logger == nil {
		logger = logging.L()
	}
	r := &Reporter{
		store:   store,
		board:   board,
		logger:  logger,
		timeout: defaultTimeout,
		jobs:    make(chan job, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	go r.run()
	return r
}

// Leaderboard returns the board the reporter refreshes.
func (r *Reporter) Leaderboard() *Leaderboard { return r.board }

// SaveAndRefresh stores a finished run and then reloads the top scores.
func (r *Reporter) SaveAndRefresh(name string, score int) bool {
	if r == nil {
		return false
	}
	entry, err := Normalize(name, float64(score))
	if err != nil {
		r.logger.Debug("score rejected", logging.Error(err))
		return false
	}
	return r.enqueue(job{save: true, entry: entry})
}

// Refresh reloads the top scores without saving.
func (r *Reporter) Refresh() bool {
	return r.enqueue(job{})
}

// ErrNoStore is returned by the synchronous calls when no store is configured.
var ErrNoStore = errors.New("no score store configured")

// Submit normalizes and saves a score on the caller's goroutine, then
// refreshes the board. Used by the network surfaces which report errors.
func (r *Reporter) Submit(ctx context.Context, name string, score float64) (Entry, error) {
	if r == nil || r.store == nil {
		return Entry{}, ErrNoStore
	}
	entry, err := Normalize(name, score)
	if err != nil {
		return Entry{}, err
	}
	if err := r.store.SaveScore(ctx, entry.Name, entry.Score); err != nil {
		r.failed.Add(1)
		return Entry{}, errors.Wrap(err, "save score")
	}
	if _, err := r.Top(ctx); err != nil {
		r.logger.Debug("leaderboard refresh failed", logging.Error(err))
	}
	return entry, nil
}

// Top fetches the current top scores and caches them on the board. Without
// a store it returns the cached entries.
func (r *Reporter) Top(ctx context.Context) ([]Entry, error) {
	if r == nil {
		return nil, ErrNoStore
	}
	if r.store == nil {
		return r.board.Entries(), nil
	}
	entries, err := r.store.TopScores(ctx)
	if err != nil {
		r.failed.Add(1)
		return nil, errors.Wrap(err, "load top scores")
	}
	r.board.Set(entries)
	return r.board.Entries(), nil
}

// Dropped reports how many requests were discarded because the queue was full.
func (r *Reporter) Dropped() uint64 { return r.dropped.Load() }

// Failed reports how many store calls returned an error.
func (r *Reporter) Failed() uint64 { return r.failed.Load() }

// Close stops accepting requests and waits for queued ones to finish.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *Reporter) enqueue(j job) bool {
	if r == nil || r.store == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.jobs <- j:
		return true
	default:
		r.dropped.Add(1)
		r.logger.Debug("score request dropped", logging.Bool("save", j.save))
		return false
	}
}

func (r *Reporter) run() {
	defer close(r.done)
	for j := range r.jobs {
		r.process(j)
	}
}

func (r *Reporter) process(j job) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	//1.- A failed save still refreshes, matching a fire-and-forget submit.
	if j.save {
		if err := r.store.SaveScore(ctx, j.entry.Name, j.entry.Score); err != nil {
			r.failed.Add(1)
			r.logger.Debug("score save failed", logging.Error(err), logging.String("name", j.entry.Name), logging.Int("score", j.entry.Score))
		}
	}
	entries, err := r.store.TopScores(ctx)
	if err != nil {
		r.failed.Add(1)
		r.logger.Debug("leaderboard refresh failed", logging.Error(err))
		return
	}
	r.board.Set(entries)
}
