package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter enforces a maximum number of events within a time window.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	events []time.Time
}

// NewSlidingWindowLimiter constructs a limiter allowing up to limit events per window.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if window <= 0 || limit <= 0 {
		return &SlidingWindowLimiter{window: window, limit: limit}
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{
		window: window,
		limit:  limit,
		now:    timeSource,
	}
}

// Allow reports whether the caller may proceed under the current rate limits.
func (l *SlidingWindowLimiter) Allow() bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.events[:0]
	for _, ts := range l.events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.events = kept
	if len(l.events) >= l.limit {
		return false
	}
	l.events = append(l.events, now)
	return true
}

// KeyedLimiter keeps one sliding window per key, typically a client address.
// Idle keys are forgotten once their window has passed.
type KeyedLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu        sync.Mutex
	limiters  map[string]*SlidingWindowLimiter
	lastSeen  map[string]time.Time
	lastPrune time.Time
}

// NewKeyedLimiter constructs a limiter allowing up to limit events per window per key.
func NewKeyedLimiter(window time.Duration, limit int, timeSource func() time.Time) *KeyedLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &KeyedLimiter{
		window:   window,
		limit:    limit,
		now:      timeSource,
		limiters: make(map[string]*SlidingWindowLimiter),
		lastSeen: make(map[string]time.Time),
	}
}

// AllowKey reports whether the caller identified by key may proceed.
func (k *KeyedLimiter) AllowKey(key string) bool {
	if k == nil || k.limit <= 0 || k.window <= 0 {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	//1.- Sweep idle keys at most once per window so the map stays bounded.
	if now.Sub(k.lastPrune) >= k.window {
		for id, seen := range k.lastSeen {
			if now.Sub(seen) >= k.window {
				delete(k.lastSeen, id)
				delete(k.limiters, id)
			}
		}
		k.lastPrune = now
	}
	limiter, ok := k.limiters[key]
	if !ok {
		limiter = NewSlidingWindowLimiter(k.window, k.limit, k.now)
		k.limiters[key] = limiter
	}
	k.lastSeen[key] = now
	return limiter.Allow()
}

// Keys reports how many clients are currently tracked.
func (k *KeyedLimiter) Keys() int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}
