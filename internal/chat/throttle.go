package chat

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultFloodBytesPerSecond is the inbound budget of one chat connection.
const DefaultFloodBytesPerSecond = 1024.0

// ThrottleUsage is the flood-control state of one connection.
type ThrottleUsage struct {
	Key            string
	AvailableBytes float64
	BytesPerSecond float64
	Denied         int64
}

type floodBucket struct {
	tokens float64
	last   time.Time
	since  time.Time
	read   int64
	denied int64
}

// Throttle is a per-connection token bucket over inbound frame bytes. A
// connection that floods the relay has its frames refused until it refills.
type Throttle struct {
	mu       sync.Mutex
	buckets  map[string]*floodBucket
	capacity float64
	refill   float64
	now      func() time.Time
	denied   atomic.Uint64
}

// NewThrottle allows bytesPerSecond per key with a burst of the same size.
func NewThrottle(bytesPerSecond float64, clock func() time.Time) *Throttle {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultFloodBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &Throttle{
		buckets:  make(map[string]*floodBucket),
		capacity: bytesPerSecond,
		refill:   bytesPerSecond,
		now:      clock,
	}
}

func (t *Throttle) replenish(bucket *floodBucket, now time.Time) {
	//1.- Ignore clock steps backwards.
	if !now.After(bucket.last) {
		return
	}
	bucket.tokens = math.Min(t.capacity, bucket.tokens+now.Sub(bucket.last).Seconds()*t.refill)
	bucket.last = now
}

// Allow charges size bytes to key and reports whether the frame may pass.
func (t *Throttle) Allow(key string, size int) bool {
	if t == nil || key == "" || size <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	bucket := t.buckets[key]
	if bucket == nil {
		//1.- New connections start full so a greeting is never refused.
		bucket = &floodBucket{tokens: t.capacity, last: now, since: now}
		t.buckets[key] = bucket
	}
	t.replenish(bucket, now)

	if float64(size) > bucket.tokens {
		bucket.denied++
		t.denied.Add(1)
		return false
	}
	bucket.tokens -= float64(size)
	bucket.read += int64(size)
	return true
}

// Forget drops the bucket of a disconnected connection.
func (t *Throttle) Forget(key string) {
	if t == nil || key == "" {
		return
	}
	t.mu.Lock()
	delete(t.buckets, key)
	t.mu.Unlock()
}

// Denied reports how many frames were refused in total.
func (t *Throttle) Denied() uint64 {
	if t == nil {
		return 0
	}
	return t.denied.Load()
}

// Usage reports the current state of every tracked connection.
func (t *Throttle) Usage() map[string]ThrottleUsage {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buckets) == 0 {
		return nil
	}
	now := t.now()
	usage := make(map[string]ThrottleUsage, len(t.buckets))
	for key, bucket := range t.buckets {
		t.replenish(bucket, now)
		rate := 0.0
		if observed := now.Sub(bucket.since).Seconds(); observed > 0 {
			rate = float64(bucket.read) / observed
		}
		usage[key] = ThrottleUsage{
			Key:            key,
			AvailableBytes: math.Max(bucket.tokens, 0),
			BytesPerSecond: rate,
			Denied:         bucket.denied,
		}
	}
	return usage
}
