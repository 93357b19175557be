package state

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultSubscriberBuffer = 64

// DiffFrame is an encoded scene diff tagged with the frame that produced it.
type DiffFrame struct {
	Frame   uint64
	Payload []byte
}

// Broadcaster fans encoded diffs out to subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the frame.
type Broadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	subs    map[uint64]chan DiffFrame
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewBroadcaster constructs a fan-out with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{subs: make(map[uint64]chan DiffFrame), buffer: buffer}
}

// Subscribe registers a receiver. The returned cancel func is idempotent and
// is also triggered when ctx ends. After Close the channel is closed at once.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan DiffFrame, func(), error) {
	ch := make(chan DiffFrame, b.buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}, nil
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
			b.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, nil
}

// Publish delivers the frame to every subscriber with buffer room.
func (b *Broadcaster) Publish(frame DiffFrame) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (b *Broadcaster) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}

// Close ends every subscription.
func (b *Broadcaster) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
