package simulation

import (
	"context"
	"sync"
	"time"
)

// FrameFunc receives the wall-clock time elapsed since the loop started,
// mirroring an animation-frame callback.
type FrameFunc func(elapsed time.Duration)

// Loop drives frame callbacks at the configured target frequency.
type Loop struct {
	interval  time.Duration
	frameFunc FrameFunc
	monitor   *TickMonitor
	now       func() time.Time
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// LoopOption customises loop construction.
type LoopOption func(*Loop)

// WithMonitor records the duration of every frame callback.
func WithMonitor(monitor *TickMonitor) LoopOption {
	return func(l *Loop) {
		l.monitor = monitor
	}
}

// WithLoopClock overrides the wall clock, for tests.
func WithLoopClock(now func() time.Time) LoopOption {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLoop configures a loop that targets the provided frames per second.
func NewLoop(targetHz float64, frame FrameFunc, opts ...LoopOption) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if frame == nil {
		frame = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	loop := &Loop{
		interval:  interval,
		frameFunc: frame,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(loop)
		}
	}
	return loop
}

// Start begins ticking until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.frameFunc == nil || l.done != nil {
		return
	}

	ticker := time.NewTicker(l.interval)
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		defer ticker.Stop()
		started := l.now()
		//1.- The first frame reports zero elapsed time, like the first animation callback.
		l.runFrame(0)
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				//2.- Hand the callback the total elapsed time; it derives its own frame delta.
				l.runFrame(l.now().Sub(started))
			}
		}
	}()
}

func (l *Loop) runFrame(elapsed time.Duration) {
	begin := time.Now()
	l.frameFunc(elapsed)
	if l.monitor != nil {
		l.monitor.Observe(time.Since(begin))
	}
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil || l.done == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

// StepDuration exposes the configured frame interval for testing.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
