package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed frame durations and step accounting.
type TickMetricsSnapshot struct {
	Samples      int
	Average      time.Duration
	Max          time.Duration
	Last         time.Duration
	Steps        uint64
	DroppedSteps uint64
}

// AverageFPS derives the frames-per-second equivalent of the sampled frame duration.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the frame loop.
type TickMonitor struct {
	mu      sync.Mutex
	samples int
	total   time.Duration
	max     time.Duration
	last    time.Duration
	steps   uint64
	dropped uint64
}

// NewTickMonitor constructs an empty monitor ready to collect samples.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the duration of a completed frame.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	// //1.- Accumulate the sample count and aggregate duration for average calculations.
	m.samples++
	m.total += duration
	// //2.- Track the worst-case frame so operators can spot spikes quickly.
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	m.mu.Unlock()
}

// ObserveSteps records how a frame was subdivided into fixed steps.
func (m *TickMonitor) ObserveSteps(report StepReport) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.steps += uint64(report.Steps)
	m.dropped += uint64(report.Dropped)
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	snapshot := TickMetricsSnapshot{
		Samples:      m.samples,
		Max:          m.max,
		Last:         m.last,
		Steps:        m.steps,
		DroppedSteps: m.dropped,
	}
	total := m.total
	m.mu.Unlock()

	if snapshot.Samples > 0 {
		snapshot.Average = total / time.Duration(snapshot.Samples)
	}
	return snapshot
}

// Reset clears the accumulated statistics so a fresh run starts cleanly.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	// //1.- Zero out all internal counters so subsequent snapshots start from scratch.
	m.samples = 0
	m.total = 0
	m.max = 0
	m.last = 0
	m.steps = 0
	m.dropped = 0
	m.mu.Unlock()
}
