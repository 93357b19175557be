package simulation

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsAtLeastTargetTicks(t *testing.T) {
	var frames int32
	monitor := NewTickMonitor()
	loop := NewLoop(60, func(time.Duration) {
		atomic.AddInt32(&frames, 1)
		time.Sleep(time.Microsecond)
	}, WithMonitor(monitor))
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	time.Sleep(55 * time.Millisecond)
	cancel()
	loop.Stop()
	if atomic.LoadInt32(&frames) == 0 {
		t.Fatalf("expected loop to tick at least once")
	}
	if monitor.Snapshot().Samples == 0 {
		t.Fatalf("expected the monitor to observe frames")
	}
}

func TestLoopStopWithoutCancel(t *testing.T) {
	loop := NewLoop(240, nil)
	loop.Start(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Stop()
		loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stop did not return")
	}
}

func TestLoopPassesElapsedTime(t *testing.T) {
	base := time.Unix(0, 0)
	var calls atomic.Int64
	clock := func() time.Time {
		return base.Add(time.Duration(calls.Load()) * 10 * time.Millisecond)
	}
	seen := make(chan time.Duration, 8)
	loop := NewLoop(200, func(elapsed time.Duration) {
		calls.Add(1)
		select {
		case seen <- elapsed:
		default:
		}
	}, WithLoopClock(clock))
	ctx, cancel := context.WithCancel(context.Background())
	loop.Start(ctx)
	defer loop.Stop()
	defer cancel()

	if first := <-seen; first != 0 {
		t.Fatalf("first frame elapsed = %v want 0", first)
	}
	if second := <-seen; second <= 0 {
		t.Fatalf("expected positive elapsed time, got %v", second)
	}
}

func TestLoopStepDuration(t *testing.T) {
	loop := NewLoop(120, func(time.Duration) {})
	step := loop.StepDuration()
	expected := time.Second / 120
	if step != expected {
		t.Fatalf("unexpected step duration %v", step)
	}
}

func TestStepperCapsAndDrops(t *testing.T) {
	stepper := NewStepper(1.0/60, 0.02, 5)
	steps := 0
	report := stepper.Feed(0.5, func(dt float64) {
		steps++
		if dt != 1.0/60 {
			t.Fatalf("unexpected dt %v", dt)
		}
	})
	//1.- A half-second hitch is capped to 0.02 s, which is a single step.
	if !report.Capped || report.Steps != 1 || steps != 1 {
		t.Fatalf("unexpected report %+v steps=%d", report, steps)
	}
	if acc := stepper.Accumulator(); acc < 0 || acc >= 1.0/60 {
		t.Fatalf("accumulator %v outside [0, fixed)", acc)
	}
}

func TestStepperDropsStepsBeyondLimit(t *testing.T) {
	stepper := NewStepper(0.01, 1, 3)
	report := stepper.Feed(0.055, nil)
	if report.Steps != 3 || report.Dropped != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if acc := stepper.Accumulator(); acc < 0 || acc >= 0.01 {
		t.Fatalf("accumulator %v outside [0, fixed)", acc)
	}
}

func TestStepperAccumulatesSmallFrames(t *testing.T) {
	stepper := NewStepper(1.0/60, 0.02, 5)
	total := 0
	for i := 0; i < 600; i++ {
		total += stepper.Feed(1.0/120, nil).Steps
	}
	//1.- Five simulated seconds at 120 fps yield ~300 fixed steps.
	if math.Abs(float64(total)-300) > 1 {
		t.Fatalf("expected ~300 steps, got %d", total)
	}
	stepper.Reset()
	if stepper.Accumulator() != 0 {
		t.Fatalf("reset should clear the accumulator")
	}
}

func TestTickMonitorSnapshot(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(10 * time.Millisecond)
	monitor.Observe(30 * time.Millisecond)
	monitor.ObserveSteps(StepReport{Steps: 2, Dropped: 1})
	snapshot := monitor.Snapshot()
	if snapshot.Samples != 2 || snapshot.Average != 20*time.Millisecond || snapshot.Max != 30*time.Millisecond {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.Steps != 2 || snapshot.DroppedSteps != 1 {
		t.Fatalf("unexpected step accounting %+v", snapshot)
	}
	if fps := snapshot.AverageFPS(); math.Abs(fps-50) > 1e-9 {
		t.Fatalf("unexpected fps %v", fps)
	}
	monitor.Reset()
	if monitor.Snapshot().Samples != 0 {
		t.Fatalf("expected reset to clear samples")
	}
}
