package engine

import (
	"context"
	"testing"
	"time"
)

func TestEngine_StepLayers(t *testing.T) {
	e := NewEngine()
	e.DT = 0.5

	var ticks, hours, days int
	var lastDT float64
	e.OnTick = func(_ uint64, dt float64) { ticks++; lastDT = dt }
	e.OnHour = func(uint64) { hours++ }
	e.OnDay = func(uint64) { days++ }

	for i := 0; i < TicksPerSimDay; i++ {
		e.Step()
	}
	if ticks != TicksPerSimDay || hours != 24 || days != 1 {
		t.Errorf("ticks=%d hours=%d days=%d", ticks, hours, days)
	}
	if lastDT != 0.5 {
		t.Errorf("dt = %v, want 0.5", lastDT)
	}
	if e.Tick != TicksPerSimDay {
		t.Errorf("Tick = %d", e.Tick)
	}
}

func TestEngine_RunStopsAtMaxTicks(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Microsecond
	e.MaxTicks = 25

	count := 0
	e.OnTick = func(uint64, float64) { count++ }

	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.Stop()
		t.Fatal("Run did not stop at MaxTicks")
	}
	if count != 25 || e.Tick != 25 {
		t.Errorf("count=%d tick=%d, want 25", count, e.Tick)
	}
	if e.Running() {
		t.Error("Running() true after Run returned")
	}
}

func TestEngine_RunStopsOnCancelWhilePaused(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(0)
	e.OnTick = func(uint64, float64) { t.Error("paused engine ticked") }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run ignored context cancellation")
	}
}

func TestEngine_Stop(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Hour

	started := make(chan struct{})
	e.OnTick = func(uint64, float64) { close(started) }

	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()

	<-started
	e.Stop()
	e.Stop() // idempotent

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if e.Tick != 1 {
		t.Errorf("Tick = %d, want 1", e.Tick)
	}
}

func TestEngine_SetSpeedClamps(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(-3)
	if e.Speed() != 0 {
		t.Errorf("Speed = %v, want 0", e.Speed())
	}
}

func TestSimTime(t *testing.T) {
	tests := []struct {
		tick uint64
		want string
	}{
		{0, "Day 1, 0:00"},
		{61, "Day 1, 1:01"},
		{TicksPerSimDay + 5, "Day 2, 0:05"},
	}
	for _, tt := range tests {
		if got := SimTime(tt.tick); got != tt.want {
			t.Errorf("SimTime(%d) = %q, want %q", tt.tick, got, tt.want)
		}
	}
}
