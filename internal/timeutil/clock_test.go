package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTimer(t *testing.T) {
	timer := RealClock{}.NewTimer(10 * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Error("timer did not fire")
	}
}

func TestMockClock_NowAndSet(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(start)
	if !clock.Now().Equal(start) {
		t.Errorf("got %v, want %v", clock.Now(), start)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Since(start); got != time.Hour {
		t.Errorf("Since = %v, want 1h", got)
	}
}

func TestMockClock_TimerFiresOnAdvance(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(10 * time.Second)

	clock.Advance(9 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatal("timer did not fire at its deadline")
	}

	if clock.Pending() != 0 {
		t.Errorf("Pending = %d after timer fired, want 0", clock.Pending())
	}
}

func TestMockClock_TimerStop(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	timer := clock.NewTimer(time.Second)

	if !timer.Stop() {
		t.Error("Stop on an armed timer should return true")
	}
	if timer.Stop() {
		t.Error("second Stop should return false")
	}

	clock.Advance(2 * time.Second)
	select {
	case <-timer.C():
		t.Error("stopped timer fired")
	default:
	}
}

func TestMockClock_TickerRepeats(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		select {
		case <-ticker.C():
		default:
			t.Fatalf("tick %d not delivered", i)
		}
	}

	ticker.Stop()
	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Error("stopped ticker delivered a tick")
	default:
	}
}
