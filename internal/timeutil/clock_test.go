package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	if start.IsZero() {
		t.Fatal("RealClock.Now returned zero time")
	}
	if d := c.Since(start); d < 0 {
		t.Errorf("Since = %v, want >= 0", d)
	}
}

func TestMockClock(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Fatalf("Now = %v, want %v", got, base)
	}
	c.Advance(90 * time.Second)
	if got := c.Since(base); got != 90*time.Second {
		t.Errorf("Since after Advance = %v, want 90s", got)
	}

	later := base.Add(time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("Now after Set = %v, want %v", got, later)
	}
}

func TestMockClock_AutoStep(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	c.AutoStep(250 * time.Millisecond)

	first := c.Now()
	second := c.Now()
	if d := second.Sub(first); d != 250*time.Millisecond {
		t.Errorf("consecutive Now differ by %v, want 250ms", d)
	}
	if d := c.Since(first); d != 500*time.Millisecond {
		t.Errorf("Since(first) = %v, want 500ms", d)
	}
}
