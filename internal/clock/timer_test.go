package clock

import (
	"errors"
	"testing"
	"time"
)

func TestNewTimer_Validation(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	c := NewManual(now)

	if _, err := NewTimer(now.Add(time.Hour), now.Add(time.Minute), c); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected invalid window for end before start, got %v", err)
	}
	if _, err := NewTimer(now.Add(-time.Minute), now.Add(time.Hour), c); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected invalid window for start in the past, got %v", err)
	}
	if _, err := NewTimer(now, now.Add(time.Hour), c); err != nil {
		t.Fatalf("start equal to now should be accepted: %v", err)
	}
}

func TestTimer_Window(t *testing.T) {
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	c := NewManual(now)

	timer, err := NewTimer(now.Add(15*time.Minute), now.Add(6*time.Hour), c)
	if err != nil {
		t.Fatalf("NewTimer returned error: %v", err)
	}

	if timer.HasStarted() || timer.HasCompleted() || timer.Active() {
		t.Fatalf("timer should not be active before start")
	}

	c.Advance(16 * time.Minute)
	if !timer.HasStarted() || timer.HasCompleted() || !timer.Active() {
		t.Fatalf("timer should be active inside window")
	}

	c.Advance(6 * time.Hour)
	if !timer.HasCompleted() || timer.Active() {
		t.Fatalf("timer should be completed after end")
	}
}
