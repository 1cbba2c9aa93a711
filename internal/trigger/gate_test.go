package trigger

import (
	"testing"
	"time"
)

func TestGateBoundaries(t *testing.T) {
	t.Parallel()

	window := 30 * time.Minute
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	g := NewGate(window)

	if !g.Allow(t0) {
		t.Fatal("first Allow must return true")
	}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "immediately after", at: t0.Add(time.Nanosecond), want: false},
		{name: "mid window", at: t0.Add(window / 2), want: false},
		{name: "one tick before expiry", at: t0.Add(window - time.Nanosecond), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Allow(tt.at); got != tt.want {
				t.Fatalf("Allow(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}

	if !g.Allow(t0.Add(window)) {
		t.Fatal("Allow at exactly last+window must return true")
	}
}

func TestGateRearmsAfterExpiry(t *testing.T) {
	t.Parallel()

	window := time.Minute
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	g := NewGate(window)
	if !g.Allow(t0) {
		t.Fatal("first Allow must return true")
	}
	t1 := t0.Add(window + time.Second)
	if !g.Allow(t1) {
		t.Fatal("Allow after expiry must return true")
	}
	// The second Allow re-armed the window at t1.
	if g.Allow(t1.Add(time.Second)) {
		t.Fatal("Allow inside the re-armed window must return false")
	}
}

func TestGateSuppressedCallDoesNotExtendWindow(t *testing.T) {
	t.Parallel()

	window := time.Minute
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	g := NewGate(window)
	g.Allow(t0)
	g.Allow(t0.Add(30 * time.Second)) // suppressed; must not re-arm

	if !g.Allow(t0.Add(window)) {
		t.Fatal("window measured from the armed attempt, not from suppressed calls")
	}
}

func TestGateZeroWindowAlwaysAllows(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g := NewGate(0)
	for i := 0; i < 3; i++ {
		if !g.Allow(t0.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("Allow #%d with zero window = false, want true", i+1)
		}
	}
}

func TestGateRemaining(t *testing.T) {
	t.Parallel()

	window := 10 * time.Minute
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	g := NewGate(window)
	if got := g.Remaining(t0); got != 0 {
		t.Fatalf("Remaining before first attempt = %v, want 0", got)
	}
	g.Allow(t0)
	if got := g.Remaining(t0.Add(4 * time.Minute)); got != 6*time.Minute {
		t.Fatalf("Remaining = %v, want %v", got, 6*time.Minute)
	}
	if got := g.Remaining(t0.Add(time.Hour)); got != 0 {
		t.Fatalf("Remaining after expiry = %v, want 0", got)
	}

	if _, ok := NewGate(window).LastAttempt(); ok {
		t.Fatal("LastAttempt before any Allow must report false")
	}
}
