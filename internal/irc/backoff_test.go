package irc

import (
	"testing"
	"time"
)

func newTestBackoff(min, max, stable time.Duration) *Backoff {
	b := NewBackoff(min, max, stable)
	b.jitter = func(time.Duration) time.Duration { return 0 }
	return b
}

func TestBackoffDoublesToCap(t *testing.T) {
	t.Parallel()

	b := newTestBackoff(time.Second, 8*time.Second, time.Minute)
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 8 * time.Second, 8 * time.Second,
	}
	var prev time.Duration
	for i, w := range want {
		got := b.Next()
		if got != w {
			t.Errorf("Next()[%d] = %v, want %v", i, got, w)
		}
		if got < prev {
			t.Errorf("delay decreased without a stable run: %v after %v", got, prev)
		}
		prev = got
	}
}

func TestBackoffStableRunResetsToMin(t *testing.T) {
	t.Parallel()

	b := newTestBackoff(time.Second, time.Minute, 30*time.Second)
	for i := 0; i < 5; i++ {
		b.Next()
	}

	// A connection that held past the stable threshold collapses the window.
	b.NoteUptime(31 * time.Second)
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after stable run = %v, want min", got)
	}
}

func TestBackoffShortRunKeepsWindow(t *testing.T) {
	t.Parallel()

	b := newTestBackoff(time.Second, time.Minute, 30*time.Second)
	b.Next() // 1s
	b.Next() // 2s

	b.NoteUptime(2 * time.Second)
	if got := b.Next(); got != 4*time.Second {
		t.Errorf("Next() after short run = %v, want 4s", got)
	}
}

func TestBackoffJitterBounded(t *testing.T) {
	t.Parallel()

	b := NewBackoff(10*time.Second, 10*time.Second, 0)
	for i := 0; i < 20; i++ {
		got := b.Next()
		if got < 10*time.Second || got > 12*time.Second {
			t.Fatalf("Next() = %v, want within [10s, 12s]", got)
		}
	}
}
