package trigger

import "time"

// Gate suppresses repeat notifications inside a cooldown window.
//
// Contract:
//   - The first Allow call returns true.
//   - The window arms on the dispatch attempt, not on confirmed delivery,
//     so a failing provider is not hammered by repeated topic changes.
//   - Allow(t) strictly inside (last, last+window) returns false and the
//     event is dropped (not queued, not merged).
//   - Allow(t) at or after last+window returns true and re-arms.
//
// Gate is not safe for concurrent use; it is owned by the session loop.
type Gate struct {
	window time.Duration
	last   time.Time
}

func NewGate(window time.Duration) *Gate {
	return &Gate{window: window}
}

// Allow reports whether a dispatch may proceed at now, arming the window
// when it does. The armed timestamp never moves backwards.
func (g *Gate) Allow(now time.Time) bool {
	if !g.last.IsZero() && now.Sub(g.last) < g.window {
		return false
	}
	g.last = now
	return true
}

// Remaining reports how much of the window is left at now; zero means the
// gate is open.
func (g *Gate) Remaining(now time.Time) time.Duration {
	if g.last.IsZero() {
		return 0
	}
	rem := g.window - now.Sub(g.last)
	if rem < 0 {
		return 0
	}
	return rem
}

// LastAttempt returns when the gate last armed, and false if it never has.
func (g *Gate) LastAttempt() (time.Time, bool) {
	return g.last, !g.last.IsZero()
}

func (g *Gate) Window() time.Duration { return g.window }
