package irc

import "time"

// Backoff schedules reconnect delays.
//
// Delays double from Min up to Max with up to 20% additive jitter. A
// connection that stayed up for at least StableReset collapses the window
// back to Min, so one blip after a long healthy run retries quickly instead
// of inheriting an old multi-minute delay.
type Backoff struct {
	min    time.Duration
	max    time.Duration
	stable time.Duration

	// jitter overrides the jitter source; nil uses a time-seeded value.
	// Tests set this for determinism.
	jitter func(limit time.Duration) time.Duration

	cur time.Duration
}

func NewBackoff(min, max, stableReset time.Duration) *Backoff {
	if min <= 0 {
		min = time.Second
	}
	if max < min {
		max = min
	}
	return &Backoff{min: min, max: max, stable: stableReset}
}

// Next returns the delay to wait before the next connection attempt and
// widens the window for the one after.
func (b *Backoff) Next() time.Duration {
	if b.cur <= 0 {
		b.cur = b.min
	}
	wait := b.cur
	if wait > b.max {
		wait = b.max
	}
	// 20% jitter.
	if j := wait / 5; j > 0 {
		wait += b.jitterFor(j)
	}

	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return wait
}

// NoteUptime records how long the finished connection held. Sustained runs
// reset the window so the next failure starts from Min again.
func (b *Backoff) NoteUptime(lifetime time.Duration) {
	if b.stable > 0 && lifetime >= b.stable {
		b.cur = b.min
	}
}

func (b *Backoff) jitterFor(limit time.Duration) time.Duration {
	if b.jitter != nil {
		return b.jitter(limit)
	}
	return time.Duration(time.Now().UnixNano() % int64(limit+1))
}
