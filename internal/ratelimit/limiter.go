// Package ratelimit provides the deterministic token bucket used to cap the
// per-connection signaling message rate.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time.Now so limiter behavior is reproducible in tests.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

const nanoPerToken = int64(time.Second)

// Limiter is a token bucket refilling at an integer rate (tokens/sec) with
// capacity equal to the rate, i.e. at most one second of burst. Fixed-point
// nano-tokens avoid float rounding drift.
type Limiter struct {
	mu sync.Mutex

	clock Clock
	rate  int64 // tokens/sec; <= 0 disables limiting

	available int64 // nano-tokens
	last      time.Time
}

// New returns a Limiter allowing rate events per second. A nil clock selects
// RealClock. rate <= 0 means unlimited.
func New(clock Clock, rate int64) *Limiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &Limiter{
		clock:     clock,
		rate:      rate,
		available: rate * nanoPerToken,
		last:      clock.Now(),
	}
}

// Allow consumes one token if available.
func (l *Limiter) Allow() bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()

	if l.available < nanoPerToken {
		return false
	}
	l.available -= nanoPerToken
	return true
}

func (l *Limiter) refillLocked() {
	now := l.clock.Now()
	if now.Before(l.last) {
		// Time went backwards. Move the reference point without refilling.
		l.last = now
		return
	}

	elapsed := now.Sub(l.last).Nanoseconds()
	if elapsed <= 0 {
		return
	}
	l.last = now

	capacity := l.rate * nanoPerToken

	// rate tokens/sec equals rate nano-tokens per nanosecond. Clamp before
	// multiplying so long idle periods cannot overflow.
	need := capacity - l.available
	if need <= 0 {
		l.available = capacity
		return
	}
	if elapsed >= need/l.rate {
		l.available = capacity
		return
	}
	l.available += elapsed * l.rate
}
