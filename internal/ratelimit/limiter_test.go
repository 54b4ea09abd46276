package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestLimiter_BurstThenRefill(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(clk, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if l.Allow() {
		t.Fatalf("bucket should be empty")
	}

	// 400ms at 3 tokens/sec refills 1.2 tokens: one whole token plus a
	// fractional remainder that must not be spendable.
	clk.Advance(400 * time.Millisecond)
	if !l.Allow() {
		t.Fatalf("one token should have refilled")
	}
	if l.Allow() {
		t.Fatalf("only one token should have refilled")
	}
}

func TestLimiter_CapsAtCapacity(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	l := New(clk, 2)

	clk.Advance(time.Hour)
	for i := 0; i < 2; i++ {
		if !l.Allow() {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if l.Allow() {
		t.Fatalf("burst must not exceed capacity after long idle")
	}
}

func TestLimiter_TimeGoingBackwards(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	l := New(clk, 1)

	if !l.Allow() {
		t.Fatalf("first event should be allowed")
	}
	clk.now = time.Unix(50, 0)
	if l.Allow() {
		t.Fatalf("no refill when time goes backwards")
	}
}

func TestLimiter_ZeroRateUnlimited(t *testing.T) {
	l := New(&fakeClock{now: time.Unix(0, 0)}, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatalf("rate 0 must be unlimited")
		}
	}
}
