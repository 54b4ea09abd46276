package presence

import (
	"context"
	"os"
	"testing"
	"time"
)

// Exercised only when a Redis instance is reachable; CI without one skips.
func TestMirror_AddRemove(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rdb, err := Dial(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("dial redis: %v", err)
	}
	defer rdb.Close()

	m := NewMirror(rdb, time.Minute)
	m.Add("test-room", "p1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := rdb.SCard(ctx, "room:test-room:peers").Result()
		if err == nil && n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("participant never mirrored (n=%d, err=%v)", n, err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	m.Remove("test-room", "p1")
	deadline = time.Now().Add(2 * time.Second)
	for {
		n, _ := rdb.SCard(ctx, "room:test-room:peers").Result()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("participant never removed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
