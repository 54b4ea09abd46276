package client

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/roomloop/roomloop/internal/httpapi"
	"github.com/roomloop/roomloop/internal/media"
	"github.com/roomloop/roomloop/internal/metrics"
	"github.com/roomloop/roomloop/internal/origin"
	"github.com/roomloop/roomloop/internal/protocol"
	"github.com/roomloop/roomloop/internal/room"
	"github.com/roomloop/roomloop/internal/signaling"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	m := metrics.New()
	registry := room.NewRegistry(room.WithMetrics(m))
	allow := origin.NewAllowlist(nil)
	relay := signaling.NewServer(registry, m, allow, signaling.Config{}.WithDefaults())
	ts := httptest.NewServer(httpapi.Router(registry, relay, m, allow))
	t.Cleanup(ts.Close)
	return ts
}

func newTestCall(t *testing.T, ts *httptest.Server, roster func([]protocol.User)) *Call {
	t.Helper()
	c, err := NewCall(CallOptions{
		ServerURL:      "ws" + strings.TrimPrefix(ts.URL, "http"),
		ConnectTimeout: 10 * time.Second,
		Capturer:       media.NewSynthetic(),
		OnRosterChange: roster,
	})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	t.Cleanup(c.Leave)
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Two calls in one room negotiate a session pair: the second joiner
// initiates, the first responds, and both end up with exactly one live
// peer session keyed by the other's id.
func TestCall_TwoPartyNegotiation(t *testing.T) {
	ts := newRelayServer(t)

	alice := newTestCall(t, ts, nil)
	if err := alice.Join("r1", "alice"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if n := len(alice.Participants()); n != 0 {
		t.Fatalf("alice joined a fresh room with %d participants, want 0", n)
	}

	bob := newTestCall(t, ts, nil)
	if err := bob.Join("r1", "bob"); err != nil {
		t.Fatalf("bob join: %v", err)
	}

	peers := bob.Participants()
	if len(peers) != 1 || peers[0].ID != alice.SelfID() {
		t.Fatalf("bob's roster = %+v, want exactly alice (%s)", peers, alice.SelfID())
	}

	waitFor(t, "both sides to hold one session", func() bool {
		return alice.SessionCount() == 1 && bob.SessionCount() == 1
	})
}

func TestCall_LeaveTearsDownRemoteSessions(t *testing.T) {
	ts := newRelayServer(t)

	rosterSizes := make(chan int, 8)
	alice := newTestCall(t, ts, func(users []protocol.User) {
		rosterSizes <- len(users)
	})
	if err := alice.Join("r1", "alice"); err != nil {
		t.Fatalf("alice join: %v", err)
	}

	bob := newTestCall(t, ts, nil)
	if err := bob.Join("r1", "bob"); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	waitFor(t, "alice to see bob", func() bool { return len(alice.Participants()) == 1 })
	waitFor(t, "alice's responder session", func() bool { return alice.SessionCount() == 1 })

	bob.Leave()

	waitFor(t, "alice's roster to empty", func() bool { return len(alice.Participants()) == 0 })
	waitFor(t, "alice's session teardown", func() bool { return alice.SessionCount() == 0 })
	if n := bob.SessionCount(); n != 0 {
		t.Fatalf("bob holds %d sessions after Leave, want 0", n)
	}
}

func TestCall_ChatEchoesToSender(t *testing.T) {
	ts := newRelayServer(t)

	lines := make(chan string, 1)
	c, err := NewCall(CallOptions{
		ServerURL:      "ws" + strings.TrimPrefix(ts.URL, "http"),
		ConnectTimeout: 10 * time.Second,
		Capturer:       media.NewSynthetic(),
		OnChat:         func(from protocol.User, text string) { lines <- from.Name + ": " + text },
	})
	if err != nil {
		t.Fatalf("new call: %v", err)
	}
	t.Cleanup(c.Leave)
	if err := c.Join("r1", "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	c.SendChat("hello")
	select {
	case line := <-lines:
		if line != "alice: hello" {
			t.Fatalf("chat echo = %q, want %q", line, "alice: hello")
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("chat echo never arrived")
	}
}

func TestCall_MediaToggleReachesRoommates(t *testing.T) {
	ts := newRelayServer(t)

	alice := newTestCall(t, ts, nil)
	if err := alice.Join("r1", "alice"); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	bob := newTestCall(t, ts, nil)
	if err := bob.Join("r1", "bob"); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	waitFor(t, "alice to see bob", func() bool { return len(alice.Participants()) == 1 })

	if on := bob.Media().ToggleAudio(); on {
		t.Fatalf("toggle left audio enabled")
	}

	waitFor(t, "alice to see bob muted", func() bool {
		peers := alice.Participants()
		return len(peers) == 1 && !peers[0].AudioEnabled && peers[0].VideoEnabled
	})
}
