package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomloop/roomloop/internal/protocol"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// scriptedRelay runs one script function per accepted connection, in order.
// Connections beyond the script are rejected at the HTTP layer.
func scriptedRelay(t *testing.T, attempts *atomic.Int32, scripts ...func(*websocket.Conn)) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(attempts.Add(1)) - 1
		if n >= len(scripts) {
			http.Error(w, "no more connections", http.StatusServiceUnavailable)
			return
		}
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		scripts[n](ws)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func sendRoomJoined(t *testing.T, ws *websocket.Conn, id string) {
	t.Helper()
	msg := protocol.Message{Type: protocol.TypeRoomJoined, RoomID: "r1", UserID: id}
	if err := ws.WriteJSON(msg); err != nil {
		t.Errorf("write room_joined: %v", err)
	}
}

// holdOpen keeps reading so pings are answered until the test finishes.
func holdOpen(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func immediateTimer(d time.Duration, f func()) *time.Timer {
	return time.AfterFunc(0, f)
}

func TestConnect_ReachesOpen(t *testing.T) {
	var attempts atomic.Int32
	ts := scriptedRelay(t, &attempts, func(ws *websocket.Conn) {
		sendRoomJoined(t, ws, "p1")
		holdOpen(ws)
	})

	m := NewManager(Options{ServerURL: wsURL(ts), ConnectTimeout: 5 * time.Second})
	t.Cleanup(m.Close)

	welcome, err := m.Connect("r1", "alice")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if welcome.ParticipantID != "p1" || welcome.RoomID != "r1" {
		t.Fatalf("welcome = %#v", welcome)
	}
	if m.State() != StateOpen {
		t.Fatalf("state = %v, want open", m.State())
	}
	if _, err := m.Connect("r1", "alice"); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second connect err = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnect_TimesOutWithoutRoomJoined(t *testing.T) {
	var attempts atomic.Int32
	ts := scriptedRelay(t, &attempts, func(ws *websocket.Conn) {
		// Admit the socket but never send room_joined.
		holdOpen(ws)
	})

	m := NewManager(Options{ServerURL: wsURL(ts), ConnectTimeout: 200 * time.Millisecond})

	if _, err := m.Connect("r1", "alice"); !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("err = %v, want ErrConnectTimeout", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle after failed connect", m.State())
	}
}

func TestSend_DroppedWhenNotOpen(t *testing.T) {
	m := NewManager(Options{ServerURL: "ws://127.0.0.1:1"})
	// Must not panic or block.
	m.Send(protocol.Message{Type: protocol.TypeChat, Text: "ignored"})
}

func TestReconnect_SingleAttemptSucceeds(t *testing.T) {
	reconnected := make(chan Welcome, 1)

	var attempts atomic.Int32
	ts := scriptedRelay(t, &attempts,
		func(ws *websocket.Conn) {
			sendRoomJoined(t, ws, "p1")
			ws.Close() // abrupt: no close handshake
		},
		func(ws *websocket.Conn) {
			sendRoomJoined(t, ws, "p2")
			holdOpen(ws)
		},
	)

	m := NewManager(Options{
		ServerURL:      wsURL(ts),
		ConnectTimeout: 5 * time.Second,
		OnReconnect:    func(w Welcome) { reconnected <- w },
	})
	m.afterFunc = immediateTimer
	t.Cleanup(m.Close)

	if _, err := m.Connect("r1", "alice"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case w := <-reconnected:
		if w.ParticipantID != "p2" {
			t.Fatalf("reconnect welcome = %#v", w)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("reconnect never fired")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("connection attempts = %d, want 2", got)
	}
	if m.State() != StateOpen {
		t.Fatalf("state = %v, want open", m.State())
	}
}

func TestReconnect_SecondFailureIsTerminal(t *testing.T) {
	closed := make(chan error, 1)

	var attempts atomic.Int32
	ts := scriptedRelay(t, &attempts,
		func(ws *websocket.Conn) {
			sendRoomJoined(t, ws, "p1")
			ws.Close()
		},
		// Second script slot exists but refuses the handshake.
	)

	m := NewManager(Options{
		ServerURL:      wsURL(ts),
		ConnectTimeout: 500 * time.Millisecond,
		OnClosed:       func(err error) { closed <- err },
	})
	m.afterFunc = immediateTimer

	if _, err := m.Connect("r1", "alice"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case err := <-closed:
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("terminal err = %v, want ErrConnectionLost", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("terminal condition never surfaced")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("connection attempts = %d, want exactly 2 (no retry storm)", got)
	}
	if m.State() != StateIdle {
		t.Fatalf("state = %v, want idle", m.State())
	}
}

func TestClose_CancelsPendingReconnect(t *testing.T) {
	fired := make(chan func(), 1)
	closed := make(chan error, 1)

	var attempts atomic.Int32
	ts := scriptedRelay(t, &attempts, func(ws *websocket.Conn) {
		sendRoomJoined(t, ws, "p1")
		ws.Close()
	})

	m := NewManager(Options{
		ServerURL:      wsURL(ts),
		ConnectTimeout: 5 * time.Second,
		OnClosed:       func(err error) { closed <- err },
	})
	// Capture the reconnect callback instead of running it, so the test
	// controls when (and whether) it fires.
	m.afterFunc = func(d time.Duration, f func()) *time.Timer {
		fired <- f
		return time.NewTimer(time.Hour)
	}

	if _, err := m.Connect("r1", "alice"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var reconnect func()
	select {
	case reconnect = <-fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("reconnect never scheduled")
	}

	m.Close()
	reconnect() // late timer fire after Close must be a no-op

	select {
	case err := <-closed:
		t.Fatalf("OnClosed fired after local Close: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("connection attempts = %d, want 1 (reconnect cancelled)", got)
	}
}

func TestGracefulRemoteClose_NoReconnect(t *testing.T) {
	closed := make(chan error, 1)

	var attempts atomic.Int32
	ts := scriptedRelay(t, &attempts, func(ws *websocket.Conn) {
		sendRoomJoined(t, ws, "p1")
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// Wait for the client's close response.
		ws.ReadMessage()
		ws.Close()
	})

	m := NewManager(Options{
		ServerURL:      wsURL(ts),
		ConnectTimeout: 5 * time.Second,
		OnClosed:       func(err error) { closed <- err },
	})
	m.afterFunc = immediateTimer

	if _, err := m.Connect("r1", "alice"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("graceful close surfaced err = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("graceful close never surfaced")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("connection attempts = %d, want 1", got)
	}
}
