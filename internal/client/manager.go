// Package client owns the transport connection from a call client to the
// signaling relay: connect with a bounded timeout, a single fixed-delay
// reconnect on unexpected closure, and deterministic graceful close.
package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomloop/roomloop/internal/protocol"
)

// State of the transport connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateReconnecting:
		return "reconnecting"
	}
	return "unknown"
}

var (
	// ErrConnectTimeout means the connection never reached Open within the
	// configured bound.
	ErrConnectTimeout = errors.New("connect timeout")
	// ErrConnectionLost is terminal: the single reconnect attempt after an
	// unexpected closure also failed. The caller decides what to do next.
	ErrConnectionLost = errors.New("connection lost")
	// ErrAlreadyConnected guards against overlapping connection attempts.
	ErrAlreadyConnected = errors.New("already connected")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Welcome is the server's room_joined response.
type Welcome struct {
	RoomID        string
	ParticipantID string
	Participants  []protocol.User
}

// Options configures a Manager.
type Options struct {
	// ServerURL is the relay base, e.g. "ws://host:8080".
	ServerURL string
	// ConnectTimeout bounds dial plus the wait for room_joined.
	ConnectTimeout time.Duration
	// ReconnectDelay is the fixed backoff before the single reconnect
	// attempt.
	ReconnectDelay time.Duration

	// OnMessage receives every inbound frame after room_joined, in arrival
	// order on a single goroutine.
	OnMessage func(protocol.Message)
	// OnReconnect fires after a successful automatic reconnect. The server
	// assigns a fresh participant id, so the caller must rebuild its peer
	// sessions from the new Welcome.
	OnReconnect func(Welcome)
	// OnClosed fires once when the connection is over for good: err is
	// ErrConnectionLost after a failed reconnect, nil after a graceful
	// remote close. It does not fire on local Close.
	OnClosed func(err error)
}

// link is one physical WebSocket connection; a reconnect replaces it
// wholesale so pumps from a dead connection can never touch the new one.
type link struct {
	ws       *websocket.Conn
	outgoing chan protocol.Message
	done     chan struct{}
	once     sync.Once
}

func (l *link) shutdown() {
	l.once.Do(func() { close(l.done) })
}

// Manager is the client-side Connection Manager. One Manager handles one
// room session.
type Manager struct {
	opts Options

	// afterFunc is swapped in tests for deterministic reconnect timing.
	afterFunc func(time.Duration, func()) *time.Timer

	mu               sync.Mutex
	state            State
	link             *link
	roomID           string
	displayName      string
	reconnectTimer   *time.Timer
	reconnectPending bool
}

func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	return &Manager{
		opts:      opts,
		afterFunc: time.AfterFunc,
	}
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the transport session and waits for room_joined. Valid only
// in Idle.
func (m *Manager) Connect(roomID, displayName string) (Welcome, error) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return Welcome{}, ErrAlreadyConnected
	}
	m.state = StateConnecting
	m.roomID = roomID
	m.displayName = displayName
	m.mu.Unlock()

	welcome, l, err := m.dial(roomID, displayName)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateIdle
		return Welcome{}, err
	}
	if m.state != StateConnecting {
		// Close raced us; drop the fresh connection.
		l.shutdown()
		l.ws.Close()
		return Welcome{}, ErrAlreadyConnected
	}
	m.state = StateOpen
	m.link = l
	go m.readPump(l)
	go m.writePump(l)
	return welcome, nil
}

func (m *Manager) dial(roomID, displayName string) (Welcome, *link, error) {
	endpoint := fmt.Sprintf("%s/ws/%s?name=%s", m.opts.ServerURL, url.PathEscape(roomID), url.QueryEscape(displayName))

	dialer := websocket.Dialer{HandshakeTimeout: m.opts.ConnectTimeout}
	ws, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return Welcome{}, nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}

	// The session is not Open until the server has admitted us.
	ws.SetReadDeadline(time.Now().Add(m.opts.ConnectTimeout))
	var joined protocol.Message
	if err := ws.ReadJSON(&joined); err != nil || joined.Type != protocol.TypeRoomJoined {
		ws.Close()
		if err == nil {
			err = fmt.Errorf("unexpected first message %q", joined.Type)
		}
		return Welcome{}, nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}

	l := &link{
		ws:       ws,
		outgoing: make(chan protocol.Message, sendBuffer),
		done:     make(chan struct{}),
	}
	return Welcome{
		RoomID:        joined.RoomID,
		ParticipantID: joined.UserID,
		Participants:  joined.Participants,
	}, l, nil
}

// Send transmits a message to the relay. Valid only in Open; otherwise the
// message is silently dropped and the caller must treat the update as lost.
func (m *Manager) Send(msg protocol.Message) {
	m.mu.Lock()
	l := m.link
	open := m.state == StateOpen
	m.mu.Unlock()
	if !open || l == nil {
		return
	}
	select {
	case l.outgoing <- msg:
	default:
		slog.Warn("outgoing signaling queue full, message dropped", "type", msg.Type)
	}
}

// Close tears the connection down gracefully and cancels any pending
// reconnect. This is the only path that prevents auto-reconnect.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.reconnectPending = false
	l := m.link
	m.link = nil
	m.state = StateIdle
	m.mu.Unlock()

	if l != nil {
		l.shutdown() // writePump sends the close frame and closes the socket
	}
}

func (m *Manager) readPump(l *link) {
	l.ws.SetReadDeadline(time.Now().Add(pongWait))
	l.ws.SetPongHandler(func(string) error {
		l.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		if err := l.ws.ReadJSON(&msg); err != nil {
			m.handleDisconnect(l, err)
			return
		}
		if m.opts.OnMessage != nil {
			m.opts.OnMessage(msg)
		}
	}
}

func (m *Manager) writePump(l *link) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.ws.Close()
	}()

	for {
		select {
		case msg := <-l.outgoing:
			l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-l.done:
			l.ws.SetWriteDeadline(time.Now().Add(writeWait))
			l.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (m *Manager) handleDisconnect(l *link, err error) {
	graceful := websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)

	m.mu.Lock()
	if m.link != l {
		// A stale pump from an already-replaced connection.
		m.mu.Unlock()
		return
	}
	m.link = nil
	l.shutdown()

	if m.state != StateOpen {
		// Local Close already handled the transition.
		m.mu.Unlock()
		return
	}

	if graceful {
		m.state = StateIdle
		m.mu.Unlock()
		if m.opts.OnClosed != nil {
			m.opts.OnClosed(nil)
		}
		return
	}

	// Exactly one reconnect attempt per failure; the pending flag is the
	// single-flight guard.
	if m.reconnectPending {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.reconnectPending = true
	slog.Warn("connection lost, scheduling reconnect", "delay", m.opts.ReconnectDelay, "err", err)
	m.reconnectTimer = m.afterFunc(m.opts.ReconnectDelay, m.tryReconnect)
	m.mu.Unlock()
}

func (m *Manager) tryReconnect() {
	m.mu.Lock()
	m.reconnectPending = false
	m.reconnectTimer = nil
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	roomID, displayName := m.roomID, m.displayName
	m.mu.Unlock()

	welcome, l, err := m.dial(roomID, displayName)

	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		if err == nil {
			l.shutdown()
			l.ws.Close()
		}
		return
	}
	if err != nil {
		m.state = StateIdle
		m.mu.Unlock()
		slog.Error("reconnect failed", "err", err)
		if m.opts.OnClosed != nil {
			m.opts.OnClosed(ErrConnectionLost)
		}
		return
	}
	m.state = StateOpen
	m.link = l
	go m.readPump(l)
	go m.writePump(l)
	m.mu.Unlock()

	slog.Info("reconnected", "room_id", welcome.RoomID, "participant_id", welcome.ParticipantID)
	if m.opts.OnReconnect != nil {
		m.opts.OnReconnect(welcome)
	}
}
