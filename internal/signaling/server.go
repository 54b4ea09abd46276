package signaling

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomloop/roomloop/internal/metrics"
	"github.com/roomloop/roomloop/internal/origin"
	"github.com/roomloop/roomloop/internal/protocol"
	"github.com/roomloop/roomloop/internal/ratelimit"
	"github.com/roomloop/roomloop/internal/room"
)

// Server relays signaling frames between the participants of a room.
type Server struct {
	registry *room.Registry
	metrics  *metrics.Metrics
	cfg      Config
	clock    ratelimit.Clock
	upgrader websocket.Upgrader
}

func NewServer(registry *room.Registry, m *metrics.Metrics, allow origin.Allowlist, cfg Config) *Server {
	return &Server{
		registry: registry,
		metrics:  m,
		cfg:      cfg.WithDefaults(),
		clock:    ratelimit.RealClock{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return allow.Allowed(r.Header.Get("Origin"))
			},
		},
	}
}

// HandleConnection upgrades the request, admits the participant into roomID,
// and pumps frames until the connection drops. It returns when the
// participant has fully left the room.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request, roomID, displayName string) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "room_id", roomID, "err", err)
		return
	}

	c := newConn(ws, s.cfg)
	go c.writePump()

	// Join enqueues the room_joined welcome itself, under the registry's
	// critical section, so it is the first frame on the wire even when
	// other participants join the room concurrently.
	participantID, _, err := s.registry.Join(roomID, displayName, c)
	if err != nil {
		slog.Warn("join rejected", "room_id", roomID, "name", displayName, "err", err)
		close(c.done)
		return
	}

	s.readLoop(c, roomID, participantID, displayName)

	s.registry.Leave(participantID)
	close(c.done)
}

func (s *Server) readLoop(c *conn, roomID, participantID, displayName string) {
	limiter := ratelimit.New(s.clock, s.cfg.MessagesPerSecond)

	c.ws.SetReadLimit(s.cfg.MaxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("connection dropped", "participant_id", participantID, "err", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		if !limiter.Allow() {
			s.metrics.Inc(metrics.EventRateLimited)
			slog.Warn("signaling rate limit exceeded", "participant_id", participantID)
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			// Malformed frames are dropped; the connection stays open.
			s.metrics.Inc(metrics.EventMalformedDropped)
			slog.Warn("malformed message dropped", "participant_id", participantID, "err", err)
			continue
		}

		s.route(msg, roomID, participantID, displayName)
	}
}

func (s *Server) route(msg protocol.Message, roomID, participantID, displayName string) {
	if msg.Directed() {
		// Stamp the sender identity so recipients never trust a
		// client-claimed one.
		msg.Sender = participantID
		msg.SenderName = displayName

		rm, ok := s.registry.RoomOf(participantID)
		if !ok {
			s.metrics.Inc(metrics.EventStaleParticipant)
			return
		}
		if !rm.SendTo(msg.Target, &msg) {
			// Target already left; at-most-once semantics mean the sender's
			// negotiation simply times out.
			s.metrics.Inc(metrics.EventStaleTarget)
			slog.Debug("directed message to absent target dropped",
				"type", msg.Type, "target", msg.Target, "room_id", roomID)
			return
		}
		s.metrics.Inc(metrics.EventDirectedRelayed)
		return
	}

	switch msg.Type {
	case protocol.TypeMediaState:
		if err := s.registry.UpdateMediaState(participantID, *msg.AudioEnabled, *msg.VideoEnabled); err != nil {
			slog.Debug("media-state from departed participant dropped", "participant_id", participantID)
			return
		}
		s.metrics.Inc(metrics.EventBroadcastRelayed)

	case protocol.TypeChat:
		rm, ok := s.registry.RoomOf(participantID)
		if !ok {
			s.metrics.Inc(metrics.EventStaleParticipant)
			return
		}
		msg.User = &protocol.User{ID: participantID, Name: displayName}
		// Chat echoes back to the sender as well, so every participant
		// renders the same transcript.
		dropped := rm.Broadcast("", &msg)
		s.metrics.Add(metrics.EventSlowConsumerDrop, uint64(dropped))
		s.metrics.Inc(metrics.EventBroadcastRelayed)

	default:
		// Remaining broadcast types (membership events) are normally
		// server-originated; a client echoing one is relayed to the rest of
		// the room untouched.
		rm, ok := s.registry.RoomOf(participantID)
		if !ok {
			s.metrics.Inc(metrics.EventStaleParticipant)
			return
		}
		dropped := rm.Broadcast(participantID, &msg)
		s.metrics.Add(metrics.EventSlowConsumerDrop, uint64(dropped))
		s.metrics.Inc(metrics.EventBroadcastRelayed)
	}
}
