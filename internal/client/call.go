package client

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/roomloop/roomloop/internal/media"
	"github.com/roomloop/roomloop/internal/peer"
	"github.com/roomloop/roomloop/internal/protocol"
)

// CallOptions configures a Call.
type CallOptions struct {
	ServerURL      string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration

	// ICEServers for peer negotiation, typically STUN.
	ICEServers []webrtc.ICEServer
	// Capturer provides local media. Required.
	Capturer media.Capturer

	// OnRemoteTrack fires when a remote participant's media arrives.
	OnRemoteTrack func(remoteID string, track *webrtc.TrackRemote)
	// OnRosterChange fires after someone joins, leaves, or changes media
	// state, with the current remote roster.
	OnRosterChange func(participants []protocol.User)
	// OnChat fires for relayed chat messages, including our own echo.
	OnChat func(from protocol.User, text string)
	// OnEnded fires when the call is over without a local Leave: nil after
	// a graceful remote close, ErrConnectionLost when the transport died.
	OnEnded func(err error)
}

// Call wires the three client components together: the transport session,
// peer negotiation, and local media. One Call is one stay in one room.
type Call struct {
	manager *Manager
	engine  *peer.Engine
	media   *media.Controller
	opts    CallOptions

	rosterMu sync.Mutex
	roster   map[string]protocol.User
	selfID   string
}

// NewCall builds an unconnected Call; Join starts it.
func NewCall(opts CallOptions) (*Call, error) {
	if opts.Capturer == nil {
		return nil, errors.New("client: CallOptions.Capturer is required")
	}
	c := &Call{roster: make(map[string]protocol.User), opts: opts}

	c.manager = NewManager(Options{
		ServerURL:      opts.ServerURL,
		ConnectTimeout: opts.ConnectTimeout,
		ReconnectDelay: opts.ReconnectDelay,
		OnMessage:      c.dispatch,
		OnReconnect:    c.rebuild,
		OnClosed: func(err error) {
			if opts.OnEnded != nil {
				opts.OnEnded(err)
			}
		},
	})

	engine, err := peer.NewEngine(peer.Options{
		Sender:        c.manager,
		ICEServers:    opts.ICEServers,
		LocalTracks:   func() []webrtc.TrackLocal { return c.media.Tracks() },
		OnRemoteTrack: opts.OnRemoteTrack,
	})
	if err != nil {
		return nil, err
	}
	c.engine = engine
	c.media = media.NewController(opts.Capturer, engine, c.manager)
	return c, nil
}

// Media exposes the local track controller (mute toggles, screen share).
func (c *Call) Media() *media.Controller { return c.media }

// SelfID returns the participant id the server assigned, empty before
// Join.
func (c *Call) SelfID() string {
	c.rosterMu.Lock()
	defer c.rosterMu.Unlock()
	return c.selfID
}

// Participants returns the current remote roster.
func (c *Call) Participants() []protocol.User {
	c.rosterMu.Lock()
	defer c.rosterMu.Unlock()
	out := make([]protocol.User, 0, len(c.roster))
	for _, u := range c.roster {
		out = append(out, u)
	}
	return out
}

// SessionCount reports how many peer sessions are live.
func (c *Call) SessionCount() int { return c.engine.SessionCount() }

// Join acquires local media, connects to the room, and starts negotiation
// toward every participant already present. As the newcomer we initiate;
// members that arrive later initiate toward us. A failure at any step
// unwinds everything acquired before it.
func (c *Call) Join(roomID, displayName string) error {
	if err := c.media.Start(); err != nil {
		return err
	}
	welcome, err := c.manager.Connect(roomID, displayName)
	if err != nil {
		c.media.Close()
		return err
	}
	c.seed(welcome)

	for _, u := range welcome.Participants {
		if err := c.engine.CreateSession(u.ID, true); err != nil {
			slog.Error("initiate toward existing participant", "remote_id", u.ID, "err", err)
		}
	}
	return nil
}

func (c *Call) seed(w Welcome) {
	c.rosterMu.Lock()
	c.selfID = w.ParticipantID
	c.roster = make(map[string]protocol.User, len(w.Participants))
	for _, u := range w.Participants {
		c.roster[u.ID] = u
	}
	c.rosterMu.Unlock()
}

// SendChat relays a chat line to the whole room; the server echoes it back
// to us too.
func (c *Call) SendChat(text string) {
	c.manager.Send(protocol.Message{Type: protocol.TypeChat, Text: text})
}

// Leave tears down every peer session, releases media, and closes the
// transport, in that order, before returning. Nothing keeps running in
// the background afterwards.
func (c *Call) Leave() {
	c.engine.Close()
	c.media.Close()
	c.manager.Close()
}

// dispatch routes every inbound frame. It runs on the transport's single
// read goroutine, so inbound handling is serialized in arrival order.
func (c *Call) dispatch(msg protocol.Message) {
	var err error
	switch msg.Type {
	case protocol.TypeUserJoined:
		if msg.User == nil {
			break
		}
		// The newcomer initiates toward us; creating the responder session
		// now lets their early candidates queue instead of being dropped.
		c.rosterAdd(*msg.User)
		err = c.engine.CreateSession(msg.User.ID, false)
		if errors.Is(err, peer.ErrSessionExists) {
			err = nil
		}
	case protocol.TypeUserLeft:
		if msg.User == nil {
			break
		}
		c.rosterRemove(msg.User.ID)
		c.engine.Teardown(msg.User.ID)
	case protocol.TypeOffer:
		if msg.Offer != nil {
			err = c.engine.HandleOffer(msg.Sender, *msg.Offer)
		}
	case protocol.TypeAnswer:
		if msg.Answer != nil {
			err = c.engine.HandleAnswer(msg.Sender, *msg.Answer)
		}
	case protocol.TypeICECandidate:
		if msg.Candidate != nil {
			err = c.engine.HandleCandidate(msg.Sender, *msg.Candidate)
		}
	case protocol.TypeMediaState:
		id := msg.Sender
		if msg.User != nil {
			id = msg.User.ID
		}
		if id != "" && msg.AudioEnabled != nil && msg.VideoEnabled != nil {
			c.rosterMediaState(id, *msg.AudioEnabled, *msg.VideoEnabled)
		}
	case protocol.TypeChat:
		if c.opts.OnChat != nil && msg.User != nil {
			c.opts.OnChat(*msg.User, msg.Text)
		}
	default:
		slog.Debug("ignoring unhandled message", "type", msg.Type)
	}
	if err != nil {
		slog.Error("handle signaling message", "type", msg.Type, "err", err)
	}
}

// rebuild runs after an automatic reconnect: the server issued a fresh
// participant id, so every old session is stale and negotiation restarts
// from the new roster.
func (c *Call) rebuild(w Welcome) {
	for _, id := range c.engine.RemoteIDs() {
		c.engine.Teardown(id)
	}
	c.seed(w)
	for _, u := range w.Participants {
		if err := c.engine.CreateSession(u.ID, true); err != nil {
			slog.Error("re-initiate after reconnect", "remote_id", u.ID, "err", err)
		}
	}
	c.notifyRoster()
}

func (c *Call) rosterAdd(u protocol.User) {
	c.rosterMu.Lock()
	c.roster[u.ID] = u
	c.rosterMu.Unlock()
	c.notifyRoster()
}

func (c *Call) rosterRemove(id string) {
	c.rosterMu.Lock()
	delete(c.roster, id)
	c.rosterMu.Unlock()
	c.notifyRoster()
}

func (c *Call) rosterMediaState(id string, audio, video bool) {
	c.rosterMu.Lock()
	u, ok := c.roster[id]
	if ok {
		u.AudioEnabled = audio
		u.VideoEnabled = video
		c.roster[id] = u
	}
	c.rosterMu.Unlock()
	if ok {
		c.notifyRoster()
	}
}

func (c *Call) notifyRoster() {
	if c.opts.OnRosterChange != nil {
		c.opts.OnRosterChange(c.Participants())
	}
}
