// Package peer drives WebRTC negotiation with each remote participant in a
// call: one session per remote id, offer/answer handshakes, trickle ICE
// with an explicit pre-description candidate queue, and track swapping for
// screen share.
package peer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/roomloop/roomloop/internal/protocol"
)

// ErrSessionExists guards CreateSession against duplicate remote ids.
var ErrSessionExists = errors.New("peer session already exists")

// SignalSender carries outbound signaling messages to the relay. The
// connection manager satisfies it.
type SignalSender interface {
	Send(msg protocol.Message)
}

// Options configures an Engine.
type Options struct {
	// Sender relays offers, answers and candidates. Required.
	Sender SignalSender
	// ICEServers for every peer connection, typically STUN.
	ICEServers []webrtc.ICEServer
	// LocalTracks returns the tracks to attach when a session is created.
	// Called once per session; may be nil for a receive-only client.
	LocalTracks func() []webrtc.TrackLocal
	// OnRemoteTrack fires when a remote participant's media arrives. This
	// is the only path by which remote audio or video becomes observable.
	OnRemoteTrack func(remoteID string, track *webrtc.TrackRemote)
	// OnSessionConnected fires when a session's transport reaches
	// connected. Optional, used for UI state.
	OnSessionConnected func(remoteID string)
}

// Engine owns every peer session of one call. Inbound signaling that does
// not match a live session (a stale answer, a candidate for a departed
// participant) is logged and dropped without touching the rest.
type Engine struct {
	opts Options
	api  *webrtc.API

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Sender == nil {
		return nil, errors.New("peer: Options.Sender is required")
	}
	se := webrtc.SettingEngine{LoggerFactory: slogLoggerFactory{}}
	return &Engine{
		opts:     opts,
		api:      webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		sessions: make(map[string]*Session),
	}, nil
}

// CreateSession allocates the session toward remoteID and, when initiator
// is set, kicks off the offer handshake. The joiner initiates toward every
// participant that was already in the room; existing members wait for
// offers instead.
func (e *Engine) CreateSession(remoteID string, initiator bool) error {
	s, err := e.newSession(remoteID)
	if err != nil {
		return err
	}
	if !initiator {
		return nil
	}
	if err := s.initiateOffer(e.opts.Sender.Send); err != nil {
		e.Teardown(remoteID)
		return err
	}
	return nil
}

func (e *Engine) newSession(remoteID string) (*Session, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errors.New("peer: engine closed")
	}
	if _, ok := e.sessions[remoteID]; ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, remoteID)
	}
	e.mu.Unlock()

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.opts.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	s := &Session{remoteID: remoteID, pc: pc, state: SessionNew}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		// Trickle: each candidate goes out the moment it is discovered.
		init := c.ToJSON()
		e.opts.Sender.Send(protocol.Message{
			Type:      protocol.TypeICECandidate,
			Target:    remoteID,
			Candidate: &init,
		})
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Debug("remote track", "remote_id", remoteID, "kind", track.Kind().String())
		if e.opts.OnRemoteTrack != nil {
			e.opts.OnRemoteTrack(remoteID, track)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.setState(SessionConnected)
			if e.opts.OnSessionConnected != nil {
				e.opts.OnSessionConnected(remoteID)
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			s.setState(SessionClosed)
		}
	})

	if e.opts.LocalTracks != nil {
		if err := s.attachTracks(e.opts.LocalTracks()); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	e.mu.Lock()
	if e.closed || e.sessions[remoteID] != nil {
		e.mu.Unlock()
		_ = pc.Close()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, remoteID)
	}
	e.sessions[remoteID] = s
	e.mu.Unlock()
	return s, nil
}

// HandleOffer applies a remote offer and replies with an answer. A session
// is created on demand: receiving an offer is how the responder side of a
// handshake starts.
func (e *Engine) HandleOffer(remoteID string, offer webrtc.SessionDescription) error {
	e.mu.Lock()
	s := e.sessions[remoteID]
	e.mu.Unlock()

	if s == nil {
		var err error
		if s, err = e.newSession(remoteID); err != nil {
			return err
		}
	}
	if err := s.applyOffer(offer, e.opts.Sender.Send); err != nil {
		return fmt.Errorf("offer from %s: %w", remoteID, err)
	}
	return nil
}

// HandleAnswer applies a remote answer to the existing session. An answer
// with no matching session is stale and is dropped here.
func (e *Engine) HandleAnswer(remoteID string, answer webrtc.SessionDescription) error {
	e.mu.Lock()
	s := e.sessions[remoteID]
	e.mu.Unlock()

	if s == nil {
		slog.Debug("dropping answer with no matching session", "remote_id", remoteID)
		return nil
	}
	if err := s.applyAnswer(answer); err != nil {
		return fmt.Errorf("answer from %s: %w", remoteID, err)
	}
	return nil
}

// HandleCandidate feeds a remote candidate into the matching session,
// queueing it until that session has a remote description. Candidates for
// unknown sessions are stale and are dropped.
func (e *Engine) HandleCandidate(remoteID string, candidate webrtc.ICECandidateInit) error {
	e.mu.Lock()
	s := e.sessions[remoteID]
	e.mu.Unlock()

	if s == nil {
		slog.Debug("dropping candidate with no matching session", "remote_id", remoteID)
		return nil
	}
	if err := s.addCandidate(candidate); err != nil {
		return fmt.Errorf("candidate from %s: %w", remoteID, err)
	}
	return nil
}

// ReplaceVideoTrack swaps the outgoing video track on every live session
// in place. The transceivers stay up, so no renegotiation round-trip
// happens.
func (e *Engine) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		if err := s.replaceVideoTrack(track); err != nil {
			return err
		}
	}
	return nil
}

// Session returns the live session for remoteID, if any.
func (e *Engine) Session(remoteID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[remoteID]
	return s, ok
}

// RemoteIDs returns the ids of every live session.
func (e *Engine) RemoteIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount reports how many sessions are live.
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Teardown releases the session toward remoteID and its network
// resources. Idempotent.
func (e *Engine) Teardown(remoteID string) {
	e.mu.Lock()
	s := e.sessions[remoteID]
	delete(e.sessions, remoteID)
	e.mu.Unlock()
	if s != nil {
		s.close()
	}
}

// Close tears down every session. The engine cannot be reused afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	sessions := e.sessions
	e.sessions = make(map[string]*Session)
	e.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
