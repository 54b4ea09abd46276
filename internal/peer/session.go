package peer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/roomloop/roomloop/internal/protocol"
)

// SessionState tracks signaling progress with one remote participant. ICE
// gathering runs independently underneath and does not appear here.
type SessionState int

const (
	SessionNew SessionState = iota
	SessionHaveLocalOffer
	SessionHaveRemoteOffer
	SessionNegotiating
	SessionConnected
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionNew:
		return "new"
	case SessionHaveLocalOffer:
		return "have-local-offer"
	case SessionHaveRemoteOffer:
		return "have-remote-offer"
	case SessionNegotiating:
		return "negotiating"
	case SessionConnected:
		return "connected"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}

// Session owns the PeerConnection toward one remote participant. All
// signaling input is funneled through the owning Engine; pion callbacks
// (candidates, tracks, connection state) fire on pion's goroutines and
// only touch the session under its mutex.
type Session struct {
	remoteID string
	pc       *webrtc.PeerConnection

	mu        sync.Mutex
	state     SessionState
	remoteSet bool
	queue     candidateQueue

	// videoSender is the RTP sender carrying our outgoing video track,
	// retained so screen share can swap the track without renegotiating.
	videoSender *webrtc.RTPSender
}

func (s *Session) RemoteID() string { return s.remoteID }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCandidates reports how many remote candidates are waiting for the
// remote description.
func (s *Session) PendingCandidates() int {
	return s.queue.len()
}

func (s *Session) setState(next SessionState) {
	s.mu.Lock()
	prev := s.state
	if prev == SessionClosed {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.mu.Unlock()
	if prev != next {
		slog.Debug("peer session transition",
			"remote_id", s.remoteID, "from", prev, "to", next)
	}
}

func (s *Session) attachTracks(tracks []webrtc.TrackLocal) error {
	for _, track := range tracks {
		sender, err := s.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			s.mu.Lock()
			s.videoSender = sender
			s.mu.Unlock()
		}
	}
	return nil
}

// initiateOffer runs the initiator half of the handshake and hands the
// offer to send so the caller can relay it.
func (s *Session) initiateOffer(send func(protocol.Message)) error {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	s.setState(SessionHaveLocalOffer)

	send(protocol.Message{
		Type:   protocol.TypeOffer,
		Target: s.remoteID,
		Offer:  s.pc.LocalDescription(),
	})
	return nil
}

// applyOffer runs the responder half: remote offer in, answer out.
func (s *Session) applyOffer(offer webrtc.SessionDescription, send func(protocol.Message)) error {
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	s.setState(SessionHaveRemoteOffer)
	if err := s.flushQueued(); err != nil {
		return err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	s.setState(SessionNegotiating)

	send(protocol.Message{
		Type:   protocol.TypeAnswer,
		Target: s.remoteID,
		Answer: s.pc.LocalDescription(),
	})
	return nil
}

func (s *Session) applyAnswer(answer webrtc.SessionDescription) error {
	if err := s.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	s.setState(SessionNegotiating)
	return s.flushQueued()
}

// addCandidate applies a remote candidate, or queues it when the remote
// description has not landed yet.
func (s *Session) addCandidate(c webrtc.ICECandidateInit) error {
	s.mu.Lock()
	if !s.remoteSet {
		s.mu.Unlock()
		s.queue.put(c)
		return nil
	}
	s.mu.Unlock()
	if err := s.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// flushQueued marks the remote description present and applies everything
// that queued up before it, preserving arrival order.
func (s *Session) flushQueued() error {
	s.mu.Lock()
	s.remoteSet = true
	s.mu.Unlock()

	for _, c := range s.queue.drain() {
		if err := s.pc.AddICECandidate(c); err != nil {
			return fmt.Errorf("flush queued candidate: %w", err)
		}
	}
	return nil
}

func (s *Session) replaceVideoTrack(track webrtc.TrackLocal) error {
	s.mu.Lock()
	sender := s.videoSender
	s.mu.Unlock()
	if sender == nil {
		return nil
	}
	if err := sender.ReplaceTrack(track); err != nil {
		return fmt.Errorf("replace video track for %s: %w", s.remoteID, err)
	}
	return nil
}

func (s *Session) close() {
	s.setState(SessionClosed)
	if err := s.pc.Close(); err != nil {
		slog.Debug("peer connection close", "remote_id", s.remoteID, "err", err)
	}
}
