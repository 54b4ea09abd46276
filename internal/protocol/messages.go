// Package protocol defines the JSON wire schema spoken between call clients
// and the signaling relay, one message per WebSocket text frame.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pion/webrtc/v4"
)

// Type tags a signaling message.
type Type string

const (
	// Server -> client membership events.
	TypeRoomJoined Type = "room_joined"
	TypeUserJoined Type = "user_joined"
	TypeUserLeft   Type = "user_left"

	// Peer -> peer negotiation, relayed to a single target.
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "ice-candidate"

	// Peer -> room broadcasts.
	TypeMediaState Type = "media-state"
	TypeChat       Type = "chat"
)

// User describes one participant as seen on the wire.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AudioEnabled bool   `json:"audio_enabled"`
	VideoEnabled bool   `json:"video_enabled"`
}

// Message is the single envelope for every signaling frame. Which fields are
// required depends on Type; Validate enforces that per-type shape.
type Message struct {
	Type Type `json:"type"`

	// room_joined only.
	RoomID       string `json:"room_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Participants []User `json:"participants,omitempty"`

	// user_joined / user_left / media-state / chat (set by the relay).
	User *User `json:"user,omitempty"`

	// Directed delivery (offer/answer/ice-candidate). Target names the
	// recipient; Sender/SenderName are stamped by the relay before
	// forwarding so recipients never trust a client-claimed identity.
	Target     string `json:"target,omitempty"`
	Sender     string `json:"sender,omitempty"`
	SenderName string `json:"sender_name,omitempty"`

	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	// media-state only. Pointers so "absent" is distinguishable from false.
	AudioEnabled *bool `json:"audio_enabled,omitempty"`
	VideoEnabled *bool `json:"video_enabled,omitempty"`

	// chat only.
	Text string `json:"text,omitempty"`
}

// Parse decodes a single frame strictly: unknown fields and trailing data are
// rejected so schema drift surfaces as a MalformedMessage drop instead of
// silently ignored payload.
func Parse(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Message{}, fmt.Errorf("unexpected trailing data")
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Validate checks the per-type required fields from the wire table.
func (m Message) Validate() error {
	switch m.Type {
	case TypeRoomJoined:
		if m.UserID == "" {
			return fmt.Errorf("room_joined message missing user_id")
		}
	case TypeUserJoined, TypeUserLeft:
		if m.User == nil || m.User.ID == "" {
			return fmt.Errorf("%s message missing user", m.Type)
		}
	case TypeOffer:
		if m.Offer == nil {
			return fmt.Errorf("offer message missing offer")
		}
		if m.Offer.Type != webrtc.SDPTypeOffer {
			return fmt.Errorf("offer message has sdp type %q", m.Offer.Type)
		}
		if m.Target == "" {
			return fmt.Errorf("offer message missing target")
		}
	case TypeAnswer:
		if m.Answer == nil {
			return fmt.Errorf("answer message missing answer")
		}
		if m.Answer.Type != webrtc.SDPTypeAnswer {
			return fmt.Errorf("answer message has sdp type %q", m.Answer.Type)
		}
		if m.Target == "" {
			return fmt.Errorf("answer message missing target")
		}
	case TypeICECandidate:
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return fmt.Errorf("ice-candidate message missing candidate")
		}
		if m.Target == "" {
			return fmt.Errorf("ice-candidate message missing target")
		}
	case TypeMediaState:
		if m.AudioEnabled == nil || m.VideoEnabled == nil {
			return fmt.Errorf("media-state message missing audio_enabled/video_enabled")
		}
	case TypeChat:
		if m.Text == "" {
			return fmt.Errorf("chat message missing text")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// Directed reports whether the message is relayed to exactly one target
// instead of broadcast to the sender's room.
func (m Message) Directed() bool {
	switch m.Type {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// Bool returns a pointer suitable for the optional media-state fields.
func Bool(v bool) *bool { return &v }
