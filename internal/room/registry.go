package room

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roomloop/roomloop/internal/metrics"
	"github.com/roomloop/roomloop/internal/protocol"
)

// ErrStaleParticipant marks an operation referencing a participant that has
// already left. Callers treat it as a dropped update, never as fatal.
var ErrStaleParticipant = errors.New("stale participant")

// JoinPolicy is consulted before a participant is admitted. occupants is the
// room's size before the join (0 for a room about to be created). Returning a
// non-nil error rejects the join; the default admits everyone.
type JoinPolicy func(roomID string, occupants int) error

// Presence mirrors room membership to an external store for cross-instance
// introspection. Implementations must be best-effort and non-blocking.
type Presence interface {
	Add(roomID, participantID string)
	Remove(roomID, participantID string)
}

// Registry maps room ids to rooms and participant ids to their room. The
// registry lock covers only those indexes; all membership mutation happens
// under the individual room's lock.
type Registry struct {
	policy   JoinPolicy
	metrics  *metrics.Metrics
	presence Presence

	mu     sync.RWMutex
	rooms  map[string]*Room
	ofPeer map[string]*Room
}

// Option configures a Registry.
type Option func(*Registry)

func WithJoinPolicy(p JoinPolicy) Option { return func(r *Registry) { r.policy = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *Registry) { r.metrics = m } }

func WithPresence(p Presence) Option { return func(r *Registry) { r.presence = p } }

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:  make(map[string]*Room),
		ofPeer: make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join admits a participant into roomID, creating the room on first join.
// It returns the assigned participant id and the other current members in
// insertion order, and broadcasts user_joined to them. Media flags default
// to enabled.
//
// The room_joined welcome is enqueued on conn here, before the participant
// is added to the membership: once added, other joiners can broadcast into
// conn's queue, and the welcome must be the first frame a client reads.
func (g *Registry) Join(roomID, displayName string, conn Conn) (string, []protocol.User, error) {
	g.mu.Lock()
	rm, exists := g.rooms[roomID]
	occupants := 0
	if exists {
		occupants = rm.Size()
	}
	if g.policy != nil {
		if err := g.policy(roomID, occupants); err != nil {
			g.mu.Unlock()
			return "", nil, err
		}
	}
	if !exists {
		rm = newRoom(roomID)
		g.rooms[roomID] = rm
		g.metrics.Inc(metrics.EventRoomCreated)
		slog.Info("room created", "room_id", roomID)
	}

	p := &Participant{
		ID:           uuid.NewString(),
		Name:         displayName,
		AudioEnabled: true,
		VideoEnabled: true,
		conn:         conn,
	}
	existing := rm.Users("")
	conn.TrySend(&protocol.Message{
		Type:         protocol.TypeRoomJoined,
		RoomID:       roomID,
		UserID:       p.ID,
		Participants: existing,
	})
	rm.add(p)
	g.ofPeer[p.ID] = rm
	g.mu.Unlock()

	g.metrics.Inc(metrics.EventJoin)
	if g.presence != nil {
		g.presence.Add(roomID, p.ID)
	}
	slog.Info("participant joined", "room_id", roomID, "participant_id", p.ID, "name", displayName, "occupants", len(existing)+1)

	rm.Broadcast(p.ID, &protocol.Message{
		Type: protocol.TypeUserJoined,
		User: &protocol.User{ID: p.ID, Name: p.Name, AudioEnabled: true, VideoEnabled: true},
	})
	return p.ID, existing, nil
}

// Leave removes the participant and broadcasts user_left to the remaining
// members. The room is destroyed when its last participant leaves. Leaving
// twice is a no-op.
func (g *Registry) Leave(participantID string) {
	g.mu.Lock()
	rm, ok := g.ofPeer[participantID]
	if !ok {
		g.mu.Unlock()
		return
	}
	delete(g.ofPeer, participantID)

	p, removed, empty := rm.remove(participantID)
	if empty {
		delete(g.rooms, rm.ID())
		g.metrics.Inc(metrics.EventRoomDestroyed)
		slog.Info("room destroyed", "room_id", rm.ID())
	}
	g.mu.Unlock()

	if !removed {
		return
	}

	g.metrics.Inc(metrics.EventLeave)
	if g.presence != nil {
		g.presence.Remove(rm.ID(), participantID)
	}
	slog.Info("participant left", "room_id", rm.ID(), "participant_id", participantID, "name", p.Name)

	rm.Broadcast(participantID, &protocol.Message{
		Type: protocol.TypeUserLeft,
		User: &protocol.User{ID: p.ID, Name: p.Name, AudioEnabled: p.AudioEnabled, VideoEnabled: p.VideoEnabled},
	})
}

// UpdateMediaState records the participant's flags and broadcasts media-state
// to the rest of the room. Updates from departed participants are dropped.
func (g *Registry) UpdateMediaState(participantID string, audio, video bool) error {
	rm, ok := g.RoomOf(participantID)
	if !ok {
		g.metrics.Inc(metrics.EventStaleParticipant)
		return ErrStaleParticipant
	}
	u, ok := rm.setMediaState(participantID, audio, video)
	if !ok {
		g.metrics.Inc(metrics.EventStaleParticipant)
		return ErrStaleParticipant
	}
	rm.Broadcast(participantID, &protocol.Message{
		Type:         protocol.TypeMediaState,
		User:         &u,
		AudioEnabled: protocol.Bool(audio),
		VideoEnabled: protocol.Bool(video),
	})
	return nil
}

// RoomOf resolves a participant id to its room.
func (g *Registry) RoomOf(participantID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rm, ok := g.ofPeer[participantID]
	return rm, ok
}

// Info describes one room for introspection endpoints.
type Info struct {
	RoomID       string          `json:"room_id"`
	Participants []protocol.User `json:"participants"`
}

// ListRooms snapshots every active room.
func (g *Registry) ListRooms() []Info {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, rm := range g.rooms {
		rooms = append(rooms, rm)
	}
	g.mu.RUnlock()

	infos := make([]Info, 0, len(rooms))
	for _, rm := range rooms {
		infos = append(infos, Info{RoomID: rm.ID(), Participants: rm.Users("")})
	}
	return infos
}

// RoomInfo returns one room's membership view.
func (g *Registry) RoomInfo(roomID string) (Info, bool) {
	g.mu.RLock()
	rm, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return Info{RoomID: roomID}, false
	}
	return Info{RoomID: roomID, Participants: rm.Users("")}, true
}

// TotalParticipants counts connections across all rooms.
func (g *Registry) TotalParticipants() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := 0
	for _, rm := range g.rooms {
		total += rm.Size()
	}
	return total
}
