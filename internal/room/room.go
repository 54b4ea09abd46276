// Package room owns room membership state for the signaling server: creation
// on first join, ordered participant lists, media flags, and fan-out to the
// connections backing each participant.
package room

import (
	"sync"

	"github.com/roomloop/roomloop/internal/protocol"
)

// Conn is the outbound half of a participant's transport connection.
type Conn interface {
	// TrySend enqueues a message without blocking. It returns false when the
	// receiver is too slow to keep up; the message is dropped for that
	// recipient only.
	TrySend(msg *protocol.Message) bool
}

// Participant is one connected identity within a room.
type Participant struct {
	ID           string
	Name         string
	AudioEnabled bool
	VideoEnabled bool

	conn Conn
}

// Room guards its own membership so traffic in unrelated rooms never
// contends. Insertion order is preserved for deterministic participant lists.
type Room struct {
	id string

	mu      sync.RWMutex
	order   []string
	members map[string]*Participant
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[string]*Participant),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) add(p *Participant) {
	r.mu.Lock()
	r.members[p.ID] = p
	r.order = append(r.order, p.ID)
	r.mu.Unlock()
}

// remove returns the removed participant and whether the room is now empty.
func (r *Room) remove(id string) (*Participant, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.members[id]
	if !ok {
		return nil, false, len(r.members) == 0
	}
	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p, true, len(r.members) == 0
}

// Size returns the current number of participants.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Users snapshots the membership in insertion order, optionally excluding one
// participant id.
func (r *Room) Users(exclude string) []protocol.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]protocol.User, 0, len(r.order))
	for _, id := range r.order {
		if id == exclude {
			continue
		}
		p := r.members[id]
		users = append(users, protocol.User{
			ID:           p.ID,
			Name:         p.Name,
			AudioEnabled: p.AudioEnabled,
			VideoEnabled: p.VideoEnabled,
		})
	}
	return users
}

// Broadcast fans a message out to every member except exclude (pass "" to
// include everyone). Sends never block: a slow member only loses its own
// copy. It returns the number of dropped deliveries.
func (r *Room) Broadcast(exclude string, msg *protocol.Message) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dropped := 0
	for _, id := range r.order {
		if id == exclude {
			continue
		}
		if !r.members[id].conn.TrySend(msg) {
			dropped++
		}
	}
	return dropped
}

// SendTo delivers a message to exactly one member. It returns false when the
// target is not (or no longer) in the room.
func (r *Room) SendTo(target string, msg *protocol.Message) bool {
	r.mu.RLock()
	p, ok := r.members[target]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	p.conn.TrySend(msg)
	return true
}

func (r *Room) user(id string) (protocol.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[id]
	if !ok {
		return protocol.User{}, false
	}
	return protocol.User{
		ID:           p.ID,
		Name:         p.Name,
		AudioEnabled: p.AudioEnabled,
		VideoEnabled: p.VideoEnabled,
	}, true
}

func (r *Room) setMediaState(id string, audio, video bool) (protocol.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[id]
	if !ok {
		return protocol.User{}, false
	}
	p.AudioEnabled = audio
	p.VideoEnabled = video
	return protocol.User{
		ID:           p.ID,
		Name:         p.Name,
		AudioEnabled: p.AudioEnabled,
		VideoEnabled: p.VideoEnabled,
	}, true
}
