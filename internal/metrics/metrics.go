// Package metrics is a minimal concurrency-safe counter registry for the
// signaling server, exposed in Prometheus' text format.
package metrics

import "sync"

// Event names counted by the relay and registry.
const (
	EventRoomCreated      = "room_created"
	EventRoomDestroyed    = "room_destroyed"
	EventJoin             = "join"
	EventLeave            = "leave"
	EventDirectedRelayed  = "directed_relayed"
	EventBroadcastRelayed = "broadcast_relayed"
	EventMalformedDropped = "malformed_dropped"
	EventStaleTarget      = "stale_target_dropped"
	EventStaleParticipant = "stale_participant"
	EventRateLimited      = "rate_limited"
	EventSlowConsumerDrop = "slow_consumer_dropped"
)

// Metrics is safe for concurrent use. A nil *Metrics is valid and counts
// nothing, so components can treat metrics as optional.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
