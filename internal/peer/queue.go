package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// candidateQueue holds remote ICE candidates that arrived before the
// session's remote description. The flush trigger is exactly one event:
// the remote description being applied. Until then nothing is handed to
// the peer connection, afterwards candidates bypass the queue entirely.
type candidateQueue struct {
	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

func (q *candidateQueue) put(c webrtc.ICECandidateInit) {
	q.mu.Lock()
	q.pending = append(q.pending, c)
	q.mu.Unlock()
}

// drain returns the queued candidates in arrival order and empties the
// queue.
func (q *candidateQueue) drain() []webrtc.ICECandidateInit {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.mu.Unlock()
	return out
}

func (q *candidateQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
