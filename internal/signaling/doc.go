// Package signaling accepts WebSocket connections from call clients, admits
// them into rooms, and relays signaling frames: membership and media-state
// messages are broadcast to the sender's room, offer/answer/ice-candidate
// messages are delivered to exactly one target. Delivery is per-sender FIFO;
// nothing is guaranteed across senders.
package signaling
