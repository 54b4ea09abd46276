package signaling

import "time"

const (
	DefaultWriteWait         = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultPingInterval      = 20 * time.Second
	DefaultMaxMessageBytes   = int64(64 * 1024) // enough for any SDP blob
	DefaultMessagesPerSecond = int64(50)
	DefaultSendBuffer        = 256
)

// Config bounds each signaling connection.
type Config struct {
	// WriteWait is the deadline for a single WebSocket write.
	WriteWait time.Duration
	// IdleTimeout closes connections that produce no frames (pongs included).
	IdleTimeout time.Duration
	// PingInterval must be shorter than IdleTimeout.
	PingInterval time.Duration
	// MaxMessageBytes caps a single inbound frame.
	MaxMessageBytes int64
	// MessagesPerSecond caps the inbound signaling rate per connection;
	// <= 0 disables the limit.
	MessagesPerSecond int64
	// SendBuffer is the per-connection outbound queue length. When it fills,
	// further messages to that connection are dropped rather than stalling
	// delivery to the rest of the room.
	SendBuffer int
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.MaxMessageBytes == 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.MessagesPerSecond == 0 {
		c.MessagesPerSecond = DefaultMessagesPerSecond
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	return c
}
