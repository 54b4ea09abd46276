// Package presence mirrors live room membership into Redis so dashboards and
// sibling instances can inspect occupancy. The mirror is strictly
// best-effort: Redis being slow or down never delays signaling.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 500 * time.Millisecond

// Mirror writes membership changes to per-room sets ("room:<id>:peers") with
// a TTL so crashed instances leak nothing permanent.
type Mirror struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewMirror(rdb *redis.Client, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Mirror{rdb: rdb, ttl: ttl}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Add records the participant off the caller's goroutine.
func (m *Mirror) Add(roomID, participantID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		key := "room:" + roomID + ":peers"
		if err := m.rdb.SAdd(ctx, key, participantID).Err(); err != nil {
			slog.Debug("presence add failed", "room_id", roomID, "err", err)
			return
		}
		if err := m.rdb.Expire(ctx, key, m.ttl).Err(); err != nil {
			slog.Debug("presence expire failed", "room_id", roomID, "err", err)
		}
	}()
}

// Remove drops the participant off the caller's goroutine.
func (m *Mirror) Remove(roomID, participantID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if err := m.rdb.SRem(ctx, "room:"+roomID+":peers", participantID).Err(); err != nil {
			slog.Debug("presence remove failed", "room_id", roomID, "err", err)
		}
	}()
}
