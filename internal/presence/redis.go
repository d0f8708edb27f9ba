package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Mirror publishes room membership to Redis so every instance can tell
// whether a room has members anywhere.
// Keys used:
// - <prefix>:room:<room> -> sorted set of connection ids scored by expiry (unix ms)
type Mirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewMirror(client *redis.Client, prefix string, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Mirror{client: client, prefix: prefix, ttl: ttl}
}

func (m *Mirror) roomKey(room string) string { return fmt.Sprintf("%s:room:%s", m.prefix, room) }

// Join records connID in rooms. Calling it again refreshes the expiry.
func (m *Mirror) Join(ctx context.Context, connID string, rooms ...string) error {
	exp := float64(time.Now().Add(m.ttl).UnixMilli())
	pipe := m.client.TxPipeline()
	for _, room := range rooms {
		key := m.roomKey(room)
		pipe.ZAdd(ctx, key, redis.Z{Score: exp, Member: connID})
		pipe.Expire(ctx, key, 2*m.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (m *Mirror) Leave(ctx context.Context, connID string, rooms ...string) error {
	pipe := m.client.TxPipeline()
	for _, room := range rooms {
		pipe.ZRem(ctx, m.roomKey(room), connID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Active reports whether room has a member whose entry has not expired.
func (m *Mirror) Active(ctx context.Context, room string) (bool, error) {
	key := m.roomKey(room)
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	_ = m.client.ZRemRangeByScore(ctx, key, "-inf", "("+now).Err()
	n, err := m.client.ZCount(ctx, key, now, "+inf").Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *Mirror) TTL() time.Duration { return m.ttl }

// Relay fans room emissions out to the other instances over Redis pub/sub.
type Relay struct {
	client  *redis.Client
	channel string
	nodeID  string
	log     *zap.Logger
}

type relayFrame struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

func NewRelay(client *redis.Client, prefix, nodeID string, log *zap.Logger) *Relay {
	return &Relay{client: client, channel: prefix + ":emit", nodeID: nodeID, log: log}
}

func (r *Relay) Publish(ctx context.Context, room string, data []byte) error {
	b, err := json.Marshal(relayFrame{Origin: r.nodeID, Room: room, Data: data})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Run delivers frames published by other nodes until ctx is done.
func (r *Relay) Run(ctx context.Context, deliver func(room string, data []byte)) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				r.log.Warn("relay subscription closed")
				return
			}
			var f relayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
				r.log.Warn("bad relay frame", zap.Error(err))
				continue
			}
			if f.Origin == r.nodeID {
				continue
			}
			deliver(f.Room, f.Data)
		}
	}
}
