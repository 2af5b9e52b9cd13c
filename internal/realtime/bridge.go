package realtime

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const bridgeChannel = "rt:events"

type envelope struct {
	Scope  string          `json:"scope"` // "user" or "match"
	Target string          `json:"target"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Bridge fans events out through Redis pub/sub so every instance delivers to
// its own connected clients. With a single instance the plain Hub is enough;
// the bridge is what makes horizontal scaling safe.
type Bridge struct {
	rdb    *redis.Client
	hub    *Hub
	logger *zap.Logger
}

func NewBridge(rdb *redis.Client, hub *Hub, logger *zap.Logger) *Bridge {
	return &Bridge{rdb: rdb, hub: hub, logger: logger}
}

func (b *Bridge) publish(scope, target, event string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.logger.Warn("bridge marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	payload, _ := json.Marshal(envelope{Scope: scope, Target: target, Event: event, Data: raw})
	if err := b.rdb.Publish(context.Background(), bridgeChannel, payload).Err(); err != nil {
		b.logger.Warn("bridge publish failed", zap.String("event", event), zap.Error(err))
	}
}

func (b *Bridge) PublishToUser(userID, event string, data interface{}) {
	b.publish("user", userID, event, data)
}

func (b *Bridge) PublishToMatch(matchID, event string, data interface{}) {
	b.publish("match", matchID, event, data)
}

// Run subscribes to the bridge channel and delivers incoming events to the
// local hub until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("bridge decode failed", zap.Error(err))
				continue
			}
			var data interface{}
			if len(env.Data) > 0 {
				_ = json.Unmarshal(env.Data, &data)
			}
			switch env.Scope {
			case "user":
				b.hub.PublishToUser(env.Target, env.Event, data)
			case "match":
				b.hub.PublishToMatch(env.Target, env.Event, data)
			}
		}
	}
}
