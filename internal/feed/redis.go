package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channel = "queueline:changes"

// RedisNotifier carries change events over Redis pub/sub so every server
// instance sees writes made by its peers.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channel, data).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Event, func()) {
	pubsub := n.client.Subscribe(ctx, channel)
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("feed: dropping malformed change event", "error", err)
				continue
			}
			select {
			case out <- ev:
			default:
				// Coalesce under burst; subscribers re-fetch anyway.
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			slog.Warn("feed: closing subscription", "error", err)
		}
	}
	return out, cancel
}
