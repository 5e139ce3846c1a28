package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub publishes each notification as JSON on a Redis pub/sub
// channel so external tooling, or a second process, can tail scheduling
// and delivery activity without sharing memory with the scheduler.
type RedisPubSub struct {
	client  *redis.Client
	channel string
}

// NewRedisPubSub constructs a RedisPubSub stream against an existing
// client, publishing on the given channel.
func NewRedisPubSub(client *redis.Client, channel string) *RedisPubSub {
	if channel == "" {
		channel = "scheduler:activity"
	}
	return &RedisPubSub{client: client, channel: channel}
}

func (s *RedisPubSub) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

// Subscribe tails the channel until ctx is canceled or unsubscribe is
// called. Malformed payloads are dropped rather than surfaced, since a
// subscriber has no way to report a decode error back to the publisher.
func (s *RedisPubSub) Subscribe(ctx context.Context) (<-chan Notification, func()) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	out := make(chan Notification, 32)

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n:
				default:
				}
			}
		}
	}()

	return out, func() { pubsub.Close() }
}
