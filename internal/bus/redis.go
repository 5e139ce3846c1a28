package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"durable-command-scheduler/internal/model"
)

// RedisStreams backs the bus with one Redis Stream per aggregate type and a
// single consumer group shared by all of its subscribers, each reading as its
// own consumer, so a CommandScheduled event published by
// one process is delivered to a scheduler running in another. This is the
// adapter wired into the durable daemon.
type RedisStreams struct {
	client        *redis.Client
	consumerGroup string
	blockFor      time.Duration
}

// NewRedisStreams constructs a RedisStreams bus. consumerGroup identifies
// this scheduler deployment; every subscriber sharing the group name
// competes for stream entries rather than each receiving its own copy.
func NewRedisStreams(client *redis.Client, consumerGroup string) *RedisStreams {
	if consumerGroup == "" {
		consumerGroup = "scheduler"
	}
	return &RedisStreams{client: client, consumerGroup: consumerGroup, blockFor: 5 * time.Second}
}

func (b *RedisStreams) streamKey(aggregateType string) string {
	return "scheduler:bus:" + aggregateType
}

func (b *RedisStreams) Publish(ctx context.Context, aggregateType string, event model.CommandScheduledEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamKey(aggregateType),
		Values: map[string]interface{}{"event": payload},
	}).Err()
}

func (b *RedisStreams) Subscribe(ctx context.Context, aggregateType string, handler Handler) (func(), error) {
	stream := b.streamKey(aggregateType)
	if err := b.client.XGroupCreateMkStream(ctx, stream, b.consumerGroup, "0").Err(); err != nil {
		if !isBusyGroupErr(err) {
			return nil, fmt.Errorf("create consumer group: %w", err)
		}
	}

	consumer := uuid.NewString()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}

			res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    b.consumerGroup,
				Consumer: consumer,
				Streams:  []string{stream, ">"},
				Count:    10,
				Block:    b.blockFor,
			}).Result()
			if err != nil {
				if err == redis.Nil || ctx.Err() != nil {
					continue
				}
				continue
			}
			for _, s := range res {
				for _, msg := range s.Messages {
					raw, _ := msg.Values["event"].(string)
					var event model.CommandScheduledEvent
					if err := json.Unmarshal([]byte(raw), &event); err != nil {
						b.client.XAck(ctx, stream, b.consumerGroup, msg.ID)
						continue
					}
					if err := handler(ctx, event); err == nil {
						b.client.XAck(ctx, stream, b.consumerGroup, msg.ID)
					}
				}
			}
		}
	}()

	unsubscribe := func() { close(done) }
	return unsubscribe, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= len("BUSYGROUP") && err.Error()[:9] == "BUSYGROUP"
}
