package bus

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"durable-command-scheduler/internal/model"
)

func TestRedisStreamsPublishAddsToStream(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisStreams(client, "test-group")

	event := model.CommandScheduledEvent{AggregateID: "order-1", SequenceNumber: 1, CommandName: "Ship"}
	if err := b.Publish(context.Background(), "order", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	length, err := client.XLen(context.Background(), b.streamKey("order")).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if length != 1 {
		t.Fatalf("expected 1 stream entry, got %d", length)
	}
}

func TestRedisStreamsSubscribeDeliversPublishedEvent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisStreams(client, "test-group")
	b.blockFor = 100 * time.Millisecond

	received := make(chan model.CommandScheduledEvent, 1)
	unsubscribe, err := b.Subscribe(context.Background(), "order", func(_ context.Context, e model.CommandScheduledEvent) error {
		received <- e
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	event := model.CommandScheduledEvent{AggregateID: "order-2", SequenceNumber: 3, CommandName: "Reserve"}
	if err := b.Publish(context.Background(), "order", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got.AggregateID != "order-2" || got.SequenceNumber != 3 {
			t.Fatalf("unexpected event delivered: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber to receive published event")
	}
}

func TestIsBusyGroupErr(t *testing.T) {
	if !isBusyGroupErr(&testErr{"BUSYGROUP Consumer Group name already exists"}) {
		t.Fatal("expected BUSYGROUP-prefixed error to be recognized")
	}
	if isBusyGroupErr(&testErr{"some other error"}) {
		t.Fatal("did not expect unrelated error to be recognized as BUSYGROUP")
	}
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
