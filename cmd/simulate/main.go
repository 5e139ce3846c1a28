// Command simulate drives the in-memory scheduler with a virtual clock,
// scheduling a handful of commands and advancing time to show the delivery
// state machine end to end without any external dependencies.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"durable-command-scheduler/internal/activity"
	"durable-command-scheduler/internal/bus"
	"durable-command-scheduler/internal/clockdriver"
	"durable-command-scheduler/internal/clockregistry"
	"durable-command-scheduler/internal/delivery"
	"durable-command-scheduler/internal/model"
	"durable-command-scheduler/internal/precondition"
	"durable-command-scheduler/internal/repository"
	"durable-command-scheduler/internal/scheduling"
	"durable-command-scheduler/internal/store"
	"durable-command-scheduler/internal/vclock"
)

func main() {
	ctx := context.Background()
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	st := store.NewMemory()
	clocks := clockregistry.NewMemory(func() time.Time { return t0 })
	if _, err := clocks.GetOrCreate(ctx, "default"); err != nil {
		log.Fatalf("get or create clock: %v", err)
	}

	repo := repository.NewFake()
	retryAfter := 30 * time.Second
	repo.Enqueue("order-2", 1, repository.Failed(false, 0, &retryAfter, "insufficient inventory"))

	stream := activity.NewInProcess(64)
	sub, unsubscribe := stream.Subscribe(ctx)
	defer unsubscribe()
	go logActivity(sub)

	gate := precondition.New(nil, 3*time.Second)
	engine := delivery.New(repo, st, stream, gate, func() time.Time { return t0 })
	driver := clockdriver.New(clocks, st, engine, 100)
	frontend := scheduling.New(clocks, st, engine, stream, gate, nil, func() time.Time { return t0 })

	vc := vclock.New("default", t0, driver)
	if err := vclock.Install(vc); err != nil {
		log.Fatalf("install virtual clock: %v", err)
	}
	defer vclock.Dispose(vc)

	b := bus.NewInProcess()
	if _, err := b.Subscribe(ctx, "order", frontend.Schedule); err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	due := t0.Add(time.Minute)
	if err := b.Publish(ctx, "order", model.CommandScheduledEvent{
		AggregateID: "order-1", SequenceNumber: 1, AggregateType: "order",
		CommandName: "Ship", DueTime: &due, RequiresDurableScheduling: true,
	}); err != nil {
		log.Fatalf("publish: %v", err)
	}
	if err := b.Publish(ctx, "order", model.CommandScheduledEvent{
		AggregateID: "order-2", SequenceNumber: 1, AggregateType: "order",
		CommandName: "Reserve", RequiresDurableScheduling: true,
	}); err != nil {
		log.Fatalf("publish: %v", err)
	}

	retryDue := t0.Add(retryAfter)
	fmt.Println("advancing to", retryDue)
	if err := vc.AdvanceTo(ctx, retryDue); err != nil {
		log.Fatalf("advance: %v", err)
	}

	fmt.Println("advancing to", due)
	if err := vc.AdvanceTo(ctx, due); err != nil {
		log.Fatalf("advance: %v", err)
	}

	for _, id := range []struct {
		aggregateID string
		seq         int64
	}{{"order-1", 1}, {"order-2", 1}} {
		cmd, err := st.Load(ctx, id.aggregateID, id.seq)
		if err != nil {
			log.Fatalf("load %s: %v", id.aggregateID, err)
		}
		fmt.Printf("%s/%d: status=%s attempts=%d\n", cmd.AggregateID, cmd.SequenceNumber, cmd.Status(), cmd.Attempts)
	}
}

func logActivity(ch <-chan activity.Notification) {
	for n := range ch {
		fmt.Printf("activity: %s %s/%d clock=%s\n", n.Kind, n.AggregateID, n.SequenceNumber, n.ClockName)
	}
}
