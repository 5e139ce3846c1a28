package store

import (
	"context"
	"testing"
	"time"

	"durable-command-scheduler/internal/model"
)

func TestMemoryPutAssignsDecrementingSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, err := m.Put(ctx, model.ScheduledCommand{AggregateID: "agg-1", SequenceNumber: -1, ClockName: "default"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if first.SequenceNumber != -1 {
		t.Fatalf("expected first assignment -1, got %d", first.SequenceNumber)
	}

	second, err := m.Put(ctx, model.ScheduledCommand{AggregateID: "agg-1", SequenceNumber: -1, ClockName: "default"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if second.SequenceNumber != -2 {
		t.Fatalf("expected second assignment -2, got %d", second.SequenceNumber)
	}
}

func TestMemoryPutDuplicateCallerAssignedSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Put(ctx, model.ScheduledCommand{AggregateID: "agg-1", SequenceNumber: 5}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := m.Put(ctx, model.ScheduledCommand{AggregateID: "agg-1", SequenceNumber: 5}); err != ErrDuplicateSchedule {
		t.Fatalf("expected ErrDuplicateSchedule, got %v", err)
	}
}

func TestMemoryDueOnOrdersByDueTimeThenSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	later := now.Add(time.Hour)

	must := func(cmd model.ScheduledCommand) {
		if _, err := m.Put(ctx, cmd); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	must(model.ScheduledCommand{AggregateID: "a", SequenceNumber: 2, ClockName: "c", DueTime: &later})
	must(model.ScheduledCommand{AggregateID: "a", SequenceNumber: 1, ClockName: "c", DueTime: nil})
	must(model.ScheduledCommand{AggregateID: "a", SequenceNumber: 3, ClockName: "c", DueTime: &now})

	due, err := m.DueOn(ctx, "c", later, 10)
	if err != nil {
		t.Fatalf("dueOn: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("expected 3 due commands, got %d", len(due))
	}
	if due[0].SequenceNumber != 1 || due[1].SequenceNumber != 3 || due[2].SequenceNumber != 2 {
		t.Fatalf("unexpected order: %+v", due)
	}
}

func TestMemoryRecordDeliveryOutcomeIsAtomic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	cmd, err := m.Put(ctx, model.ScheduledCommand{AggregateID: "agg-1", SequenceNumber: 1, ClockName: "default"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	updated, err := m.RecordDeliveryOutcome(ctx, cmd.AggregateID, cmd.SequenceNumber, DeliveryOutcome{
		At:              time.Now().UTC(),
		Succeeded:       false,
		Abandon:         true,
		SerializedError: "boom",
	})
	if err != nil {
		t.Fatalf("recordDeliveryOutcome: %v", err)
	}
	if updated.Attempts != 1 {
		t.Fatalf("expected attempts incremented to 1, got %d", updated.Attempts)
	}
	if updated.Status() != model.StatusAbandoned {
		t.Fatalf("expected abandoned status, got %v", updated.Status())
	}

	errs, err := m.Errors(ctx, cmd.AggregateID, cmd.SequenceNumber)
	if err != nil {
		t.Fatalf("errors: %v", err)
	}
	if len(errs) != 1 || errs[0].Error != "boom" {
		t.Fatalf("expected one recorded error, got %+v", errs)
	}
}

func TestMemoryLoadNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.Load(context.Background(), "missing", 1); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
