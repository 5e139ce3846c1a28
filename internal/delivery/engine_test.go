package delivery

import (
	"context"
	"testing"
	"time"

	"durable-command-scheduler/internal/activity"
	"durable-command-scheduler/internal/model"
	"durable-command-scheduler/internal/precondition"
	"durable-command-scheduler/internal/repository"
	"durable-command-scheduler/internal/store"
)

func newTestEngine(repo *repository.Fake, st store.Store, now time.Time) (*Engine, *activity.InProcess) {
	stream := activity.NewInProcess(8)
	gate := precondition.New(nil, time.Second)
	engine := New(repo, st, stream, gate, func() time.Time { return now })
	return engine, stream
}

func TestDeliverSuccessMarksApplied(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	st := store.NewMemory()
	repo := repository.NewFake()

	cmd, err := st.Put(ctx, model.ScheduledCommand{AggregateID: "A", SequenceNumber: 1, ClockName: "default"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	engine, stream := newTestEngine(repo, st, now)
	sub, unsubscribe := stream.Subscribe(ctx)
	defer unsubscribe()

	result, err := engine.Deliver(ctx, cmd, true)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected success")
	}

	got, err := st.Load(ctx, "A", 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AppliedTime == nil || !got.AppliedTime.Equal(now) {
		t.Fatalf("expected appliedTime = %v, got %+v", now, got.AppliedTime)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", got.Attempts)
	}

	select {
	case n := <-sub:
		if n.Kind != activity.KindSucceeded {
			t.Fatalf("expected succeeded notification, got %v", n.Kind)
		}
	default:
		t.Fatalf("expected activity notification")
	}
}

func TestDeliverRetryableFailureReschedules(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	st := store.NewMemory()
	repo := repository.NewFake()

	cmd, err := st.Put(ctx, model.ScheduledCommand{AggregateID: "A", SequenceNumber: 2, ClockName: "default"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	retry := 30 * time.Second
	repo.Enqueue("A", 2, repository.Failed(false, 0, &retry, "temporary"))

	engine, _ := newTestEngine(repo, st, now)
	if _, err := engine.Deliver(ctx, cmd, true); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	got, err := st.Load(ctx, "A", 2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status() != model.StatusPending {
		t.Fatalf("expected still pending, got %v", got.Status())
	}
	if got.DueTime == nil || !got.DueTime.Equal(now.Add(retry)) {
		t.Fatalf("expected rescheduled dueTime, got %+v", got.DueTime)
	}
	errs, err := st.Errors(ctx, "A", 2)
	if err != nil {
		t.Fatalf("errors: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error row, got %d", len(errs))
	}
}

func TestDeliverCanceledAbandons(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	st := store.NewMemory()
	repo := repository.NewFake()

	cmd, err := st.Put(ctx, model.ScheduledCommand{AggregateID: "A", SequenceNumber: 3, ClockName: "default"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	repo.Enqueue("A", 3, repository.Failed(true, 0, nil, "canceled"))

	engine, _ := newTestEngine(repo, st, now)
	if _, err := engine.Deliver(ctx, cmd, true); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	got, err := st.Load(ctx, "A", 3)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Status() != model.StatusAbandoned {
		t.Fatalf("expected abandoned, got %v", got.Status())
	}
	if got.AppliedTime != nil {
		t.Fatalf("expected no appliedTime")
	}
}

func TestDeliverNonDurableDoesNotTouchStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	st := store.NewMemory()
	repo := repository.NewFake()

	cmd := model.ScheduledCommand{AggregateID: "A", SequenceNumber: -99, ClockName: "default", NonDurable: true}
	engine, _ := newTestEngine(repo, st, now)

	result, err := engine.Deliver(ctx, cmd, false)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !result.Succeeded {
		t.Fatalf("expected success")
	}
	if _, err := st.Load(ctx, "A", -99); err != store.ErrNotFound {
		t.Fatalf("expected no store row for elided command, got err=%v", err)
	}
}
