// Package delivery implements the delivery engine (§4.4): applying a
// scheduled command via the repository and driving its state machine.
package delivery

import (
	"context"
	"fmt"
	"time"

	"durable-command-scheduler/internal/activity"
	"durable-command-scheduler/internal/model"
	"durable-command-scheduler/internal/precondition"
	"durable-command-scheduler/internal/repository"
	"durable-command-scheduler/internal/store"
	"durable-command-scheduler/internal/telemetry"
)

// Clock supplies the "now" the engine stamps onto outcomes of commands that
// have no due time. For a command with a DueTime, Deliver pins "now" to that
// due time itself (§4.4 step 1). Production wiring passes time.Now; tests
// pass a fixed or virtual clock.
type Clock func() time.Time

// Engine applies commands to aggregates and records the outcome.
type Engine struct {
	Repository repository.Repository
	Store      store.Store
	Activity   activity.Stream
	Gate       precondition.Gate
	Now        Clock
}

// New constructs an Engine. now defaults to time.Now when nil.
func New(repo repository.Repository, st store.Store, stream activity.Stream, gate precondition.Gate, now Clock) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{Repository: repo, Store: st, Activity: stream, Gate: gate, Now: now}
}

// Deliver runs one delivery attempt for cmd (§4.4). durable indicates
// whether cmd has a backing store row to update; commands elided at
// schedule time (nonDurable, already due) pass durable=false.
func (e *Engine) Deliver(ctx context.Context, cmd model.ScheduledCommand, durable bool) (repository.Result, error) {
	deliveryClock := e.Now
	if cmd.DueTime != nil {
		due := *cmd.DueTime
		deliveryClock = func() time.Time { return due }
	}

	verify := func(ctx context.Context, c model.ScheduledCommand) (bool, error) {
		return e.Gate.Check(ctx, c)
	}

	result, err := e.Repository.ApplyScheduledCommand(ctx, cmd, verify)
	if err != nil {
		return repository.Result{}, fmt.Errorf("apply scheduled command: %w", err)
	}

	now := deliveryClock()
	e.publish(ctx, cmd, result, now)

	if !durable {
		return result, nil
	}

	outcome := store.DeliveryOutcome{At: now}
	switch {
	case result.Succeeded:
		outcome.Succeeded = true
		telemetry.CommandsApplied.Inc()
	case result.IsCanceled || result.RetryAfter == nil:
		outcome.Abandon = true
		outcome.SerializedError = result.Exception
		telemetry.CommandsAbandoned.Inc()
	default:
		outcome.NewDueTime = now.Add(*result.RetryAfter)
		outcome.SerializedError = result.Exception
		telemetry.CommandsRetried.Inc()
	}

	if _, err := e.Store.RecordDeliveryOutcome(ctx, cmd.AggregateID, cmd.SequenceNumber, outcome); err != nil {
		return result, fmt.Errorf("record delivery outcome: %w", err)
	}
	return result, nil
}

func (e *Engine) publish(ctx context.Context, cmd model.ScheduledCommand, result repository.Result, at time.Time) {
	if e.Activity == nil {
		return
	}
	n := activity.Notification{
		AggregateID:    cmd.AggregateID,
		SequenceNumber: cmd.SequenceNumber,
		ClockName:      cmd.ClockName,
		At:             at,
	}
	switch {
	case result.Succeeded:
		n.Kind = activity.KindSucceeded
	case result.IsCanceled || result.RetryAfter == nil:
		n.Kind = activity.KindAbandoned
		n.Error = result.Exception
	default:
		n.Kind = activity.KindRetryScheduled
		n.Error = result.Exception
	}
	_ = e.Activity.Publish(ctx, n)
}
