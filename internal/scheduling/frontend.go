// Package scheduling implements the scheduling front-end (§4.5): the
// entry point that turns a CommandScheduled bus event into a persisted (or
// elided) ScheduledCommand and, when due, drives immediate delivery.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"durable-command-scheduler/internal/activity"
	"durable-command-scheduler/internal/admission"
	"durable-command-scheduler/internal/clockregistry"
	"durable-command-scheduler/internal/delivery"
	"durable-command-scheduler/internal/model"
	"durable-command-scheduler/internal/precondition"
	"durable-command-scheduler/internal/store"
	"durable-command-scheduler/internal/telemetry"
)

// ErrAdmissionThrottled is returned by Schedule when the admission limiter
// rejects the event (§7, SPEC_FULL §4.10). The caller should retry with
// backoff; the event is never dropped.
var ErrAdmissionThrottled = errors.New("scheduling: admission throttled")

// Frontend accepts CommandScheduled events and stores/dispatches them.
type Frontend struct {
	Clocks   clockregistry.Registry
	Store    store.Store
	Delivery *delivery.Engine
	Activity activity.Stream
	Gate     precondition.Gate
	Limiter  *admission.Limiter
	Now      func() time.Time
}

// New constructs a Frontend. now defaults to time.Now when nil.
func New(clocks clockregistry.Registry, st store.Store, engine *delivery.Engine, stream activity.Stream, gate precondition.Gate, limiter *admission.Limiter, now func() time.Time) *Frontend {
	if now == nil {
		now = time.Now
	}
	return &Frontend{Clocks: clocks, Store: st, Delivery: engine, Activity: stream, Gate: gate, Limiter: limiter, Now: now}
}

// Schedule handles a single CommandScheduled event (§4.5).
func (f *Frontend) Schedule(ctx context.Context, event model.CommandScheduledEvent) error {
	if err := f.Limiter.Admit(ctx, event.Tenant()); err != nil {
		if errors.Is(err, admission.ErrThrottled) {
			telemetry.AdmissionRejects.Inc()
			return ErrAdmissionThrottled
		}
		return fmt.Errorf("admission check: %w", err)
	}
	telemetry.CommandsScheduled.Inc()

	clockName, err := f.resolveClock(ctx, event)
	if err != nil {
		return fmt.Errorf("resolve clock: %w", err)
	}
	if _, err := f.Clocks.GetOrCreate(ctx, clockName); err != nil {
		return fmt.Errorf("get or create clock: %w", err)
	}

	now := f.Now()
	cmd := model.ScheduledCommand{
		AggregateID:       event.AggregateID,
		SequenceNumber:    event.SequenceNumber,
		AggregateType:     event.AggregateType,
		CommandName:       event.CommandName,
		SerializedCommand: event.Payload,
		Tenant:            event.Tenant(),
		CreatedTime:       now,
		DueTime:           event.DueTime,
		ClockName:         clockName,
	}

	due := cmd.IsDue(now)
	elide := due && !event.RequiresDurableScheduling

	var stored model.ScheduledCommand
	durable := !elide
	if elide {
		cmd.NonDurable = true
		stored = cmd
		telemetry.CommandsElided.Inc()
	} else {
		stored, err = f.Store.Put(ctx, cmd)
		if err != nil {
			return fmt.Errorf("put scheduled command: %w", err)
		}
	}

	f.publishScheduled(ctx, stored)

	if !due {
		return nil
	}

	satisfied, err := f.Gate.Check(ctx, stored)
	if err != nil {
		return fmt.Errorf("check precondition: %w", err)
	}
	if satisfied {
		if _, err := f.Delivery.Deliver(ctx, stored, durable); err != nil {
			return fmt.Errorf("deliver command: %w", err)
		}
		return nil
	}

	// Precondition unsatisfied: arm a timeout-bound wait, then deliver
	// anyway per §4.3. No notify channel is passed, so new bus events do not
	// trigger a re-check and delivery happens once the full timeout elapses.
	// Run asynchronously so Schedule does not block the bus consumer loop
	// for the full timeout window.
	go func() {
		bg := context.Background()
		_, _ = f.Gate.AwaitOrTimeout(bg, stored, nil)
		if _, err := f.Delivery.Deliver(bg, stored, durable); err != nil {
			_ = err
		}
	}()
	return nil
}

func (f *Frontend) resolveClock(ctx context.Context, event model.CommandScheduledEvent) (string, error) {
	resolver := clockregistry.Resolver{Registry: f.Clocks, DefaultClockName: "default"}
	return resolver.Resolve(ctx, event)
}

func (f *Frontend) publishScheduled(ctx context.Context, cmd model.ScheduledCommand) {
	if f.Activity == nil {
		return
	}
	_ = f.Activity.Publish(ctx, activity.Notification{
		AggregateID:    cmd.AggregateID,
		SequenceNumber: cmd.SequenceNumber,
		ClockName:      cmd.ClockName,
		Kind:           activity.KindScheduled,
		At:             cmd.CreatedTime,
	})
}
