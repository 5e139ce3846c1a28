// Package bus defines the event bus boundary the scheduler subscribes to
// (§6 "Event bus") and provides two concrete adapters purely to exercise
// that boundary end to end (SPEC_FULL §4.8) — the scheduling front-end
// itself depends only on the Bus interface.
package bus

import (
	"context"

	"durable-command-scheduler/internal/model"
)

// Handler processes a single CommandScheduled event for an aggregate type.
type Handler func(ctx context.Context, event model.CommandScheduledEvent) error

// Bus is the collaborator the scheduling front-end subscribes to.
type Bus interface {
	// Subscribe registers handler for every CommandScheduled event of
	// aggregateType. The returned unsubscribe stops delivery.
	Subscribe(ctx context.Context, aggregateType string, handler Handler) (unsubscribe func(), err error)

	// Publish emits an event for aggregateType.
	Publish(ctx context.Context, aggregateType string, event model.CommandScheduledEvent) error
}
