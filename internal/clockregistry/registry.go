// Package clockregistry implements named logical clocks (§4.1). A command is
// tied to one clock for its entire lifetime; different tenants, partitions,
// or test scenarios get independently controllable time without disturbing
// the wall clock.
package clockregistry

import (
	"context"
	"errors"
	"time"

	"durable-command-scheduler/internal/model"
)

// ErrClockMovedBackward is returned by Advance when target < the clock's
// current Now (§7).
var ErrClockMovedBackward = errors.New("clockregistry: advance target precedes current now")

// NameResolver derives a clock name from an event (§4.1 priority (b)).
type NameResolver func(event model.CommandScheduledEvent) (string, bool)

// LookupKeyResolver derives a ClockMapping lookup key from an event
// (§4.1 priority (c)).
type LookupKeyResolver func(event model.CommandScheduledEvent) (string, bool)

// Registry is the clock registry contract implemented by both the durable
// (Postgres) and in-memory variants.
type Registry interface {
	// GetOrCreate returns the named clock, creating it with
	// Now = StartTime = the current domain time if it does not yet exist.
	GetOrCreate(ctx context.Context, name string) (model.Clock, error)

	// Advance sets Now := target for the named clock. Fails with
	// ErrClockMovedBackward if target < current Now.
	Advance(ctx context.Context, name string, target time.Time) (model.Clock, error)

	// Lookup resolves a ClockMapping.Value to its clock's name.
	Lookup(ctx context.Context, value string) (string, bool, error)

	// MapValue records that value routes to the named clock.
	MapValue(ctx context.Context, value, clockName string) error
}

// Resolver implements §4.1 resolveClock: the four-step priority order for
// mapping an event to a clock name. It wraps a Registry so priority (c) can
// consult ClockMappings.
type Resolver struct {
	Registry          Registry
	NameResolver      NameResolver
	LookupKeyResolver LookupKeyResolver
	DefaultClockName  string
}

// Resolve returns, in priority order: (a) the event's ClockName metadata
// attribute; (b) the configured NameResolver's result; (c) the clock whose
// ClockMapping.Value matches the configured LookupKeyResolver's result;
// (d) the fixed default clock name.
func (r Resolver) Resolve(ctx context.Context, event model.CommandScheduledEvent) (string, error) {
	if name, ok := event.ClockName(); ok {
		return name, nil
	}
	if r.NameResolver != nil {
		if name, ok := r.NameResolver(event); ok {
			return name, nil
		}
	}
	if r.LookupKeyResolver != nil {
		if key, ok := r.LookupKeyResolver(event); ok {
			if name, found, err := r.Registry.Lookup(ctx, key); err != nil {
				return "", err
			} else if found {
				return name, nil
			}
		}
	}
	if r.DefaultClockName != "" {
		return r.DefaultClockName, nil
	}
	return "default", nil
}
