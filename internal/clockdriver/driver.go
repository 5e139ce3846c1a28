// Package clockdriver implements the clock advancement driver (§4.6):
// moving a named clock forward and draining every command that becomes due
// as a result.
package clockdriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"durable-command-scheduler/internal/clockregistry"
	"durable-command-scheduler/internal/delivery"
	"durable-command-scheduler/internal/model"
	"durable-command-scheduler/internal/store"
	"durable-command-scheduler/internal/telemetry"
)

// Driver advances clocks and dispatches due commands to the delivery
// engine, serialized per clock name (§4.6 "Concurrency").
type Driver struct {
	Clocks   clockregistry.Registry
	Store    store.Store
	Delivery *delivery.Engine
	// BatchSize bounds how many due commands are fetched per DueOn call.
	BatchSize int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Driver. batchSize <= 0 defaults to 100.
func New(clocks clockregistry.Registry, st store.Store, engine *delivery.Engine, batchSize int) *Driver {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Driver{Clocks: clocks, Store: st, Delivery: engine, BatchSize: batchSize, locks: make(map[string]*sync.Mutex)}
}

func (d *Driver) lockFor(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[name]
	if !ok {
		l = &sync.Mutex{}
		d.locks[name] = l
	}
	return l
}

// Advance moves the named clock to target and drains every command that
// becomes due, returning only once every dispatched delivery has completed
// (§4.6 steps 1-3).
func (d *Driver) Advance(ctx context.Context, name string, target time.Time) error {
	lock := d.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	clock, err := d.Clocks.Advance(ctx, name, target)
	if err != nil {
		return fmt.Errorf("advance clock %q: %w", name, err)
	}
	telemetry.ClockAdvances.WithLabelValues(name).Inc()

	for {
		due, err := d.Store.DueOn(ctx, name, clock.Now, d.BatchSize)
		if err != nil {
			return fmt.Errorf("fetch due commands: %w", err)
		}
		telemetry.DueQueueDepth.WithLabelValues(name).Set(float64(len(due)))
		if len(due) == 0 {
			return nil
		}

		var wg sync.WaitGroup
		errs := make([]error, len(due))
		for i, cmd := range due {
			wg.Add(1)
			go func(i int, cmd model.ScheduledCommand) {
				defer wg.Done()
				if _, err := d.Delivery.Deliver(ctx, cmd, true); err != nil {
					errs[i] = fmt.Errorf("deliver command %s/%d: %w", cmd.AggregateID, cmd.SequenceNumber, err)
				}
			}(i, cmd)
		}
		wg.Wait()
		for _, e := range errs {
			if e != nil {
				return e
			}
		}
	}
}
