// Package vclock implements the deterministic in-memory virtual clock
// (§4.7): the primary testing vehicle for driving scheduler time forward
// without a wall-clock dependency.
package vclock

import (
	"context"
	"errors"
	"sync"
	"time"

	"durable-command-scheduler/internal/clockdriver"
)

// ErrAlreadyInstalled is returned by Install when a virtual clock is
// already current for the process (§4.7 "Singleton discipline").
var ErrAlreadyInstalled = errors.New("vclock: a virtual clock is already installed")

// Clock is a deterministic, in-process clock. AdvanceTo and AdvanceBy block
// until every command due by the new time has been fully delivered
// (success, retry rescheduled, or abandoned) — the quiescence property.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	driver *clockdriver.Driver
	name   string

	movementsMu sync.Mutex
	movements   []chan time.Time

	timersMu sync.Mutex
	timers   map[int]timer
	nextID   int
}

type timer struct {
	due    time.Time
	action func()
}

// New constructs a virtual clock starting at start, wired to drain the
// named clock through driver on every advancement.
func New(name string, start time.Time, driver *clockdriver.Driver) *Clock {
	return &Clock{now: start, driver: driver, name: name, timers: make(map[int]timer)}
}

// Schedule registers action to fire the moment the clock reaches dueTime,
// independent of the store-backed command flow AdvanceTo otherwise drains —
// a lighter-weight primitive for tests that want to observe virtual-time
// advancement without a full scheduled command. Returns a handle that
// cancels the timer if it has not yet fired.
func (c *Clock) Schedule(dueTime time.Time, action func()) (cancel func()) {
	c.timersMu.Lock()
	id := c.nextID
	c.nextID++
	c.timers[id] = timer{due: dueTime, action: action}
	c.timersMu.Unlock()

	return func() {
		c.timersMu.Lock()
		defer c.timersMu.Unlock()
		delete(c.timers, id)
	}
}

// Done reports whether no registered timer is both pending and due as of
// the clock's current now. Timers whose due time is still in the future do
// not keep the clock from being done.
func (c *Clock) Done() bool {
	now := c.Now()
	c.timersMu.Lock()
	defer c.timersMu.Unlock()
	for _, t := range c.timers {
		if !t.due.After(now) {
			return false
		}
	}
	return true
}

func (c *Clock) fireDueTimers(asOf time.Time) {
	c.timersMu.Lock()
	var fire []timer
	for id, t := range c.timers {
		if !t.due.After(asOf) {
			fire = append(fire, t)
			delete(c.timers, id)
		}
	}
	c.timersMu.Unlock()

	for _, t := range fire {
		t.action()
	}
}

// Now returns the clock's current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AdvanceTo moves the clock to target and blocks until quiescent.
func (c *Clock) AdvanceTo(ctx context.Context, target time.Time) error {
	c.mu.Lock()
	if target.Before(c.now) {
		c.mu.Unlock()
		return errors.New("vclock: advance target precedes current now")
	}
	c.mu.Unlock()

	if err := c.driver.Advance(ctx, c.name, target); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()

	c.fireDueTimers(target)
	c.emitMovement(target)
	return nil
}

// AdvanceBy moves the clock forward by d and blocks until quiescent.
func (c *Clock) AdvanceBy(ctx context.Context, d time.Duration) error {
	return c.AdvanceTo(ctx, c.Now().Add(d))
}

// Movements returns a channel that receives the new now after each
// advancement. Once its buffer fills, further movements are dropped for that
// subscriber rather than blocking advancement; unsubscribe removes it.
func (c *Clock) Movements() (<-chan time.Time, func()) {
	ch := make(chan time.Time, 16)
	c.movementsMu.Lock()
	c.movements = append(c.movements, ch)
	c.movementsMu.Unlock()

	unsubscribe := func() {
		c.movementsMu.Lock()
		defer c.movementsMu.Unlock()
		for i, m := range c.movements {
			if m == ch {
				c.movements = append(c.movements[:i], c.movements[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe
}

func (c *Clock) emitMovement(t time.Time) {
	c.movementsMu.Lock()
	defer c.movementsMu.Unlock()
	for _, ch := range c.movements {
		select {
		case ch <- t:
		default:
		}
	}
}

var (
	currentMu sync.Mutex
	current   *Clock
)

// Install makes c the current process-wide virtual clock. Only one may be
// installed at a time (§4.7 "Singleton discipline").
func Install(c *Clock) error {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current != nil {
		return ErrAlreadyInstalled
	}
	current = c
	return nil
}

// Current returns the installed virtual clock, if any.
func Current() (*Clock, bool) {
	currentMu.Lock()
	defer currentMu.Unlock()
	return current, current != nil
}

// Dispose removes c as the current virtual clock, restoring the ambient
// (wall) clock. It is a no-op if c is not the currently installed clock.
func Dispose(c *Clock) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current == c {
		current = nil
	}
}
