// Package precondition implements the gate that decides whether a scheduled
// command's prerequisite event is observable yet (§4.3).
package precondition

import (
	"context"
	"time"

	"durable-command-scheduler/internal/model"
)

// Verifier answers whether a command's precondition currently holds. It is
// supplied by the repository's owner and is otherwise opaque to the
// scheduler.
type Verifier func(ctx context.Context, cmd model.ScheduledCommand) (bool, error)

// Gate wraps a Verifier with the timeout policy from §4.3: AwaitOrTimeout
// re-verifies each time its notify channel fires and gives up once Timeout
// elapses, after which the caller delivers anyway. The scheduling front-end
// passes no notify channel, so it does not re-verify as bus events arrive:
// after the initial check it waits out the full Timeout before delivering.
type Gate struct {
	Verify  Verifier
	Timeout time.Duration
}

// New builds a Gate. A nil verify function always reports satisfied, which
// is the correct behavior for commands with no precondition at all.
func New(verify Verifier, timeout time.Duration) Gate {
	if verify == nil {
		verify = func(context.Context, model.ScheduledCommand) (bool, error) { return true, nil }
	}
	return Gate{Verify: verify, Timeout: timeout}
}

// Check reports whether the command's precondition is satisfied right now.
func (g Gate) Check(ctx context.Context, cmd model.ScheduledCommand) (bool, error) {
	return g.Verify(ctx, cmd)
}

// AwaitOrTimeout re-verifies the precondition each time notify fires (a new
// event arrived on the bus) and returns true the moment it is satisfied, or
// false once Timeout elapses without a satisfying event — the caller then
// delivers anyway per §4.3. notify may be nil, in which case AwaitOrTimeout
// simply waits out the timeout.
func (g Gate) AwaitOrTimeout(ctx context.Context, cmd model.ScheduledCommand, notify <-chan struct{}) (satisfied bool, err error) {
	ok, err := g.Verify(ctx, cmd)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case _, open := <-notify:
			if !open {
				notify = nil
				continue
			}
			ok, err := g.Verify(ctx, cmd)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
}
