package repository

import (
	"context"
	"sync"
	"time"

	"durable-command-scheduler/internal/model"
)

// precondRetryAfter is the retry delay the fake attaches when a caller's
// PreconditionVerifier reports the precondition unsatisfied.
const precondRetryAfter = 5 * time.Second

// Fake is an in-memory Repository used by unit tests throughout the module.
// Results are queued per (aggregateID, sequenceNumber); if none is queued, a
// DefaultResult is returned so a test doesn't need to script every call.
type Fake struct {
	mu            sync.Mutex
	results       map[string][]Result
	calls         []model.ScheduledCommand
	DefaultResult Result
	VerifyResults map[string]bool
}

// NewFake constructs a Fake that succeeds by default.
func NewFake() *Fake {
	return &Fake{
		results:       make(map[string][]Result),
		DefaultResult: Succeeded(),
		VerifyResults: make(map[string]bool),
	}
}

func fakeKey(aggregateID string, seq int64) string {
	return aggregateID + "#" + itoa(seq)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Enqueue schedules the next N results returned for a given command identity.
func (f *Fake) Enqueue(aggregateID string, seq int64, results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fakeKey(aggregateID, seq)
	f.results[key] = append(f.results[key], results...)
}

// Calls returns every command the fake was asked to apply, in call order.
func (f *Fake) Calls() []model.ScheduledCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ScheduledCommand, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) ApplyScheduledCommand(ctx context.Context, cmd model.ScheduledCommand, verify PreconditionVerifier) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	key := fakeKey(cmd.AggregateID, cmd.SequenceNumber)
	queue := f.results[key]
	var result Result
	if len(queue) > 0 {
		result, f.results[key] = queue[0], queue[1:]
	} else {
		result = f.DefaultResult
	}
	f.mu.Unlock()

	if verify != nil {
		ok, err := verify(ctx, cmd)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			retry := precondRetryAfter
			return Failed(false, cmd.Attempts, &retry, "precondition not satisfied"), nil
		}
	}
	return result, nil
}
