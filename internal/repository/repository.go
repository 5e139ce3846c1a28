// Package repository declares the event-sourced repository boundary the
// delivery engine calls through. The repository itself — loading an
// aggregate, applying a command, and persisting resulting events — is out of
// scope (§1); this package only names the interface and result shape the
// engine depends on, plus a fake used by tests across the module.
package repository

import (
	"context"
	"time"

	"durable-command-scheduler/internal/model"
)

// PreconditionVerifier answers whether a command's prerequisite event is
// durably observable right now. It is threaded through to the repository so
// that "precondition unsatisfied" can be surfaced as an ordinary retryable
// Failed result (§4.4 "Tie-breaks & edge cases").
type PreconditionVerifier func(ctx context.Context, cmd model.ScheduledCommand) (bool, error)

// Repository applies a scheduled command to its aggregate and reports the
// outcome. Out of scope for this module beyond this interface (§1, §6).
type Repository interface {
	ApplyScheduledCommand(ctx context.Context, cmd model.ScheduledCommand, verify PreconditionVerifier) (Result, error)
}

// Result is the outcome of a single delivery attempt (§6).
type Result struct {
	Succeeded bool

	// Failed-only fields.
	IsCanceled              bool
	NumberOfPreviousAttempts int
	RetryAfter              *time.Duration
	Exception               string
}

// Succeeded builds a successful Result.
func Succeeded() Result {
	return Result{Succeeded: true}
}

// Failed builds a failed Result. A nil retryAfter or isCanceled=true means
// abandon (§4.4); any other retryAfter reschedules.
func Failed(isCanceled bool, previousAttempts int, retryAfter *time.Duration, exception string) Result {
	return Result{
		Succeeded:                false,
		IsCanceled:               isCanceled,
		NumberOfPreviousAttempts: previousAttempts,
		RetryAfter:               retryAfter,
		Exception:                exception,
	}
}

// IsRetryable reports whether the failure should reschedule rather than
// abandon (§7 "RetryableApplicationFailure").
func (r Result) IsRetryable() bool {
	return !r.Succeeded && !r.IsCanceled && r.RetryAfter != nil
}
