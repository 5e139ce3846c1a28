// Package admission implements the token-bucket throttle that sits in
// front of the scheduling front-end's Schedule operation (SPEC_FULL §4.10),
// keyed by tenant rather than by aggregate.
package admission

import (
	"context"
	"errors"

	"durable-command-scheduler/internal/ratelimit"
)

// ErrThrottled is returned by Limiter.Admit when the tenant's bucket has no
// tokens available. The caller is expected to retry with backoff or rely on
// the bus's own redelivery mechanics — the event is never dropped.
var ErrThrottled = errors.New("admission: throttled")

// Limiter gates admission into the scheduler. A nil *Limiter disables
// admission control entirely, which is what tests and the in-memory
// scheduler use.
type Limiter struct {
	bucket *ratelimit.TokenBucket
}

// New wraps a token bucket as a tenant-keyed admission limiter.
func New(bucket *ratelimit.TokenBucket) *Limiter {
	return &Limiter{bucket: bucket}
}

// Admit consumes one token for tenant, defaulting to "default" when empty.
// A nil Limiter always admits.
func (l *Limiter) Admit(ctx context.Context, tenant string) error {
	if l == nil || l.bucket == nil {
		return nil
	}
	if tenant == "" {
		tenant = "default"
	}
	allowed, _, err := l.bucket.Allow(ctx, "admission:"+tenant)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrThrottled
	}
	return nil
}
