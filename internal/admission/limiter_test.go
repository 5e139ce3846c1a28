package admission

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"durable-command-scheduler/internal/ratelimit"
)

func TestLimiterNilAlwaysAdmits(t *testing.T) {
	var l *Limiter
	if err := l.Admit(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("expected nil limiter to admit, got %v", err)
	}
}

func TestLimiterThrottlesPerTenant(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(ratelimit.NewTokenBucket(client, 1, 1, time.Minute))

	if err := l.Admit(context.Background(), "tenant-a"); err != nil {
		t.Fatalf("expected first admit to succeed: %v", err)
	}
	if err := l.Admit(context.Background(), "tenant-a"); err != ErrThrottled {
		t.Fatalf("expected second admit to be throttled, got %v", err)
	}
	if err := l.Admit(context.Background(), "tenant-b"); err != nil {
		t.Fatalf("expected different tenant to have its own bucket: %v", err)
	}
}
