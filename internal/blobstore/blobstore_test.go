package blobstore

import (
	"context"
	"strings"
	"testing"
)

func TestThresholdInlineWhenSmall(t *testing.T) {
	th := Threshold{InlineMax: 8}
	loc, key, inline, err := th.Resolve(context.Background(), "agg-1", 1, "short")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loc != LocationInline || key != "" || inline != "short" {
		t.Fatalf("expected inline storage, got loc=%s key=%s inline=%q", loc, key, inline)
	}
	got, err := th.Load(context.Background(), loc, key, inline)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "short" {
		t.Fatalf("expected round-trip, got %q", got)
	}
}

func TestThresholdOffloadsLargePayload(t *testing.T) {
	dir := t.TempDir()
	local, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}
	th := Threshold{Backend: local, InlineMax: 4}
	payload := strings.Repeat("x", 100)

	loc, key, inline, err := th.Resolve(context.Background(), "agg-2", 3, payload)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loc != LocationLocal || key == "" || inline != "" {
		t.Fatalf("expected offload, got loc=%s key=%s inline=%q", loc, key, inline)
	}

	got, err := th.Load(context.Background(), loc, key, inline)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != payload {
		t.Fatalf("round trip mismatch: got %d bytes want %d", len(got), len(payload))
	}
}

func TestThresholdLoadWithoutBackendFails(t *testing.T) {
	th := Threshold{InlineMax: 4}
	if _, err := th.Load(context.Background(), LocationLocal, "some/key", ""); err != ErrBackendUnconfigured {
		t.Fatalf("expected ErrBackendUnconfigured, got %v", err)
	}
}
