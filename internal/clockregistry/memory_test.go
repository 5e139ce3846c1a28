package clockregistry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGetOrCreateIsIdempotent(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return t0 })

	c1, err := m.GetOrCreate(context.Background(), "default")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if c1.Now != t0 || c1.StartTime != t0 {
		t.Fatalf("expected clock initialized to nowFunc time, got %+v", c1)
	}

	c2, err := m.GetOrCreate(context.Background(), "default")
	if err != nil {
		t.Fatalf("getOrCreate: %v", err)
	}
	if c2 != c1 {
		t.Fatalf("expected the same clock on repeat calls, got %+v vs %+v", c1, c2)
	}
}

func TestMemoryAdvanceMovesClockForward(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return t0 })
	target := t0.Add(time.Hour)

	c, err := m.Advance(context.Background(), "default", target)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !c.Now.Equal(target) {
		t.Fatalf("expected clock.Now = %v, got %v", target, c.Now)
	}
}

func TestMemoryAdvanceRejectsBackwardMovement(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(func() time.Time { return t0 })
	if _, err := m.Advance(context.Background(), "default", t0.Add(time.Hour)); err != nil {
		t.Fatalf("advance forward: %v", err)
	}

	_, err := m.Advance(context.Background(), "default", t0)
	if !errors.Is(err, ErrClockMovedBackward) {
		t.Fatalf("expected ErrClockMovedBackward, got %v", err)
	}
}

func TestMemoryMapValueAndLookup(t *testing.T) {
	m := NewMemory(nil)
	if err := m.MapValue(context.Background(), "tenant-a", "tenant-a-clock"); err != nil {
		t.Fatalf("mapValue: %v", err)
	}

	name, found, err := m.Lookup(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || name != "tenant-a-clock" {
		t.Fatalf("expected mapping to resolve, got name=%q found=%v", name, found)
	}

	_, found, err = m.Lookup(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found {
		t.Fatal("expected unmapped value to be not found")
	}
}
