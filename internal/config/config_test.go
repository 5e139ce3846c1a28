package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %q", cfg.HTTPPort)
	}
	if cfg.DefaultClockName != "default" {
		t.Fatalf("expected default clock name, got %q", cfg.DefaultClockName)
	}
	if cfg.PreconditionTimeoutDurable != 10*time.Second {
		t.Fatalf("expected 10s durable precondition timeout, got %v", cfg.PreconditionTimeoutDurable)
	}
	if cfg.PreconditionTimeoutInMemory != 3*time.Second {
		t.Fatalf("expected 3s in-memory precondition timeout, got %v", cfg.PreconditionTimeoutInMemory)
	}
	if cfg.ClockDrainBatchSize != 100 {
		t.Fatalf("expected default batch size 100, got %d", cfg.ClockDrainBatchSize)
	}
}

func TestLoadHonorsEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("CLOCK_DRAIN_BATCH_SIZE", "25")
	t.Setenv("BLOB_INLINE_THRESHOLD", "4096")
	t.Setenv("BLOB_S3_PATH_STYLE", "true")
	t.Setenv("ADMISSION_RATE_REFILL_PER_SEC", "12.5")
	t.Setenv("WALL_CLOCK_TICK", "250ms")

	cfg := Load()
	if cfg.HTTPPort != "9999" {
		t.Fatalf("expected overridden HTTP port, got %q", cfg.HTTPPort)
	}
	if cfg.ClockDrainBatchSize != 25 {
		t.Fatalf("expected overridden batch size, got %d", cfg.ClockDrainBatchSize)
	}
	if cfg.BlobInlineThreshold != 4096 {
		t.Fatalf("expected overridden blob threshold, got %d", cfg.BlobInlineThreshold)
	}
	if !cfg.BlobS3PathStyle {
		t.Fatal("expected overridden path-style flag to be true")
	}
	if cfg.AdmissionRateRefillPerSec != 12.5 {
		t.Fatalf("expected overridden refill rate, got %v", cfg.AdmissionRateRefillPerSec)
	}
	if cfg.WallClockTick != 250*time.Millisecond {
		t.Fatalf("expected overridden wall clock tick, got %v", cfg.WallClockTick)
	}
}

func TestLoadIgnoresUnparsableOverrides(t *testing.T) {
	t.Setenv("CLOCK_DRAIN_BATCH_SIZE", "not-a-number")
	cfg := Load()
	if cfg.ClockDrainBatchSize != 100 {
		t.Fatalf("expected fallback to default on unparsable env value, got %d", cfg.ClockDrainBatchSize)
	}
}
