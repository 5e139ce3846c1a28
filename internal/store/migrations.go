package store

import (
	"context"
	"fmt"
)

// migrations lists the schema statements in apply order. Kept inline
// rather than as embedded files since the module ships as a single
// binary with no separate migrations directory to embed.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS clocks (
		name       TEXT PRIMARY KEY,
		now        TIMESTAMPTZ NOT NULL,
		start_time TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clock_mappings (
		value      TEXT PRIMARY KEY,
		clock_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_commands (
		aggregate_id        TEXT NOT NULL,
		sequence_number     BIGINT NOT NULL,
		aggregate_type      TEXT NOT NULL,
		command_name        TEXT NOT NULL,
		serialized_command  TEXT NOT NULL,
		tenant              TEXT NOT NULL DEFAULT 'default',
		clock_name          TEXT NOT NULL,
		created_time        TIMESTAMPTZ NOT NULL,
		due_time            TIMESTAMPTZ,
		applied_time        TIMESTAMPTZ,
		final_attempt_time  TIMESTAMPTZ,
		attempts            INT NOT NULL DEFAULT 0,
		non_durable         BOOLEAN NOT NULL DEFAULT FALSE,
		payload_location    TEXT NOT NULL DEFAULT 'inline',
		blob_key            TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (aggregate_id, sequence_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_commands_due
		ON scheduled_commands (clock_name, due_time)
		WHERE applied_time IS NULL AND final_attempt_time IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_scheduled_commands_abandoned
		ON scheduled_commands (clock_name, final_attempt_time DESC)
		WHERE final_attempt_time IS NOT NULL AND applied_time IS NULL`,
	`CREATE TABLE IF NOT EXISTS command_execution_errors (
		id              BIGSERIAL PRIMARY KEY,
		aggregate_id    TEXT NOT NULL,
		sequence_number BIGINT NOT NULL,
		error           TEXT NOT NULL,
		recorded_at     TIMESTAMPTZ NOT NULL,
		FOREIGN KEY (aggregate_id, sequence_number)
			REFERENCES scheduled_commands (aggregate_id, sequence_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_command_execution_errors_command
		ON command_execution_errors (aggregate_id, sequence_number)`,
}

// RunMigrations applies the schema statements in order. Each statement is
// idempotent (IF NOT EXISTS) so this is safe to run on every boot.
func (s *Postgres) RunMigrations(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec migration %d: %w", i, err)
		}
	}
	return nil
}
