package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"durable-command-scheduler/internal/blobstore"
	"durable-command-scheduler/internal/model"
)

// pgUniqueViolation is the SQLSTATE Postgres raises for a unique constraint
// conflict (used to detect a sequence-number collision on Put).
const pgUniqueViolation = "23505"

// Postgres is the durable command store backed by pgxpool.
type Postgres struct {
	pool    *pgxpool.Pool
	payload blobstore.Threshold
}

// New creates a pooled connection to Postgres and wires the payload
// threshold used to inline or offload serializedCommand bytes.
func New(ctx context.Context, dsn string, payload blobstore.Threshold) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, payload: payload}, nil
}

// NewWithPool wraps an already-connected pool, letting callers share a
// single pgxpool.Pool between the command store and the clock registry.
func NewWithPool(pool *pgxpool.Pool, payload blobstore.Threshold) *Postgres {
	return &Postgres{pool: pool, payload: payload}
}

// Pool exposes the underlying pool so other Postgres-backed components
// (the clock registry) can share the same connection pool.
func (s *Postgres) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Put inserts a command, retrying with a decremented sequence number when
// the caller supplied the scheduler-assigned sentinel and the current
// candidate collides (§4.2).
func (s *Postgres) Put(ctx context.Context, cmd model.ScheduledCommand) (model.ScheduledCommand, error) {
	location, key, inline, err := s.payload.Resolve(ctx, cmd.AggregateID, cmd.SequenceNumber, cmd.SerializedCommand)
	if err != nil {
		return model.ScheduledCommand{}, fmt.Errorf("resolve payload placement: %w", err)
	}
	cmd.PayloadLocation = location
	cmd.BlobKey = key

	assigned := !model.IsSchedulerAssigned(cmd.SequenceNumber)
	candidate := cmd
	candidate.SerializedCommand = inline

	for {
		err := s.insert(ctx, candidate)
		if err == nil {
			cmd.SequenceNumber = candidate.SequenceNumber
			return cmd, nil
		}
		if !isUniqueViolation(err) {
			return model.ScheduledCommand{}, fmt.Errorf("insert scheduled command: %w", err)
		}
		if assigned {
			return model.ScheduledCommand{}, ErrDuplicateSchedule
		}
		candidate.SequenceNumber--
	}
}

func (s *Postgres) insert(ctx context.Context, cmd model.ScheduledCommand) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scheduled_commands
			(aggregate_id, sequence_number, aggregate_type, command_name, serialized_command,
			 tenant, clock_name, created_time, due_time, attempts, non_durable,
			 payload_location, blob_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12)
	`, cmd.AggregateID, cmd.SequenceNumber, cmd.AggregateType, cmd.CommandName, cmd.SerializedCommand,
		cmd.Tenant, cmd.ClockName, cmd.CreatedTime, cmd.DueTime, cmd.NonDurable,
		cmd.PayloadLocation, cmd.BlobKey)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Load fetches a single command by identity, resolving its payload through
// the configured blob threshold.
func (s *Postgres) Load(ctx context.Context, aggregateID string, sequenceNumber int64) (model.ScheduledCommand, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT aggregate_id, sequence_number, aggregate_type, command_name, serialized_command,
		       tenant, clock_name, created_time, due_time, applied_time, final_attempt_time,
		       attempts, non_durable, payload_location, blob_key
		FROM scheduled_commands WHERE aggregate_id = $1 AND sequence_number = $2
	`, aggregateID, sequenceNumber)
	return s.scan(ctx, row)
}

func (s *Postgres) scan(ctx context.Context, row pgx.Row) (model.ScheduledCommand, error) {
	var cmd model.ScheduledCommand
	var dueTime, appliedTime, finalAttemptTime pgtype.Timestamptz
	if err := row.Scan(
		&cmd.AggregateID, &cmd.SequenceNumber, &cmd.AggregateType, &cmd.CommandName, &cmd.SerializedCommand,
		&cmd.Tenant, &cmd.ClockName, &cmd.CreatedTime, &dueTime, &appliedTime, &finalAttemptTime,
		&cmd.Attempts, &cmd.NonDurable, &cmd.PayloadLocation, &cmd.BlobKey,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ScheduledCommand{}, ErrNotFound
		}
		return model.ScheduledCommand{}, fmt.Errorf("scan scheduled command: %w", err)
	}
	cmd.DueTime = tsPtr(dueTime)
	cmd.AppliedTime = tsPtr(appliedTime)
	cmd.FinalAttemptTime = tsPtr(finalAttemptTime)

	payload, err := s.payload.Load(ctx, cmd.PayloadLocation, cmd.BlobKey, cmd.SerializedCommand)
	if err != nil {
		return model.ScheduledCommand{}, fmt.Errorf("%w: %w", ErrBlobUnavailable, err)
	}
	cmd.SerializedCommand = payload
	return cmd, nil
}

func (s *Postgres) MarkApplied(ctx context.Context, aggregateID string, sequenceNumber int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_commands SET applied_time = $3 WHERE aggregate_id = $1 AND sequence_number = $2
	`, aggregateID, sequenceNumber, at)
	return checkAffected(tag, err)
}

func (s *Postgres) MarkAbandoned(ctx context.Context, aggregateID string, sequenceNumber int64, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_commands SET final_attempt_time = $3 WHERE aggregate_id = $1 AND sequence_number = $2
	`, aggregateID, sequenceNumber, at)
	return checkAffected(tag, err)
}

func (s *Postgres) Reschedule(ctx context.Context, aggregateID string, sequenceNumber int64, newDueTime time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scheduled_commands SET due_time = $3 WHERE aggregate_id = $1 AND sequence_number = $2
	`, aggregateID, sequenceNumber, newDueTime)
	return checkAffected(tag, err)
}

func (s *Postgres) IncrementAttempts(ctx context.Context, aggregateID string, sequenceNumber int64) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx, `
		UPDATE scheduled_commands SET attempts = attempts + 1
		WHERE aggregate_id = $1 AND sequence_number = $2
		RETURNING attempts
	`, aggregateID, sequenceNumber).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

func (s *Postgres) RecordError(ctx context.Context, aggregateID string, sequenceNumber int64, serializedError string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO command_execution_errors (aggregate_id, sequence_number, error, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, aggregateID, sequenceNumber, serializedError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

// RecordDeliveryOutcome performs the increment-attempts-plus-outcome update
// as a single transaction (§5 "failure atomicity").
func (s *Postgres) RecordDeliveryOutcome(ctx context.Context, aggregateID string, sequenceNumber int64, outcome DeliveryOutcome) (model.ScheduledCommand, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.ScheduledCommand{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var attempts int
	if err := tx.QueryRow(ctx, `
		UPDATE scheduled_commands SET attempts = attempts + 1
		WHERE aggregate_id = $1 AND sequence_number = $2
		RETURNING attempts
	`, aggregateID, sequenceNumber).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ScheduledCommand{}, ErrNotFound
		}
		return model.ScheduledCommand{}, fmt.Errorf("increment attempts: %w", err)
	}

	switch {
	case outcome.Succeeded:
		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_commands SET applied_time = $3 WHERE aggregate_id = $1 AND sequence_number = $2
		`, aggregateID, sequenceNumber, outcome.At); err != nil {
			return model.ScheduledCommand{}, fmt.Errorf("mark applied: %w", err)
		}
	case outcome.Abandon:
		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_commands SET final_attempt_time = $3 WHERE aggregate_id = $1 AND sequence_number = $2
		`, aggregateID, sequenceNumber, outcome.At); err != nil {
			return model.ScheduledCommand{}, fmt.Errorf("mark abandoned: %w", err)
		}
	default:
		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_commands SET due_time = $3 WHERE aggregate_id = $1 AND sequence_number = $2
		`, aggregateID, sequenceNumber, outcome.NewDueTime); err != nil {
			return model.ScheduledCommand{}, fmt.Errorf("reschedule: %w", err)
		}
	}

	if !outcome.Succeeded {
		if _, err := tx.Exec(ctx, `
			INSERT INTO command_execution_errors (aggregate_id, sequence_number, error, recorded_at)
			VALUES ($1, $2, $3, $4)
		`, aggregateID, sequenceNumber, outcome.SerializedError, outcome.At); err != nil {
			return model.ScheduledCommand{}, fmt.Errorf("record error: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.ScheduledCommand{}, fmt.Errorf("commit: %w", err)
	}

	return s.Load(ctx, aggregateID, sequenceNumber)
}

func (s *Postgres) DueOn(ctx context.Context, clockName string, asOf time.Time, limit int) ([]model.ScheduledCommand, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT aggregate_id, sequence_number, aggregate_type, command_name, serialized_command,
		       tenant, clock_name, created_time, due_time, applied_time, final_attempt_time,
		       attempts, non_durable, payload_location, blob_key
		FROM scheduled_commands
		WHERE clock_name = $1
		  AND applied_time IS NULL AND final_attempt_time IS NULL
		  AND (due_time IS NULL OR due_time <= $2)
		ORDER BY due_time ASC NULLS FIRST, sequence_number ASC
		LIMIT $3
	`, clockName, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("query due commands: %w", err)
	}
	defer rows.Close()
	return s.scanAll(ctx, rows)
}

func (s *Postgres) Abandoned(ctx context.Context, clockName string, limit int) ([]model.ScheduledCommand, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT aggregate_id, sequence_number, aggregate_type, command_name, serialized_command,
		       tenant, clock_name, created_time, due_time, applied_time, final_attempt_time,
		       attempts, non_durable, payload_location, blob_key
		FROM scheduled_commands
		WHERE clock_name = $1 AND final_attempt_time IS NOT NULL AND applied_time IS NULL
		ORDER BY final_attempt_time DESC
		LIMIT $2
	`, clockName, limit)
	if err != nil {
		return nil, fmt.Errorf("query abandoned commands: %w", err)
	}
	defer rows.Close()
	return s.scanAll(ctx, rows)
}

func (s *Postgres) scanAll(ctx context.Context, rows pgx.Rows) ([]model.ScheduledCommand, error) {
	var out []model.ScheduledCommand
	for rows.Next() {
		cmd, err := s.scan(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

func (s *Postgres) Errors(ctx context.Context, aggregateID string, sequenceNumber int64) ([]model.CommandExecutionError, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, aggregate_id, sequence_number, error, recorded_at
		FROM command_execution_errors
		WHERE aggregate_id = $1 AND sequence_number = $2
		ORDER BY recorded_at ASC
	`, aggregateID, sequenceNumber)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	var out []model.CommandExecutionError
	for rows.Next() {
		var e model.CommandExecutionError
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.SequenceNumber, &e.Error, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan error row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func checkAffected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func tsPtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
