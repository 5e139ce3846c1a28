package clockregistry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"durable-command-scheduler/internal/model"
)

// Postgres is the durable Registry backed by the Clocks and ClockMappings
// tables (§6, §3.3 — the clock registry exclusively owns these two tables).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The caller (internal/store) owns
// migrations; see store.Postgres.RunMigrations.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) GetOrCreate(ctx context.Context, name string) (model.Clock, error) {
	row := p.pool.QueryRow(ctx, `SELECT name, now, start_time FROM clocks WHERE name = $1`, name)
	c, err := scanClock(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Clock{}, fmt.Errorf("get clock %s: %w", name, err)
	}

	now := time.Now().UTC()
	_, err = p.pool.Exec(ctx, `
		INSERT INTO clocks (name, now, start_time) VALUES ($1, $2, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, now)
	if err != nil {
		return model.Clock{}, fmt.Errorf("create clock %s: %w", name, err)
	}
	row = p.pool.QueryRow(ctx, `SELECT name, now, start_time FROM clocks WHERE name = $1`, name)
	return scanClock(row)
}

func (p *Postgres) Advance(ctx context.Context, name string, target time.Time) (model.Clock, error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return model.Clock{}, fmt.Errorf("begin advance tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT name, now, start_time FROM clocks WHERE name = $1 FOR UPDATE`, name)
	c, err := scanClock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		now := time.Now().UTC()
		if _, err := tx.Exec(ctx, `INSERT INTO clocks (name, now, start_time) VALUES ($1, $2, $2)`, name, now); err != nil {
			return model.Clock{}, fmt.Errorf("create clock %s: %w", name, err)
		}
		c = model.Clock{Name: name, Now: now, StartTime: now}
	} else if err != nil {
		return model.Clock{}, fmt.Errorf("lock clock %s: %w", name, err)
	}

	if target.Before(c.Now) {
		return c, ErrClockMovedBackward
	}

	if _, err := tx.Exec(ctx, `UPDATE clocks SET now = $2 WHERE name = $1`, name, target); err != nil {
		return model.Clock{}, fmt.Errorf("advance clock %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Clock{}, fmt.Errorf("commit advance %s: %w", name, err)
	}
	c.Now = target
	return c, nil
}

func (p *Postgres) Lookup(ctx context.Context, value string) (string, bool, error) {
	var clockName string
	err := p.pool.QueryRow(ctx, `SELECT clock_name FROM clock_mappings WHERE value = $1`, value).Scan(&clockName)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup clock mapping %s: %w", value, err)
	}
	return clockName, true, nil
}

func (p *Postgres) MapValue(ctx context.Context, value, clockName string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO clock_mappings (value, clock_name) VALUES ($1, $2)
		ON CONFLICT (value) DO UPDATE SET clock_name = excluded.clock_name
	`, value, clockName)
	if err != nil {
		return fmt.Errorf("map clock value %s: %w", value, err)
	}
	return nil
}

func scanClock(row pgx.Row) (model.Clock, error) {
	var c model.Clock
	if err := row.Scan(&c.Name, &c.Now, &c.StartTime); err != nil {
		return model.Clock{}, err
	}
	return c, nil
}
