// Package postgres is the primary partition backend. Each month partition
// maps to the rows sharing one month key in a single table; replacing a
// partition is a delete-and-insert inside one transaction, so concurrent
// readers never observe a half-written month.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floodwatch/floodcounts/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS flood_counts (
	month    text NOT NULL,
	ts       text NOT NULL,
	severes  integer NOT NULL,
	warnings integer NOT NULL,
	alerts   integer NOT NULL,
	PRIMARY KEY (month, ts)
)`

// Backend stores month partitions in Postgres.
type Backend struct {
	pool *pgxpool.Pool
}

// New connects to Postgres, verifies the connection, and ensures the
// flood_counts table exists.
func New(ctx context.Context, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure flood_counts table: %w", err)
	}
	return &Backend{pool: pool}, nil
}

func (b *Backend) Name() string { return "postgres" }

// ReadPartition loads one month's records in timestamp order.
func (b *Backend) ReadPartition(ctx context.Context, key string) ([]domain.CountRecord, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT ts, severes, warnings, alerts FROM flood_counts WHERE month = $1 ORDER BY ts`,
		key)
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", key, err)
	}
	defer rows.Close()

	var records []domain.CountRecord
	for rows.Next() {
		var r domain.CountRecord
		if err := rows.Scan(&r.Timestamp, &r.Severes, &r.Warnings, &r.Alerts); err != nil {
			return nil, fmt.Errorf("scan partition %s: %w", key, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read partition %s: %w", key, err)
	}
	return records, nil
}

// WritePartition replaces one month's records in a single transaction.
func (b *Backend) WritePartition(ctx context.Context, key string, records []domain.CountRecord) error {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin write partition %s: %w", key, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM flood_counts WHERE month = $1`, key); err != nil {
		return fmt.Errorf("clear partition %s: %w", key, err)
	}

	for _, r := range records {
		if _, err := tx.Exec(ctx,
			`INSERT INTO flood_counts (month, ts, severes, warnings, alerts) VALUES ($1, $2, $3, $4, $5)`,
			key, r.Timestamp, r.Severes, r.Warnings, r.Alerts); err != nil {
			return fmt.Errorf("insert into partition %s: %w", key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit partition %s: %w", key, err)
	}
	return nil
}

// Ping reports backend reachability for the promotion probe.
func (b *Backend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// Close releases the connection pool.
func (b *Backend) Close() {
	b.pool.Close()
}
