package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig configures the Postgres-backed journal.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	AppName         string
}

// PostgresJournal persists lifecycle events to a Postgres table so multiple
// orchestrator nodes can share one audit trail.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS orchestrator_events (
    id BIGSERIAL PRIMARY KEY,
    occurred_at TIMESTAMPTZ NOT NULL,
    kind TEXT NOT NULL,
    vhost TEXT NOT NULL DEFAULT '',
    app TEXT NOT NULL DEFAULT '',
    stream TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS orchestrator_events_occurred_at_idx
    ON orchestrator_events (occurred_at DESC);
`

// NewPostgresJournal opens a pooled connection to Postgres and ensures the
// event table exists.
func NewPostgresJournal(ctx context.Context, cfg PostgresConfig) (*PostgresJournal, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres journal dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres journal config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.AppName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.AppName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres journal pool: %w", err)
	}
	j := &PostgresJournal{pool: pool}
	if err := j.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return j, nil
}

func (j *PostgresJournal) migrate(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, journalSchema); err != nil {
		return fmt.Errorf("migrate journal schema: %w", err)
	}
	return nil
}

// Record appends the event.
func (j *PostgresJournal) Record(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	_, err := j.pool.Exec(ctx, `
INSERT INTO orchestrator_events (occurred_at, kind, vhost, app, stream, detail)
VALUES ($1, $2, $3, $4, $5, $6)
`, event.Time, string(event.Kind), event.VHost, event.App, event.Stream, event.Detail)
	if err != nil {
		return fmt.Errorf("record journal event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.pool.Query(ctx, `
SELECT occurred_at, kind, vhost, app, stream, detail
FROM orchestrator_events
ORDER BY occurred_at DESC, id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var event Event
		var kind string
		if err := rows.Scan(&event.Time, &kind, &event.VHost, &event.App, &event.Stream, &event.Detail); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		event.Kind = EventKind(kind)
		out = append(out, event)
	}
	return out, rows.Err()
}

// Close drains the connection pool, bounded by the context.
func (j *PostgresJournal) Close(ctx context.Context) error {
	if j == nil || j.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		j.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
