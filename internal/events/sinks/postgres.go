package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/optiview/optiview/internal/events"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool used for event rows.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSink appends orchestration events to a Postgres table so
// dashboards can query activity history. The engine core never reads these
// rows back.
type PostgresSink struct {
	pool  execCloser
	table string
}

// NewPostgresSink connects a pool using the provided config.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("events.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresSinkWithPool(pool, cfg.Table)
}

// NewPostgresSinkWithPool wraps an existing pool; tests inject a mock here.
func NewPostgresSinkWithPool(pool execCloser, table string) (*PostgresSink, error) {
	if table == "" {
		table = "orchestration_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{pool: pool, table: table}, nil
}

// Consume inserts one row per event. Partial batches are acceptable; the
// hub logs and drops on error rather than retrying.
func (s *PostgresSink) Consume(ctx context.Context, batch []events.Event) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (org_id, site_id, event_type, task_id, task_type, occurred_at, duration_ms, note, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`, s.table)
	for _, evt := range batch {
		var data []byte
		if evt.Data != nil {
			encoded, err := json.Marshal(evt.Data)
			if err != nil {
				return fmt.Errorf("marshal event data: %w", err)
			}
			data = encoded
		}
		if _, err := s.pool.Exec(ctx, query,
			evt.OrgID,
			evt.SiteID,
			string(evt.Type),
			evt.TaskID,
			evt.TaskType,
			evt.TS,
			evt.Dur.Milliseconds(),
			evt.Note,
			data,
		); err != nil {
			return fmt.Errorf("insert event row: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close(context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
