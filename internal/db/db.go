package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps the Postgres connection pool
type DB struct {
	conn *sql.DB
}

// NewDB opens a pool through the pgx driver and checks connectivity
func NewDB(ctx context.Context, url string) (*DB, error) {
	conn, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// NewFromConn wraps an existing pool
func NewFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Ping checks the database is reachable
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close closes the connection pool
func (d *DB) Close() error {
	return d.conn.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id              TEXT PRIMARY KEY,
	workflow_name   TEXT NOT NULL,
	is_enabled      BOOLEAN NOT NULL DEFAULT TRUE,
	trigger_details JSONB NOT NULL DEFAULT '[]',
	action_details  JSONB NOT NULL DEFAULT '[]',
	trigger_logic   TEXT NOT NULL DEFAULT 'OR',
	mode_id         TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS workflows_mode_id_idx ON workflows (mode_id);
`

// EnsureSchema creates the tables if they do not exist
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
