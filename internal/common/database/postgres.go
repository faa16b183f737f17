// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tool-evaluator/internal/common/config"

	_ "github.com/lib/pq"
)

// Schema creates the tables the evaluator reads and writes. Statements are
// idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS rule_set_versions (
		project_id   TEXT        NOT NULL,
		version      BIGINT      NOT NULL,
		definition   JSONB       NOT NULL,
		author_email TEXT        NOT NULL DEFAULT '',
		published_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (project_id, version)
	)`,
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		user_id    TEXT    PRIMARY KEY,
		tier       TEXT    NOT NULL,
		expires_at TEXT    NOT NULL DEFAULT '',
		is_valid   BOOLEAN NOT NULL DEFAULT true
	)`,
}

type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// EnsureSchema applies Schema inside one transaction.
func (c *PostgresClient) EnsureSchema(ctx context.Context) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	for _, stmt := range Schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return tx.Commit()
}
