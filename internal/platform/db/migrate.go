// Package db opens and migrates the notification stores: a pgx connection
// pool when DATABASE_URL is configured, a local sqlite file otherwise.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Every statement is idempotent (IF NOT EXISTS) so the schema can be applied
// at every boot as well as through the migrate subcommand.

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		tracking_id     TEXT PRIMARY KEY,
		channel         TEXT NOT NULL,
		recipient       TEXT NOT NULL,
		content         JSONB,
		status          TEXT NOT NULL DEFAULT 'queued',
		priority        TEXT NOT NULL DEFAULT 'normal',
		attempts        INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL,
		delivered_at    TIMESTAMPTZ,
		last_attempt_at TIMESTAMPTZ,
		failure_reason  TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS ix_notifications_recipient ON notifications (recipient)`,
	`CREATE INDEX IF NOT EXISTS ix_notifications_status ON notifications (status)`,
	`CREATE INDEX IF NOT EXISTS ix_notifications_created_at ON notifications (created_at)`,
	`CREATE TABLE IF NOT EXISTS delivery_attempts (
		id             TEXT PRIMARY KEY,
		tracking_id    TEXT NOT NULL REFERENCES notifications(tracking_id) ON DELETE CASCADE,
		attempt_number INTEGER NOT NULL,
		status         TEXT NOT NULL,
		error_message  TEXT,
		response_code  INTEGER,
		attempted_at   TIMESTAMPTZ NOT NULL,
		latency_ms     DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS ix_delivery_attempts_tracking_id ON delivery_attempts (tracking_id)`,
	`CREATE TABLE IF NOT EXISTS templates (
		template_id TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		channel     TEXT NOT NULL,
		content     JSONB NOT NULL DEFAULT '{}',
		variables   JSONB NOT NULL DEFAULT '[]',
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_notifications (
		schedule_id       TEXT PRIMARY KEY,
		notification_data JSONB NOT NULL DEFAULT '{}',
		send_at           TIMESTAMPTZ NOT NULL,
		timezone          TEXT NOT NULL DEFAULT 'UTC',
		recurrence        TEXT,
		last_run          TIMESTAMPTZ,
		active            BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE INDEX IF NOT EXISTS ix_scheduled_notifications_send_at ON scheduled_notifications (send_at)`,
}

// Timestamps are stored as fixed-width UTC text (TimeLayout) in sqlite so
// that range scans can compare them as strings.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS notifications (
		tracking_id     TEXT PRIMARY KEY,
		channel         TEXT NOT NULL,
		recipient       TEXT NOT NULL,
		content         TEXT,
		status          TEXT NOT NULL DEFAULT 'queued',
		priority        TEXT NOT NULL DEFAULT 'normal',
		attempts        INTEGER NOT NULL DEFAULT 0,
		created_at      TEXT NOT NULL,
		delivered_at    TEXT,
		last_attempt_at TEXT,
		failure_reason  TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS ix_notifications_recipient ON notifications (recipient)`,
	`CREATE INDEX IF NOT EXISTS ix_notifications_status ON notifications (status)`,
	`CREATE INDEX IF NOT EXISTS ix_notifications_created_at ON notifications (created_at)`,
	`CREATE TABLE IF NOT EXISTS delivery_attempts (
		id             TEXT PRIMARY KEY,
		tracking_id    TEXT NOT NULL REFERENCES notifications(tracking_id) ON DELETE CASCADE,
		attempt_number INTEGER NOT NULL,
		status         TEXT NOT NULL,
		error_message  TEXT,
		response_code  INTEGER,
		attempted_at   TEXT NOT NULL,
		latency_ms     REAL NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS ix_delivery_attempts_tracking_id ON delivery_attempts (tracking_id)`,
	`CREATE TABLE IF NOT EXISTS templates (
		template_id TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		channel     TEXT NOT NULL,
		content     TEXT NOT NULL DEFAULT '{}',
		variables   TEXT NOT NULL DEFAULT '[]',
		active      INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_notifications (
		schedule_id       TEXT PRIMARY KEY,
		notification_data TEXT NOT NULL DEFAULT '{}',
		send_at           TEXT NOT NULL,
		timezone          TEXT NOT NULL DEFAULT 'UTC',
		recurrence        TEXT,
		last_run          TEXT,
		active            INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS ix_scheduled_notifications_send_at ON scheduled_notifications (send_at)`,
}

// MigratePostgres applies the notification schema to a postgres database.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply postgres schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrateSQLite applies the notification schema to a sqlite database.
func MigrateSQLite(ctx context.Context, sdb *sql.DB) error {
	for i, stmt := range sqliteSchema {
		if _, err := sdb.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sqlite schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
